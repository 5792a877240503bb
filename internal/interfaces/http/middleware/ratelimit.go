package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/coccinelle/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per key. Buckets live in a bounded
// LRU; an evicted key starts again with a full bucket.
type RateLimiter struct {
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter allowing rps requests per second per key
// with the given burst, tracking at most maxKeys keys.
func NewRateLimiter(rps float64, burst, maxKeys int) (*RateLimiter, error) {
	if maxKeys <= 0 {
		maxKeys = 1024
	}
	if burst <= 0 {
		burst = 1
	}
	cache, err := lru.New[string, *rate.Limiter](maxKeys)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{limiters: cache, limit: rate.Limit(rps), burst: burst}, nil
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if l, ok := rl.limiters.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	// a concurrent first request may have created one already
	if prev, ok, _ := rl.limiters.PeekOrAdd(key, l); ok {
		return prev
	}
	return l
}

// Reserve takes a token for key. It returns whether the request may proceed
// and, if not, how many seconds the caller should wait.
func (rl *RateLimiter) Reserve(key string) (bool, int) {
	r := rl.limiter(key).Reserve()
	if !r.OK() {
		return false, 1
	}
	delay := r.Delay()
	if delay == 0 {
		return true, 0
	}
	r.Cancel()
	return false, int(math.Ceil(delay.Seconds()))
}

// RateLimitByTenant limits requests per tenant, falling back to the client
// IP for calls without a tenant.
func RateLimitByTenant(rl *RateLimiter) gin.HandlerFunc {
	return RateLimitByKey(rl, func(c *gin.Context) string {
		if tenantID, ok := GetTenantID(c); ok {
			return "tenant:" + tenantID.String()
		}
		return "ip:" + c.ClientIP()
	})
}

// RateLimitByKey limits requests per key computed by keyFunc
func RateLimitByKey(rl *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retryAfter := rl.Reserve(keyFunc(c))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			resp := dto.NewErrorResponseWithRequestID(dto.ErrCodeRateLimited, "Too many requests", GetRequestID(c))
			resp.Error.RetryAfter = retryAfter
			c.AbortWithStatusJSON(http.StatusTooManyRequests, resp)
			return
		}
		c.Next()
	}
}
