package middleware

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/coccinelle/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateLimitedRouter(t *testing.T, rps float64, burst int) *gin.Engine {
	t.Helper()
	rl, err := NewRateLimiter(rps, burst, 16)
	require.NoError(t, err)

	router := gin.New()
	router.Use(
		RequestID(),
		TenantMiddlewareWithConfig(TenantMiddlewareConfig{Required: false}),
		RateLimitByTenant(rl),
	)
	router.GET("/api/v1/inventory/products", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestRateLimitByTenant_BurstExhausted(t *testing.T) {
	router := rateLimitedRouter(t, 0.5, 2)
	header := http.Header{TenantHeaderKey: {uuid.NewString()}}

	for i := 0; i < 2; i++ {
		w := serve(router, http.MethodGet, "/api/v1/inventory/products", header)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := serve(router, http.MethodGet, "/api/v1/inventory/products", header)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)

	errInfo := decodeError(t, w)
	assert.Equal(t, dto.ErrCodeRateLimited, errInfo.Code)
	assert.Equal(t, retryAfter, errInfo.RetryAfter)
}

func TestRateLimitByTenant_TenantsAreIndependent(t *testing.T) {
	router := rateLimitedRouter(t, 0.1, 1)
	first := http.Header{TenantHeaderKey: {uuid.NewString()}}
	second := http.Header{TenantHeaderKey: {uuid.NewString()}}

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/v1/inventory/products", first).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/api/v1/inventory/products", first).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/v1/inventory/products", second).Code)
}

func TestRateLimiter_Reserve(t *testing.T) {
	rl, err := NewRateLimiter(1, 0, 0)
	require.NoError(t, err)

	ok, _ := rl.Reserve("k")
	assert.True(t, ok)
	ok, retryAfter := rl.Reserve("k")
	assert.False(t, ok)
	assert.Equal(t, 1, retryAfter)

	ok, _ = rl.Reserve("other")
	assert.True(t, ok)
}
