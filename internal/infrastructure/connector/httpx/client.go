// Package httpx is the REST client shared by the platform connectors:
// JSON bodies, a token-bucket limiter, retries of transient failures
// honoring Retry-After, and request metrics.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxResponseSize limits the response body size to prevent memory exhaustion
const maxResponseSize = 10 * 1024 * 1024

// Defaults applied by New
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffMax  = 30 * time.Second
)

// Config configures a Client
type Config struct {
	System      integration.SystemType
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// QPS limits outgoing requests; zero disables the limiter.
	QPS   float64
	Burst int
	// Headers are set on every request
	Headers map[string]string
	// Authorize decorates every request, typically with a bearer token
	Authorize func(req *http.Request)
}

// Client performs JSON requests against one platform API
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	metrics *Metrics
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		metrics: DefaultMetrics(),
		logger:  zap.NewNop(),
		sleep:   sleepContext,
	}
	if cfg.QPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.QPS), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request describes one API call
type Request struct {
	// Operation names the call in errors, logs and metrics
	Operation string
	Method    string
	Path      string
	Query     url.Values
	Body      any
	// ResponseHeader receives the headers of a successful response
	ResponseHeader *http.Header
}

// Do sends req and decodes a JSON response into out when out is not nil.
//
// 404 returns integration.ErrExternalNotFound. 429, 5xx and network
// failures are retried and end as a transient ExternalSystemError; any
// other status is a permanent ExternalSystemError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "connector."+string(c.cfg.System), req.Operation,
		telemetry.WithAttribute("http.method", req.Method),
		telemetry.WithAttribute("http.path", req.Path),
	)
	defer span.End()

	var payload []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", c.cfg.System, err)
		}
		payload = b
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt, lastErr)
			c.logger.Debug("Retrying platform request",
				zap.String("system", string(c.cfg.System)),
				zap.String("operation", req.Operation),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(lastErr),
			)
			if err := c.sleep(ctx, wait); err != nil {
				telemetry.RecordError(span, lastErr)
				return lastErr
			}
		}

		body, err := c.once(ctx, req, payload)
		if err == nil {
			if out != nil && len(bytes.TrimSpace(body)) > 0 {
				if err := json.Unmarshal(body, out); err != nil {
					err = &integration.ExternalSystemError{
						System:    c.cfg.System,
						Operation: req.Operation,
						Err:       fmt.Errorf("%w: %v", integration.ErrInvalidResponse, err),
					}
					telemetry.RecordError(span, err)
					return err
				}
			}
			telemetry.SetOK(span)
			return nil
		}
		lastErr = err
		if !integration.IsTransient(err) {
			break
		}
	}
	telemetry.RecordError(span, lastErr)
	return lastErr
}

func (c *Client) once(ctx context.Context, req Request, payload []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	target := c.cfg.BaseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", c.cfg.System, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	if c.cfg.Authorize != nil {
		c.cfg.Authorize(httpReq)
	}

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.observe(c.cfg.System, req.Operation, "network_error", time.Since(started))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &integration.ExternalSystemError{
			System:    c.cfg.System,
			Operation: req.Operation,
			Transient: true,
			Err:       err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	c.metrics.observe(c.cfg.System, req.Operation, strconv.Itoa(resp.StatusCode), time.Since(started))
	if err != nil {
		return nil, &integration.ExternalSystemError{
			System:     c.cfg.System,
			Operation:  req.Operation,
			StatusCode: resp.StatusCode,
			Transient:  true,
			Err:        fmt.Errorf("failed to read response: %w", err),
		}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if req.ResponseHeader != nil {
			*req.ResponseHeader = resp.Header.Clone()
		}
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s %s", integration.ErrExternalNotFound, c.cfg.System, req.Operation)
	default:
		return nil, &integration.ExternalSystemError{
			System:     c.cfg.System,
			Operation:  req.Operation,
			StatusCode: resp.StatusCode,
			Transient:  IsTransientStatus(resp.StatusCode),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Err:        errors.New(snippet(body)),
		}
	}
}

// backoff returns the wait before attempt (1-based): exponential from
// BackoffBase, capped at BackoffMax, and never shorter than the
// platform's Retry-After.
func (c *Client) backoff(attempt int, lastErr error) time.Duration {
	wait := c.cfg.BackoffBase << (attempt - 1)
	if wait <= 0 || wait > c.cfg.BackoffMax {
		wait = c.cfg.BackoffMax
	}
	var ese *integration.ExternalSystemError
	if errors.As(lastErr, &ese) && ese.RetryAfter > wait {
		wait = ese.RetryAfter
	}
	return wait
}

// IsTransientStatus reports whether a status is worth retrying
func IsTransientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500
}

// ParseRetryAfter parses a Retry-After header given in seconds or as an
// HTTP date. It returns 0 when absent or malformed.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// BearerToken returns an Authorize func setting a bearer token
func BearerToken(token string) func(req *http.Request) {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// BasicAuth returns an Authorize func setting basic credentials
func BasicAuth(user, password string) func(req *http.Request) {
	return func(req *http.Request) {
		req.SetBasicAuth(user, password)
	}
}
