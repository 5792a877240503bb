package middleware

import (
	"errors"
	"time"

	"github.com/coccinelle/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// responseSizeBuckets spans small JSON errors up to a full catalog page
var responseSizeBuckets = []float64{128, 512, 1 << 10, 4 << 10, 16 << 10, 64 << 10, 256 << 10, 1 << 20}

type httpInstruments struct {
	requests *telemetry.Counter
	latency  *telemetry.Histogram
	size     *telemetry.Histogram
	inflight metric.Int64UpDownCounter
}

func newHTTPInstruments(meter metric.Meter) (*httpInstruments, error) {
	requests, err1 := telemetry.NewCounter(meter,
		"http_server_request_total", "HTTP requests served", "{request}")
	latency, err2 := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	})
	size, err3 := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_response_size_bytes",
		Description: "HTTP response body size",
		Unit:        "By",
		Boundaries:  responseSizeBuckets,
	})
	inflight, err4 := meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("HTTP requests being served"),
		metric.WithUnit("{request}"))
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, err
	}
	return &httpInstruments{requests: requests, latency: latency, size: size, inflight: inflight}, nil
}

// HTTPMetrics counts requests per route, status and tenant, and records
// latency and response size per route. Without a usable meter it only
// calls the next handler.
func HTTPMetrics(meter metric.Meter) gin.HandlerFunc {
	var inst *httpInstruments
	if meter != nil {
		inst, _ = newHTTPInstruments(meter)
	}
	if inst == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		inst.inflight.Add(ctx, 1)
		defer inst.inflight.Add(ctx, -1)

		c.Next()

		route := []attribute.KeyValue{
			telemetry.AttrHTTPMethod.String(c.Request.Method),
			telemetry.AttrHTTPRoute.String(routePattern(c)),
		}
		counted := append(route[:len(route):len(route)], telemetry.AttrHTTPStatusCode.Int(c.Writer.Status()))
		if tenantID, ok := GetTenantID(c); ok {
			counted = append(counted, telemetry.AttrTenantID.String(tenantID.String()))
		}

		inst.requests.Inc(ctx, counted...)
		inst.latency.RecordDuration(ctx, time.Since(start), route...)
		if n := c.Writer.Size(); n > 0 {
			inst.size.Record(ctx, float64(n), route...)
		}
	}
}

// routePattern is the matched route template, so path ids never become
// label values
func routePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}
