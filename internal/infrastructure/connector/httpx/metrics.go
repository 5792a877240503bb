package httpx

import (
	"sync"
	"time"

	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metric names
const (
	MetricRequestsTotal          = "connector_requests_total"
	MetricRequestDurationSeconds = "connector_request_duration_seconds"
)

// Metrics records outbound platform calls
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics creates the connector metrics and registers them with reg
// when reg is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRequestsTotal,
			Help: "Outbound platform API requests by system, operation and status",
		}, []string{"system", "operation", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricRequestDurationSeconds,
			Help:    "Outbound platform API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"system", "operation"}),
	}
	if reg != nil {
		reg.MustRegister(m.requestsTotal, m.requestDuration)
	}
	return m
}

var defaultMetrics = sync.OnceValue(func() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
})

// DefaultMetrics returns metrics registered with the default registry
func DefaultMetrics() *Metrics {
	return defaultMetrics()
}

func (m *Metrics) observe(system integration.SystemType, operation, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(string(system), operation, status).Inc()
	m.requestDuration.WithLabelValues(string(system), operation).Observe(d.Seconds())
}
