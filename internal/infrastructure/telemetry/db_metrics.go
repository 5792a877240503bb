package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig configures statement and pool metrics
type DBMetricsConfig struct {
	Enabled            bool
	SlowQueryThreshold time.Duration
}

// DefaultDBMetricsConfig enables metrics with a 200ms slow query threshold
func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: 200 * time.Millisecond,
	}
}

// DBMetrics records per-statement counters and observes the connection
// pool whenever the reader collects.
type DBMetrics struct {
	queries   *Counter
	errors    *Counter
	slow      *Counter
	latency   *Histogram
	poolConns metric.Int64ObservableGauge
	poolMax   metric.Int64ObservableGauge

	config       DBMetricsConfig
	logger       *zap.Logger
	registration metric.Registration
	stopOnce     sync.Once
}

func newDBMetrics(meter metric.Meter, pool *sql.DB, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = DefaultDBMetricsConfig().SlowQueryThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &DBMetrics{config: cfg, logger: logger}

	var err error
	if m.queries, err = NewCounter(meter, "db_query_total", "Statements executed", "{query}"); err != nil {
		return nil, err
	}
	if m.errors, err = NewCounter(meter, "db_query_errors_total", "Statements that failed", "{query}"); err != nil {
		return nil, err
	}
	if m.slow, err = NewCounter(meter, "db_slow_query_total", "Statements slower than the slow query threshold", "{query}"); err != nil {
		return nil, err
	}
	if m.latency, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Statement latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}

	if pool == nil {
		return m, nil
	}
	if m.poolConns, err = meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Pool connections by state"),
		metric.WithUnit("{connection}"),
	); err != nil {
		return nil, err
	}
	if m.poolMax, err = meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Pool connection limit, 0 when unlimited"),
		metric.WithUnit("{connection}"),
	); err != nil {
		return nil, err
	}
	m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := pool.Stats()
		o.ObserveInt64(m.poolMax, int64(stats.MaxOpenConnections))
		o.ObserveInt64(m.poolConns, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(m.poolConns, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(m.poolConns, int64(stats.OpenConnections), metric.WithAttributes(AttrDBState.String("open")))
		return nil
	}, m.poolConns, m.poolMax)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordQuery records one finished statement. A missing row is not an
// error here, repositories translate it into a NotFound result.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, elapsed time.Duration, err error) {
	if table == "" {
		table = "unknown"
	}
	op := AttrDBOperation.String(operation)
	tbl := AttrDBTable.String(table)

	m.queries.Inc(ctx, op, tbl)
	m.latency.RecordDuration(ctx, elapsed, op)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		m.errors.Inc(ctx, op, tbl)
	}
	if elapsed > m.config.SlowQueryThreshold {
		m.slow.Inc(ctx, tbl)
	}
}

func (m *DBMetrics) observe(db *gorm.DB, op string) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	elapsed, _ := queryElapsed(db)
	m.RecordQuery(ctx, op, db.Statement.Table, elapsed, db.Error)
}

// Stop unregisters the pool observer. Safe to call more than once.
func (m *DBMetrics) Stop() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() {
		if m.registration == nil {
			return
		}
		if err := m.registration.Unregister(); err != nil {
			m.logger.Warn("Failed to unregister pool metrics", zap.Error(err))
		}
	})
}

// RegisterDBMetrics attaches statement metrics to db. It returns nil when
// metrics are disabled; the caller stops the result on shutdown.
func RegisterDBMetrics(db *gorm.DB, meterProvider *MeterProvider, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled || meterProvider == nil || !meterProvider.IsEnabled() {
		logger.Debug("Database metrics disabled")
		return nil, nil
	}
	return attachDBMetrics(db, meterProvider.Meter("coccinelle/db"), cfg, logger)
}

func attachDBMetrics(db *gorm.DB, meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	pool, err := db.DB()
	if err != nil {
		return nil, err
	}
	m, err := newDBMetrics(meter, pool, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := registerAround(db, "db_metrics", m.observe); err != nil {
		m.Stop()
		return nil, err
	}

	logger.Info("Database metrics registered",
		zap.Duration("slow_query_threshold", m.config.SlowQueryThreshold),
	)
	return m, nil
}
