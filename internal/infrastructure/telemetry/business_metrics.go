// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/shared"
)

// BusinessMetrics tracks reservation activity, expiry sweeps, CRM sync
// and stock health. It subscribes to the event bus for the counters and
// polls an InventoryMetricsProvider for the gauges.
type BusinessMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	reservationTotal   *Counter
	reservedUnitsTotal *Counter
	sweepExpiredTotal  *Counter
	sweepFailedTotal   *Counter
	crmSyncedTotal     *Counter
	crmSyncRunTotal    *Counter
	crmSyncFailedTotal *Counter
	sweepDuration      *Histogram

	// Gauge metrics (point-in-time values)
	activeReservedQuantity *Gauge
	lowStockCount          *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	inventoryProvider InventoryMetricsProvider
}

// InventoryMetricsProvider provides stock data for periodic metrics collection.
type InventoryMetricsProvider interface {
	// GetActiveReservedQuantity returns the units held by active reservations for a tenant
	GetActiveReservedQuantity(ctx context.Context, tenantID uuid.UUID) (int64, error)

	// GetLowStockCount returns how many stock items are at or below the low stock threshold
	GetLowStockCount(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// BusinessMetricsConfig holds configuration for business metrics.
type BusinessMetricsConfig struct {
	Meter             metric.Meter
	Logger            *zap.Logger
	CollectInterval   time.Duration // Default: 5 minutes
	InventoryProvider InventoryMetricsProvider
}

// NewBusinessMetrics creates a new BusinessMetrics instance.
func NewBusinessMetrics(cfg BusinessMetricsConfig) (*BusinessMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BusinessMetrics{
		meter:             cfg.Meter,
		logger:            logger,
		stopChan:          make(chan struct{}),
		inventoryProvider: cfg.InventoryProvider,
	}

	counters := []struct {
		dst        **Counter
		name, desc string
		unit       string
	}{
		{&bm.reservationTotal, "coccinelle_reservation_total", "Reservation transitions by outcome", "{reservations}"},
		{&bm.reservedUnitsTotal, "coccinelle_reserved_units_total", "Units placed on hold", "{units}"},
		{&bm.sweepExpiredTotal, "coccinelle_reservation_sweep_expired_total", "Reservations expired by the sweeper", "{reservations}"},
		{&bm.sweepFailedTotal, "coccinelle_reservation_sweep_failed_total", "Reservations the sweeper failed to expire", "{reservations}"},
		{&bm.crmSyncedTotal, "coccinelle_crm_customer_synced_total", "Customers synced with an external CRM", "{customers}"},
		{&bm.crmSyncRunTotal, "coccinelle_crm_sync_run_total", "Bulk CRM sync runs by final status", "{runs}"},
		{&bm.crmSyncFailedTotal, "coccinelle_crm_sync_item_failed_total", "Customers that failed in bulk CRM sync runs", "{customers}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(cfg.Meter, c.name, c.desc, c.unit)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	var err error
	bm.sweepDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "coccinelle_reservation_sweep_duration_seconds",
		Description: "Duration of reservation expiry sweeps",
		Unit:        "s",
		Boundaries:  SweepDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	bm.activeReservedQuantity, err = NewGauge(
		cfg.Meter,
		"coccinelle_reservation_active_units",
		"Units currently held by active reservations",
		"{units}",
	)
	if err != nil {
		return nil, err
	}

	bm.lowStockCount, err = NewGauge(
		cfg.Meter,
		"coccinelle_inventory_low_stock_count",
		"Stock items at or below the low stock threshold",
		"{items}",
	)
	if err != nil {
		return nil, err
	}

	return bm, nil
}

// =============================================================================
// Event-driven counters
// =============================================================================

// Handle implements shared.EventHandler
func (bm *BusinessMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *inventory.ReservationEvent:
		bm.RecordReservation(ctx, e.TenantID(), e.EventType(), e.Quantity)
	case *integration.CustomerSyncedEvent:
		bm.crmSyncedTotal.Inc(ctx,
			AttrTenantID.String(e.TenantID().String()),
			AttrSystem.String(string(e.System)),
			AttrDirection.String(string(e.Direction)),
		)
	}
	return nil
}

// EventTypes implements shared.EventHandler
func (bm *BusinessMetrics) EventTypes() []string {
	return []string{
		inventory.EventTypeReservationPlaced,
		inventory.EventTypeReservationExtended,
		inventory.EventTypeReservationCancelled,
		inventory.EventTypeReservationExpired,
		inventory.EventTypeReservationFulfilled,
		integration.EventTypeCustomerSynced,
	}
}

// RecordReservation counts one reservation transition
func (bm *BusinessMetrics) RecordReservation(ctx context.Context, tenantID uuid.UUID, eventType string, quantity int) {
	bm.reservationTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrOutcome.String(eventType),
	)
	if eventType == inventory.EventTypeReservationPlaced {
		bm.reservedUnitsTotal.Add(ctx, int64(quantity), AttrTenantID.String(tenantID.String()))
	}
}

// RecordReservationSweep records the outcome of an expiry sweep
func (bm *BusinessMetrics) RecordReservationSweep(ctx context.Context, stats *inventory.ExpiredReservationStats, duration time.Duration) {
	bm.sweepDuration.RecordDuration(ctx, duration)
	if stats == nil {
		return
	}
	if stats.Expired > 0 {
		bm.sweepExpiredTotal.Add(ctx, int64(stats.Expired))
	}
	if stats.Failed > 0 {
		bm.sweepFailedTotal.Add(ctx, int64(stats.Failed))
	}
}

// RecordSyncRun records a finished bulk CRM sync
func (bm *BusinessMetrics) RecordSyncRun(ctx context.Context, result *integration.SyncResult) {
	attrs := []attribute.KeyValue{
		AttrTenantID.String(result.TenantID.String()),
		AttrSystem.String(string(result.System)),
	}
	bm.crmSyncRunTotal.Inc(ctx, append(attrs, AttrOutcome.String(string(result.FinalStatus())))...)
	if n := len(result.Errors); n > 0 {
		bm.crmSyncFailedTotal.Add(ctx, int64(n), attrs...)
	}
}

// =============================================================================
// Gauges
// =============================================================================

// RecordActiveReservedQuantity records the units held by active reservations.
func (bm *BusinessMetrics) RecordActiveReservedQuantity(ctx context.Context, tenantID uuid.UUID, quantity int64) {
	bm.activeReservedQuantity.Record(ctx, quantity,
		AttrTenantID.String(tenantID.String()),
	)
}

// RecordLowStockCount records the number of stock items at or below the threshold.
func (bm *BusinessMetrics) RecordLowStockCount(ctx context.Context, tenantID uuid.UUID, count int64) {
	bm.lowStockCount.Record(ctx, count,
		AttrTenantID.String(tenantID.String()),
	)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// TenantProvider provides tenant IDs for periodic metrics collection.
type TenantProvider interface {
	GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// StartPeriodicCollection starts periodic collection of gauge metrics.
// This is non-blocking - use Stop() to stop collection.
func (bm *BusinessMetrics) StartPeriodicCollection(ctx context.Context, tenantProvider TenantProvider, interval time.Duration) {
	bm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		go bm.runPeriodicCollection(ctx, tenantProvider, interval)
	})
}

func (bm *BusinessMetrics) runPeriodicCollection(ctx context.Context, tenantProvider TenantProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	bm.collectInventoryMetrics(ctx, tenantProvider)

	for {
		select {
		case <-bm.stopChan:
			bm.logger.Info("Stopping periodic business metrics collection")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			bm.collectInventoryMetrics(ctx, tenantProvider)
		}
	}
}

// collectInventoryMetrics collects stock gauges for all tenants.
func (bm *BusinessMetrics) collectInventoryMetrics(ctx context.Context, tenantProvider TenantProvider) {
	if bm.inventoryProvider == nil {
		bm.logger.Debug("No inventory provider configured, skipping inventory metrics collection")
		return
	}

	tenantIDs, err := tenantProvider.GetActiveTenantIDs(ctx)
	if err != nil {
		bm.logger.Error("Failed to get tenant IDs for metrics collection", zap.Error(err))
		return
	}

	for _, tenantID := range tenantIDs {
		bm.collectTenantInventoryMetrics(ctx, tenantID)
	}
}

func (bm *BusinessMetrics) collectTenantInventoryMetrics(ctx context.Context, tenantID uuid.UUID) {
	reserved, err := bm.inventoryProvider.GetActiveReservedQuantity(ctx, tenantID)
	if err != nil {
		bm.logger.Warn("Failed to get reserved quantity for tenant",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	} else {
		bm.RecordActiveReservedQuantity(ctx, tenantID, reserved)
	}

	lowStock, err := bm.inventoryProvider.GetLowStockCount(ctx, tenantID)
	if err != nil {
		bm.logger.Warn("Failed to get low stock count for tenant",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	} else {
		bm.RecordLowStockCount(ctx, tenantID, lowStock)
	}
}

// Stop stops the periodic collection.
func (bm *BusinessMetrics) Stop() {
	bm.stopOnce.Do(func() {
		close(bm.stopChan)
	})
}

var _ shared.EventHandler = (*BusinessMetrics)(nil)

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewBusinessMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
