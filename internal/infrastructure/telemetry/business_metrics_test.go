package telemetry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/coccinelle/backend/internal/infrastructure/persistence"
	"github.com/coccinelle/backend/internal/infrastructure/telemetry"
)

func newReaderMetrics(t *testing.T, provider telemetry.InventoryMetricsProvider) (*telemetry.BusinessMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:             mp.Meter("test"),
		Logger:            zap.NewNop(),
		InventoryProvider: provider,
	})
	require.NoError(t, err)
	return bm, reader
}

// sumInt64 adds up every data point of an int64 sum or gauge
func sumInt64(reader *sdkmetric.ManualReader, name string) int64 {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		return -1
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func newReservation(t *testing.T, tenantID uuid.UUID, qty int) *inventory.Reservation {
	t.Helper()
	r, err := inventory.NewReservation(tenantID,
		inventory.StockItemRef{ProductID: "prod_001", VariantID: "var_001_38"},
		"cust_emma", qty, 15*time.Minute, "")
	require.NoError(t, err)
	return r
}

func TestNewBusinessMetrics(t *testing.T) {
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  noop.NewMeterProvider().Meter("test"),
		Logger: zap.NewNop(),
	})

	require.NoError(t, err)
	require.NotNil(t, bm)
}

func TestNewBusinessMetrics_NilMeter(t *testing.T) {
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  nil,
		Logger: zap.NewNop(),
	})

	require.Error(t, err)
	assert.Nil(t, bm)
	assert.Equal(t, "NewBusinessMetrics: meter cannot be nil", err.Error())
}

func TestBusinessMetrics_HandleReservationEvents(t *testing.T) {
	bm, reader := newReaderMetrics(t, nil)
	ctx := context.Background()
	tenantID := uuid.New()

	r := newReservation(t, tenantID, 2)
	require.NoError(t, bm.Handle(ctx, inventory.NewReservationPlacedEvent(r)))
	require.NoError(t, bm.Handle(ctx, inventory.NewReservationExtendedEvent(r)))

	assert.Equal(t, int64(2), sumInt64(reader, "coccinelle_reservation_total"))
	assert.Equal(t, int64(2), sumInt64(reader, "coccinelle_reserved_units_total"))
}

func TestBusinessMetrics_HandleCustomerSynced(t *testing.T) {
	bm, reader := newReaderMetrics(t, nil)

	event := integration.NewCustomerSyncedEvent(uuid.New(), integration.SystemHubSpot, integration.SyncPush, "cust_emma", "901", true)
	require.NoError(t, bm.Handle(context.Background(), event))

	assert.Equal(t, int64(1), sumInt64(reader, "coccinelle_crm_customer_synced_total"))
}

func TestBusinessMetrics_HandleIgnoresOtherEvents(t *testing.T) {
	bm, reader := newReaderMetrics(t, nil)

	base := shared.NewEventHeader("something.else", "Thing", "1", uuid.New())
	require.NoError(t, bm.Handle(context.Background(), &base))

	assert.Zero(t, sumInt64(reader, "coccinelle_reservation_total"))
}

func TestBusinessMetrics_EventTypes(t *testing.T) {
	bm, _ := newReaderMetrics(t, nil)
	assert.Contains(t, bm.EventTypes(), inventory.EventTypeReservationExpired)
	assert.Contains(t, bm.EventTypes(), integration.EventTypeCustomerSynced)
}

func TestBusinessMetrics_RecordReservationSweep(t *testing.T) {
	bm, reader := newReaderMetrics(t, nil)
	ctx := context.Background()

	bm.RecordReservationSweep(ctx, &inventory.ExpiredReservationStats{TotalExpired: 4, Expired: 3, Failed: 1}, 20*time.Millisecond)
	bm.RecordReservationSweep(ctx, nil, time.Millisecond)

	assert.Equal(t, int64(3), sumInt64(reader, "coccinelle_reservation_sweep_expired_total"))
	assert.Equal(t, int64(1), sumInt64(reader, "coccinelle_reservation_sweep_failed_total"))
}

func TestBusinessMetrics_RecordSyncRun(t *testing.T) {
	bm, reader := newReaderMetrics(t, nil)

	bm.RecordSyncRun(context.Background(), &integration.SyncResult{
		TenantID: uuid.New(),
		System:   integration.SystemSalesforce,
		Synced:   8,
		Errors:   []integration.ItemError{{CustomerID: "c9", Error: "400"}, {CustomerID: "c10", Error: "400"}},
	})

	assert.Equal(t, int64(1), sumInt64(reader, "coccinelle_crm_sync_run_total"))
	assert.Equal(t, int64(2), sumInt64(reader, "coccinelle_crm_sync_item_failed_total"))
}

// Mock implementations for testing periodic collection

type mockTenantProvider struct {
	tenantIDs []uuid.UUID
	err       error
}

func (m *mockTenantProvider) GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	return m.tenantIDs, m.err
}

type mockInventoryProvider struct {
	reserved  int64
	lowStock  int64
	err       error
	collected atomic.Int32
}

func (m *mockInventoryProvider) GetActiveReservedQuantity(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	m.collected.Add(1)
	if m.err != nil {
		return 0, m.err
	}
	return m.reserved, nil
}

func (m *mockInventoryProvider) GetLowStockCount(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.lowStock, nil
}

func TestBusinessMetrics_PeriodicCollection(t *testing.T) {
	provider := &mockInventoryProvider{reserved: 7, lowStock: 3}
	bm, reader := newReaderMetrics(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bm.StartPeriodicCollection(ctx, &mockTenantProvider{tenantIDs: []uuid.UUID{uuid.New()}}, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		return sumInt64(reader, "coccinelle_inventory_low_stock_count") == 3
	}, time.Second, 5*time.Millisecond)
	bm.Stop()

	assert.Equal(t, int64(7), sumInt64(reader, "coccinelle_reservation_active_units"))
}

func TestBusinessMetrics_PeriodicCollection_ProviderErrors(t *testing.T) {
	provider := &mockInventoryProvider{err: errors.New("db down")}
	bm, reader := newReaderMetrics(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bm.StartPeriodicCollection(ctx, &mockTenantProvider{tenantIDs: []uuid.UUID{uuid.New()}}, 20*time.Millisecond)
	require.Eventually(t, func() bool { return provider.collected.Load() >= 1 }, time.Second, 5*time.Millisecond)
	bm.Stop()

	assert.Zero(t, sumInt64(reader, "coccinelle_reservation_active_units"))
}

func TestBusinessMetrics_PeriodicCollection_NoProvider(t *testing.T) {
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  noop.NewMeterProvider().Meter("test"),
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bm.StartPeriodicCollection(ctx, &mockTenantProvider{tenantIDs: []uuid.UUID{uuid.New()}}, 50*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	bm.Stop()
}

func TestBusinessMetrics_Stop_Idempotent(t *testing.T) {
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter: noop.NewMeterProvider().Meter("test"),
	})
	require.NoError(t, err)

	bm.Stop()
	bm.Stop()
	bm.Stop()
}

func TestGormInventoryMetricsProvider(t *testing.T) {
	database, err := persistence.NewSQLiteDatabase("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	ctx := context.Background()
	tenantID := uuid.New()

	products := persistence.NewGormProductRepository(database.DB)
	require.NoError(t, products.Save(ctx, &inventory.Product{
		ID: "prod_001", TenantID: tenantID, Name: "Robe Fleurie", SKU: "RF-2847",
		Price: shared.NewMoney(89, "EUR"),
		Variants: []inventory.Variant{
			{ID: "var_001_36", ProductID: "prod_001", Name: "T36", SKU: "RF-2847-36", StockQuantity: 1},
			{ID: "var_001_38", ProductID: "prod_001", Name: "T38", SKU: "RF-2847-38", StockQuantity: 12},
		},
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))
	require.NoError(t, products.Save(ctx, &inventory.Product{
		ID: "prod_009", TenantID: tenantID, Name: "Foulard", SKU: "FL-9",
		Price: shared.NewMoney(19, "EUR"), StockQuantity: 4,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))

	reservations := persistence.NewGormReservationRepository(database.DB)
	require.NoError(t, reservations.Create(ctx, newReservation(t, tenantID, 2)))
	require.NoError(t, reservations.Create(ctx, newReservation(t, tenantID, 3)))
	cancelled := newReservation(t, tenantID, 5)
	require.NoError(t, reservations.Create(ctx, cancelled))
	_, err = reservations.TransitionFromActive(ctx, tenantID, cancelled.ID, inventory.ReservationStatusCancelled, time.Now())
	require.NoError(t, err)

	provider := telemetry.NewGormInventoryMetricsProvider(database.DB)

	reserved, err := provider.GetActiveReservedQuantity(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), reserved)

	lowStock, err := provider.GetLowStockCount(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), lowStock, "var_001_36 and prod_009")

	other, err := provider.GetActiveReservedQuantity(ctx, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, other)

	tenants, err := telemetry.NewGormTenantProvider(database.DB).GetActiveTenantIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{tenantID}, tenants)
}
