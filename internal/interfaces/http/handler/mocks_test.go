package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/coccinelle/backend/internal/infrastructure/scheduler"
	"github.com/coccinelle/backend/internal/interfaces/http/dto"
	"github.com/coccinelle/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter wires the request id and tenant middleware the handlers
// depend on
func newTestRouter() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.TenantMiddleware())
	return r
}

func doRequest(r *gin.Engine, method, path string, tenantID uuid.UUID, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, _ := json.Marshal(b)
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenantID != uuid.Nil {
		req.Header.Set(middleware.TenantHeaderKey, tenantID.String())
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, data any) dto.Response {
	t.Helper()
	var resp dto.Response
	if data != nil {
		resp.Data = data
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

type mockInventoryReader struct {
	mock.Mock
}

func (m *mockInventoryReader) GetProduct(ctx context.Context, tenantID uuid.UUID, productID string) (*inventory.Product, error) {
	args := m.Called(ctx, tenantID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Product), args.Error(1)
}

func (m *mockInventoryReader) ListProducts(ctx context.Context, tenantID uuid.UUID, opts inventory.ListOptions) (shared.Paginated[inventory.Product], error) {
	args := m.Called(ctx, tenantID, opts)
	return args.Get(0).(shared.Paginated[inventory.Product]), args.Error(1)
}

func (m *mockInventoryReader) SearchProducts(ctx context.Context, tenantID uuid.UUID, query string, opts inventory.SearchOptions) ([]inventory.Product, error) {
	args := m.Called(ctx, tenantID, query, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]inventory.Product), args.Error(1)
}

func (m *mockInventoryReader) CheckAvailability(ctx context.Context, tenantID uuid.UUID, productID, variantID string) (inventory.StockInfo, error) {
	args := m.Called(ctx, tenantID, productID, variantID)
	return args.Get(0).(inventory.StockInfo), args.Error(1)
}

func (m *mockInventoryReader) CheckAvailabilityBySku(ctx context.Context, tenantID uuid.UUID, sku string) (inventory.StockInfo, error) {
	args := m.Called(ctx, tenantID, sku)
	return args.Get(0).(inventory.StockInfo), args.Error(1)
}

func (m *mockInventoryReader) CheckBulkAvailability(ctx context.Context, tenantID uuid.UUID, items []inventory.StockItemRef) ([]inventory.StockInfo, error) {
	args := m.Called(ctx, tenantID, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]inventory.StockInfo), args.Error(1)
}

func (m *mockInventoryReader) UpdateStock(ctx context.Context, tenantID uuid.UUID, update inventory.StockUpdate) (inventory.StockInfo, error) {
	args := m.Called(ctx, tenantID, update)
	return args.Get(0).(inventory.StockInfo), args.Error(1)
}

type mockReservationManager struct {
	mock.Mock
}

func (m *mockReservationManager) ReserveProduct(ctx context.Context, tenantID uuid.UUID, req inventory.ReserveRequest) (*inventory.Reservation, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Reservation), args.Error(1)
}

func (m *mockReservationManager) CancelReservation(ctx context.Context, tenantID, reservationID uuid.UUID) error {
	return m.Called(ctx, tenantID, reservationID).Error(0)
}

func (m *mockReservationManager) FulfillReservation(ctx context.Context, tenantID, reservationID uuid.UUID) (*inventory.Reservation, error) {
	args := m.Called(ctx, tenantID, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Reservation), args.Error(1)
}

func (m *mockReservationManager) ExtendReservation(ctx context.Context, tenantID, reservationID uuid.UUID, additionalMinutes int) (*inventory.Reservation, error) {
	args := m.Called(ctx, tenantID, reservationID, additionalMinutes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Reservation), args.Error(1)
}

func (m *mockReservationManager) GetReservation(ctx context.Context, tenantID, reservationID uuid.UUID) (*inventory.Reservation, error) {
	args := m.Called(ctx, tenantID, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Reservation), args.Error(1)
}

func (m *mockReservationManager) GetCustomerReservations(ctx context.Context, tenantID uuid.UUID, customerID string) ([]inventory.Reservation, error) {
	args := m.Called(ctx, tenantID, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]inventory.Reservation), args.Error(1)
}

type mockCustomerSyncer struct {
	mock.Mock
}

func (m *mockCustomerSyncer) SyncToExternal(ctx context.Context, tenantID uuid.UUID, localID string, system integration.SystemType) (string, error) {
	args := m.Called(ctx, tenantID, localID, system)
	return args.String(0), args.Error(1)
}

func (m *mockCustomerSyncer) SyncFromExternal(ctx context.Context, tenantID uuid.UUID, externalID string, system integration.SystemType) (string, error) {
	args := m.Called(ctx, tenantID, externalID, system)
	return args.String(0), args.Error(1)
}

func (m *mockCustomerSyncer) SyncAll(ctx context.Context, tenantID uuid.UUID, system integration.SystemType) (*integration.SyncResult, error) {
	args := m.Called(ctx, tenantID, system)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SyncResult), args.Error(1)
}

type mockSyncJobQueue struct {
	mock.Mock
}

func (m *mockSyncJobQueue) ScheduleSync(tenantID uuid.UUID, system integration.SystemType) (*scheduler.CRMSyncJob, error) {
	args := m.Called(tenantID, system)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduler.CRMSyncJob), args.Error(1)
}

func (m *mockSyncJobQueue) GetJob(id uuid.UUID) (*scheduler.CRMSyncJob, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduler.CRMSyncJob), args.Error(1)
}

func (m *mockSyncJobQueue) GetJobHistoryByTenant(tenantID uuid.UUID, limit int) []*scheduler.CRMSyncJob {
	return m.Called(tenantID, limit).Get(0).([]*scheduler.CRMSyncJob)
}

type mockHealthChecker struct {
	mock.Mock
}

func (m *mockHealthChecker) CheckAllSystemsHealth(ctx context.Context, tenantID uuid.UUID) ([]integration.Health, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.Health), args.Error(1)
}

func (m *mockHealthChecker) CheckSystemHealth(ctx context.Context, tenantID uuid.UUID, system integration.SystemType) integration.Health {
	return m.Called(ctx, tenantID, system).Get(0).(integration.Health)
}
