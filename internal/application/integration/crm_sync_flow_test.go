package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	appintegration "github.com/coccinelle/backend/internal/application/integration"
	"github.com/coccinelle/backend/internal/domain/customer"
	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/infrastructure/connector/httpx"
	"github.com/coccinelle/backend/internal/infrastructure/connector/hubspot"
	"github.com/coccinelle/backend/internal/infrastructure/persistence"
	"github.com/coccinelle/backend/internal/infrastructure/security"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeHubSpot serves the contact endpoints used by a push and a pull
type fakeHubSpot struct {
	creates atomic.Int32
	patches atomic.Int32
}

func (h *fakeHubSpot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const base = "/crm/v3/objects/contacts"
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Query().Get("idProperty") == "email":
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":"error","message":"resource not found"}`))
	case r.Method == http.MethodPost && r.URL.Path == base:
		h.creates.Add(1)
		var body struct {
			Properties map[string]string `json:"properties"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeContact(w, "901", body.Properties)
	case r.Method == http.MethodPatch && r.URL.Path == base+"/901":
		h.patches.Add(1)
		var body struct {
			Properties map[string]string `json:"properties"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeContact(w, "901", body.Properties)
	case r.Method == http.MethodGet && r.URL.Path == base+"/901":
		writeContact(w, "901", map[string]string{
			"email":     "camille.durand@example.fr",
			"firstname": "Camille",
			"lastname":  "Durand-Petit",
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeContact(w http.ResponseWriter, id string, props map[string]string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":         id,
		"properties": props,
		"createdAt":  "2026-01-05T09:30:00.000Z",
		"updatedAt":  "2026-01-05T09:30:00.000Z",
	})
}

func TestCRMSync_HubSpotRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := persistence.NewSQLiteDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	hub := &fakeHubSpot{}
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	sealer, err := security.NewSecretBox("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	configs := persistence.NewGormIntegrationConfigRepository(db.DB, sealer)
	customers := persistence.NewGormCustomerRepository(db.DB)
	mappings := persistence.NewGormSyncMappingRepository(db.DB)

	tenantID := uuid.New()
	cfg, err := integration.NewIntegrationConfig(tenantID, integration.SystemHubSpot,
		map[string]string{hubspot.CredentialAccessToken: "pat-na1-test"},
		map[string]string{hubspot.SettingAPIURL: server.URL},
	)
	require.NoError(t, err)
	require.NoError(t, configs.Save(ctx, cfg))

	factory, err := appintegration.NewConnectorFactory(configs, 0, zap.NewNop())
	require.NoError(t, err)
	factory.Register(integration.SystemHubSpot, hubspot.Builder(httpx.Config{MaxRetries: 0}, httpx.WithMetrics(httpx.NewMetrics(nil))))

	svc := appintegration.NewCRMSyncService(
		factory, configs, customers, mappings,
		persistence.NewGormSyncTransactionScope(db.DB),
		nil,
		appintegration.DefaultCRMSyncConfig(),
		zap.NewNop(),
	)

	local, err := customer.New(tenantID, customer.Input{
		FirstName: "Camille", LastName: "Durand", Email: "Camille.Durand@example.fr",
	})
	require.NoError(t, err)
	require.NoError(t, customers.Save(ctx, local))

	externalID, err := svc.SyncToExternal(ctx, tenantID, local.ID, integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Equal(t, "901", externalID)

	externalID, err = svc.SyncToExternal(ctx, tenantID, local.ID, integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Equal(t, "901", externalID)

	assert.Equal(t, int32(1), hub.creates.Load())
	assert.Equal(t, int32(1), hub.patches.Load())

	rows, err := mappings.ListByIntegration(ctx, tenantID, integration.SystemHubSpot)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, local.ID, rows[0].LocalEntityID)
	assert.Equal(t, cfg.ID, rows[0].IntegrationID)

	localID, err := svc.SyncFromExternal(ctx, tenantID, "901", integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Equal(t, local.ID, localID)

	pulled, err := customers.FindByID(ctx, tenantID, localID)
	require.NoError(t, err)
	assert.Equal(t, "Durand-Petit", pulled.LastName)
	assert.Equal(t, "901", pulled.ExternalID)

	rows, err = mappings.ListByIntegration(ctx, tenantID, integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	stored, err := db.DB.Raw("SELECT credentials FROM crm_integrations WHERE tenant_id = ?", tenantID).Rows()
	require.NoError(t, err)
	defer stored.Close()
	require.True(t, stored.Next())
	var sealed string
	require.NoError(t, stored.Scan(&sealed))
	assert.False(t, strings.Contains(sealed, "pat-na1-test"), "credentials are stored sealed")
}
