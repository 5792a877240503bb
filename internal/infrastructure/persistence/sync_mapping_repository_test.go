package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormSyncMappingRepository_Upsert(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormSyncMappingRepository(db)
	ctx := context.Background()
	tenantID, integrationID := uuid.New(), uuid.New()

	first, err := integration.NewSyncMapping(tenantID, integrationID, "cust_emma", "hs-101", integration.SystemHubSpot)
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, first))

	second, err := integration.NewSyncMapping(tenantID, integrationID, "cust_emma", "hs-101", integration.SystemHubSpot)
	require.NoError(t, err)
	second.MarkSynced(time.Now().Add(time.Minute))
	require.NoError(t, repo.Upsert(ctx, second))

	assert.Equal(t, first.ID, second.ID, "upsert keeps the original row")

	all, err := repo.ListByIntegration(ctx, tenantID, integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	byExternal, err := repo.FindByExternalID(ctx, tenantID, "hs-101", integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Equal(t, "cust_emma", byExternal.LocalEntityID)
	assert.Equal(t, integration.MappingSynced, byExternal.SyncStatus)

	_, err = repo.FindByLocalID(ctx, tenantID, "cust_emma", integration.SystemSalesforce)
	assert.ErrorIs(t, err, integration.ErrMappingNotFound)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormSyncMappingRepository_Upsert_RejectsInvalid(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormSyncMappingRepository(db)

	err := repo.Upsert(context.Background(), &integration.SyncMapping{TenantID: uuid.New(), ExternalSystem: integration.SystemHubSpot})
	assert.ErrorIs(t, err, integration.ErrInvalidMapping)
}

func TestGormSyncMappingRepository_ExternalIDIsUnique(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormSyncMappingRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	a, err := integration.NewSyncMapping(tenantID, uuid.New(), "cust_emma", "hs-101", integration.SystemHubSpot)
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, a))

	b, err := integration.NewSyncMapping(tenantID, uuid.New(), "cust_lea", "hs-101", integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Error(t, repo.Upsert(ctx, b))
}

func TestGormSyncMappingRepository_Upsert_SQL(t *testing.T) {
	db, mock := newMockDatabase(t)
	defer db.Close()
	repo := NewGormSyncMappingRepository(db.DB)
	tenantID := uuid.New()

	m, err := integration.NewSyncMapping(tenantID, uuid.New(), "cust_emma", "hs-101", integration.SystemHubSpot)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO "crm_sync_mappings" .* ON CONFLICT \("tenant_id","local_entity_id","external_system"\) DO UPDATE SET "external_id"="excluded"."external_id"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "crm_sync_mappings" WHERE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "local_entity_id", "external_id", "external_system", "sync_status"}).
			AddRow(m.ID.String(), tenantID.String(), "cust_emma", "hs-101", "hubspot", "synced"))

	require.NoError(t, repo.Upsert(context.Background(), m))
	assert.NoError(t, mock.ExpectationsWereMet())
}
