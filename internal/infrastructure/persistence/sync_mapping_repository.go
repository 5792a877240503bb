package persistence

import (
	"context"
	"errors"

	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSyncMappingRepository implements integration.MappingRepository using GORM
type GormSyncMappingRepository struct {
	db *gorm.DB
}

// NewGormSyncMappingRepository creates a new GormSyncMappingRepository
func NewGormSyncMappingRepository(db *gorm.DB) *GormSyncMappingRepository {
	return &GormSyncMappingRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormSyncMappingRepository) WithTx(tx *gorm.DB) *GormSyncMappingRepository {
	return &GormSyncMappingRepository{db: tx}
}

// FindByLocalID finds the mapping of a local record on a system
func (r *GormSyncMappingRepository) FindByLocalID(ctx context.Context, tenantID uuid.UUID, localID string, system integration.SystemType) (*integration.SyncMapping, error) {
	return r.findOne(ctx, "tenant_id = ? AND local_entity_id = ? AND external_system = ?", tenantID, localID, string(system))
}

// FindByExternalID finds the mapping of an external record
func (r *GormSyncMappingRepository) FindByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string, system integration.SystemType) (*integration.SyncMapping, error) {
	return r.findOne(ctx, "tenant_id = ? AND external_id = ? AND external_system = ?", tenantID, externalID, string(system))
}

// Upsert inserts the mapping, or updates the row sharing its
// (tenant_id, local_entity_id, external_system) key. m.ID and
// m.CreatedAt are refreshed from the stored row.
func (r *GormSyncMappingRepository) Upsert(ctx context.Context, m *integration.SyncMapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	model := models.SyncMappingModelFromDomain(m)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "local_entity_id"}, {Name: "external_system"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"external_id", "integration_id", "last_synced_at", "sync_status", "last_error", "updated_at",
		}),
	}).Create(model).Error; err != nil {
		return err
	}
	stored, err := r.FindByLocalID(ctx, m.TenantID, m.LocalEntityID, m.ExternalSystem)
	if err != nil {
		return err
	}
	m.ID = stored.ID
	m.CreatedAt = stored.CreatedAt
	return nil
}

// ListByIntegration lists every mapping of a tenant on a system
func (r *GormSyncMappingRepository) ListByIntegration(ctx context.Context, tenantID uuid.UUID, system integration.SystemType) ([]integration.SyncMapping, error) {
	var mappingModels []models.SyncMappingModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND external_system = ?", tenantID, string(system)).
		Order("created_at ASC").
		Find(&mappingModels).Error; err != nil {
		return nil, err
	}
	mappings := make([]integration.SyncMapping, len(mappingModels))
	for i, model := range mappingModels {
		mappings[i] = *model.ToDomain()
	}
	return mappings, nil
}

func (r *GormSyncMappingRepository) findOne(ctx context.Context, where string, args ...any) (*integration.SyncMapping, error) {
	var model models.SyncMappingModel
	if err := r.db.WithContext(ctx).Where(where, args...).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure GormSyncMappingRepository implements integration.MappingRepository
var _ integration.MappingRepository = (*GormSyncMappingRepository)(nil)
