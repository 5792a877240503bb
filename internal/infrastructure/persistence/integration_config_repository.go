package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CredentialSealer encrypts integration credentials before they are
// written to crm_integrations.credentials.
type CredentialSealer interface {
	Seal(plaintext []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

// GormIntegrationConfigRepository implements integration.ConfigRepository using GORM
type GormIntegrationConfigRepository struct {
	db     *gorm.DB
	sealer CredentialSealer
}

// NewGormIntegrationConfigRepository creates a new GormIntegrationConfigRepository
func NewGormIntegrationConfigRepository(db *gorm.DB, sealer CredentialSealer) *GormIntegrationConfigRepository {
	return &GormIntegrationConfigRepository{db: db, sealer: sealer}
}

// FindByTenantAndSystem finds the tenant's configuration for a system
func (r *GormIntegrationConfigRepository) FindByTenantAndSystem(ctx context.Context, tenantID uuid.UUID, system integration.SystemType) (*integration.IntegrationConfig, error) {
	var model models.IntegrationConfigModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND system_type = ?", tenantID, string(system)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", integration.ErrNotConfigured, system)
		}
		return nil, err
	}
	return r.toDomain(&model)
}

// FindActiveByTenant finds every active configuration of a tenant
func (r *GormIntegrationConfigRepository) FindActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]integration.IntegrationConfig, error) {
	var configModels []models.IntegrationConfigModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("system_type ASC").
		Find(&configModels).Error; err != nil {
		return nil, err
	}
	configs := make([]integration.IntegrationConfig, 0, len(configModels))
	for i := range configModels {
		cfg, err := r.toDomain(&configModels[i])
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, nil
}

// Save creates or updates a configuration, sealing its credentials
func (r *GormIntegrationConfigRepository) Save(ctx context.Context, cfg *integration.IntegrationConfig) error {
	plaintext, err := json.Marshal(cfg.Credentials)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	sealed, err := r.sealer.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("seal credentials: %w", err)
	}
	model := models.IntegrationConfigModelFromDomain(cfg, sealed)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "system_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"credentials", "settings", "is_active", "updated_at"}),
	}).Create(model).Error
}

// UpdateSyncState records the outcome of a bulk sync
func (r *GormIntegrationConfigRepository) UpdateSyncState(ctx context.Context, tenantID uuid.UUID, system integration.SystemType, status integration.IntegrationSyncStatus, lastSyncAt *time.Time, lastError string) error {
	updates := map[string]any{
		"sync_status": string(status),
		"last_error":  lastError,
	}
	if lastSyncAt != nil {
		updates["last_sync_at"] = *lastSyncAt
	}
	result := r.db.WithContext(ctx).
		Model(&models.IntegrationConfigModel{}).
		Where("tenant_id = ? AND system_type = ?", tenantID, string(system)).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", integration.ErrNotConfigured, system)
	}
	return nil
}

func (r *GormIntegrationConfigRepository) toDomain(model *models.IntegrationConfigModel) (*integration.IntegrationConfig, error) {
	credentials := map[string]string{}
	if model.Credentials != "" {
		plaintext, err := r.sealer.Open(model.Credentials)
		if err != nil {
			return nil, fmt.Errorf("open credentials of %s integration: %w", model.SystemType, err)
		}
		if err := json.Unmarshal(plaintext, &credentials); err != nil {
			return nil, fmt.Errorf("decode credentials of %s integration: %w", model.SystemType, err)
		}
	}
	return model.ToDomain(credentials), nil
}

// Ensure GormIntegrationConfigRepository implements integration.ConfigRepository
var _ integration.ConfigRepository = (*GormIntegrationConfigRepository)(nil)
