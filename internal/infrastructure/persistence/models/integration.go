package models

import (
	"time"

	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/google/uuid"
)

// IntegrationConfigModel is the persistence model for crm_integrations.
// Credentials hold the sealed blob, never plaintext.
type IntegrationConfigModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_crm_integration_tenant_system,priority:1"`
	SystemType  string    `gorm:"type:varchar(30);not null;uniqueIndex:idx_crm_integration_tenant_system,priority:2"`
	Credentials string    `gorm:"type:text"`
	Settings    string    `gorm:"type:jsonb"`
	IsActive    bool      `gorm:"not null"`
	LastSyncAt  *time.Time
	SyncStatus  string    `gorm:"type:varchar(20);not null;default:'idle'"`
	LastError   string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IntegrationConfigModel) TableName() string {
	return "crm_integrations"
}

// ToDomain converts the persistence model to a domain IntegrationConfig.
// Credentials are opened by the repository.
func (m *IntegrationConfigModel) ToDomain(credentials map[string]string) *integration.IntegrationConfig {
	return &integration.IntegrationConfig{
		ID:          m.ID,
		TenantID:    m.TenantID,
		SystemType:  integration.SystemType(m.SystemType),
		Credentials: credentials,
		Settings:    decodeStringMap(m.Settings),
		IsActive:    m.IsActive,
		LastSyncAt:  m.LastSyncAt,
		SyncStatus:  integration.IntegrationSyncStatus(m.SyncStatus),
		LastError:   m.LastError,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// IntegrationConfigModelFromDomain creates a persistence model carrying
// the already sealed credentials.
func IntegrationConfigModelFromDomain(c *integration.IntegrationConfig, sealed string) *IntegrationConfigModel {
	return &IntegrationConfigModel{
		ID:          c.ID,
		TenantID:    c.TenantID,
		SystemType:  string(c.SystemType),
		Credentials: sealed,
		Settings:    encodeJSON(c.Settings),
		IsActive:    c.IsActive,
		LastSyncAt:  c.LastSyncAt,
		SyncStatus:  string(c.SyncStatus),
		LastError:   c.LastError,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// SyncMappingModel is the persistence model for crm_sync_mappings
type SyncMappingModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	TenantID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_crm_sync_mapping_local,priority:1;uniqueIndex:idx_crm_sync_mapping_external,priority:1"`
	IntegrationID  uuid.UUID `gorm:"type:uuid;not null;index"`
	LocalEntityID  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_crm_sync_mapping_local,priority:2"`
	ExternalID     string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_crm_sync_mapping_external,priority:2"`
	ExternalSystem string    `gorm:"type:varchar(30);not null;uniqueIndex:idx_crm_sync_mapping_local,priority:3;uniqueIndex:idx_crm_sync_mapping_external,priority:3"`
	LastSyncedAt   time.Time `gorm:"not null"`
	SyncStatus     string    `gorm:"type:varchar(20);not null;default:'pending'"`
	LastError      string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncMappingModel) TableName() string {
	return "crm_sync_mappings"
}

// ToDomain converts the persistence model to a domain SyncMapping
func (m *SyncMappingModel) ToDomain() *integration.SyncMapping {
	return &integration.SyncMapping{
		ID:             m.ID,
		TenantID:       m.TenantID,
		IntegrationID:  m.IntegrationID,
		LocalEntityID:  m.LocalEntityID,
		ExternalID:     m.ExternalID,
		ExternalSystem: integration.SystemType(m.ExternalSystem),
		LastSyncedAt:   m.LastSyncedAt,
		SyncStatus:     integration.MappingStatus(m.SyncStatus),
		LastError:      m.LastError,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// SyncMappingModelFromDomain creates a persistence model from a domain SyncMapping
func SyncMappingModelFromDomain(s *integration.SyncMapping) *SyncMappingModel {
	return &SyncMappingModel{
		ID:             s.ID,
		TenantID:       s.TenantID,
		IntegrationID:  s.IntegrationID,
		LocalEntityID:  s.LocalEntityID,
		ExternalID:     s.ExternalID,
		ExternalSystem: string(s.ExternalSystem),
		LastSyncedAt:   s.LastSyncedAt,
		SyncStatus:     string(s.SyncStatus),
		LastError:      s.LastError,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// All returns every model managed by this package, in dependency order.
func All() []any {
	return []any{
		&ProductModel{},
		&VariantModel{},
		&ReservationModel{},
		&CustomerModel{},
		&IntegrationConfigModel{},
		&SyncMappingModel{},
	}
}
