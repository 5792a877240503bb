package integration

import (
	"context"
	"time"

	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// IntegrationSyncStatus is the state of the last bulk sync
type IntegrationSyncStatus string

const (
	IntegrationIdle    IntegrationSyncStatus = "idle"
	IntegrationSyncing IntegrationSyncStatus = "syncing"
	IntegrationError   IntegrationSyncStatus = "error"
)

// IntegrationConfig is a tenant's configuration for one system
type IntegrationConfig struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	SystemType SystemType
	// Credentials are kept decrypted in memory only; persistence seals them.
	Credentials map[string]string
	Settings    map[string]string
	IsActive    bool
	LastSyncAt  *time.Time
	SyncStatus  IntegrationSyncStatus
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewIntegrationConfig creates an active configuration
func NewIntegrationConfig(tenantID uuid.UUID, system SystemType, credentials, settings map[string]string) (*IntegrationConfig, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewValidationError("integration: tenant is required")
	}
	if !system.IsKnown() {
		return nil, ErrUnknownSystem
	}
	now := time.Now()
	return &IntegrationConfig{
		ID:          uuid.New(),
		TenantID:    tenantID,
		SystemType:  system,
		Credentials: credentials,
		Settings:    settings,
		IsActive:    true,
		SyncStatus:  IntegrationIdle,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Credential returns a credential value or ""
func (c *IntegrationConfig) Credential(key string) string {
	if c.Credentials == nil {
		return ""
	}
	return c.Credentials[key]
}

// Setting returns a setting value or def
func (c *IntegrationConfig) Setting(key, def string) string {
	if v, ok := c.Settings[key]; ok && v != "" {
		return v
	}
	return def
}

// Version changes whenever the configuration is saved, so cached
// connectors built from an older version are not reused.
func (c *IntegrationConfig) Version() int64 {
	return c.UpdatedAt.UnixNano()
}

// ConfigRepository persists integration configurations
type ConfigRepository interface {
	// FindByTenantAndSystem returns ErrNotConfigured when absent.
	FindByTenantAndSystem(ctx context.Context, tenantID uuid.UUID, system SystemType) (*IntegrationConfig, error)
	FindActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]IntegrationConfig, error)
	Save(ctx context.Context, cfg *IntegrationConfig) error
	UpdateSyncState(ctx context.Context, tenantID uuid.UUID, system SystemType, status IntegrationSyncStatus, lastSyncAt *time.Time, lastError string) error
}
