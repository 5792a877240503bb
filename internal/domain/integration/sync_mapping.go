package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MappingStatus is the result of the last sync of one mapping
type MappingStatus string

const (
	MappingPending MappingStatus = "pending"
	MappingSynced  MappingStatus = "synced"
	MappingError   MappingStatus = "error"
)

// ---------------------------------------------------------------------------
// SyncMapping Entity
// ---------------------------------------------------------------------------

// SyncMapping links a local record to its twin on an external system.
// It is unique per (tenant, local entity, system) and per
// (tenant, external id, system).
type SyncMapping struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	IntegrationID  uuid.UUID
	LocalEntityID  string
	ExternalID     string
	ExternalSystem SystemType
	LastSyncedAt   time.Time
	SyncStatus     MappingStatus
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewSyncMapping creates a mapping in synced state
func NewSyncMapping(tenantID, integrationID uuid.UUID, localID, externalID string, system SystemType) (*SyncMapping, error) {
	m := &SyncMapping{
		ID:             uuid.New(),
		TenantID:       tenantID,
		IntegrationID:  integrationID,
		LocalEntityID:  localID,
		ExternalID:     externalID,
		ExternalSystem: system,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	now := time.Now()
	m.CreatedAt = now
	m.MarkSynced(now)
	return m, nil
}

// Validate validates the mapping
func (m *SyncMapping) Validate() error {
	if m.TenantID == uuid.Nil || m.LocalEntityID == "" || m.ExternalID == "" || !m.ExternalSystem.IsKnown() {
		return ErrInvalidMapping
	}
	return nil
}

// MarkSynced records a successful sync
func (m *SyncMapping) MarkSynced(now time.Time) {
	m.SyncStatus = MappingSynced
	m.LastSyncedAt = now
	m.LastError = ""
	m.UpdatedAt = now
}

// MarkFailed records a failed sync without moving LastSyncedAt
func (m *SyncMapping) MarkFailed(err error, now time.Time) {
	m.SyncStatus = MappingError
	m.LastError = err.Error()
	m.UpdatedAt = now
}

// MappingRepository persists sync mappings
type MappingRepository interface {
	// FindByLocalID returns ErrMappingNotFound when absent.
	FindByLocalID(ctx context.Context, tenantID uuid.UUID, localID string, system SystemType) (*SyncMapping, error)
	// FindByExternalID returns ErrMappingNotFound when absent.
	FindByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string, system SystemType) (*SyncMapping, error)
	// Upsert inserts the mapping or updates the row sharing its
	// (tenant, local entity, system) key.
	Upsert(ctx context.Context, m *SyncMapping) error
	ListByIntegration(ctx context.Context, tenantID uuid.UUID, system SystemType) ([]SyncMapping, error)
}
