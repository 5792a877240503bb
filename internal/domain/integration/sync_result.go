package integration

import (
	"time"

	"github.com/google/uuid"
)

// SyncDirection is the way data flows in a sync
type SyncDirection string

const (
	SyncPush SyncDirection = "push"
	SyncPull SyncDirection = "pull"
)

// ItemError is one failed record of a bulk sync
type ItemError struct {
	CustomerID string `json:"customer_id"`
	Error      string `json:"error"`
	Transient  bool   `json:"transient"`
}

// SyncResult summarizes a bulk sync run
type SyncResult struct {
	RunID      uuid.UUID   `json:"run_id"`
	TenantID   uuid.UUID   `json:"tenant_id"`
	System     SystemType  `json:"system"`
	Synced     int         `json:"synced"`
	Created    int         `json:"created"`
	Updated    int         `json:"updated"`
	Errors     []ItemError `json:"errors"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// NewSyncResult starts a result for a run
func NewSyncResult(tenantID uuid.UUID, system SystemType) *SyncResult {
	return &SyncResult{
		RunID:     uuid.New(),
		TenantID:  tenantID,
		System:    system,
		Errors:    make([]ItemError, 0),
		StartedAt: time.Now(),
	}
}

// Success reports whether no item failed
func (r *SyncResult) Success() bool {
	return len(r.Errors) == 0
}

// Processed returns how many items were attempted
func (r *SyncResult) Processed() int {
	return r.Synced + len(r.Errors)
}

// FinalStatus is the integration status recorded after the run: error
// when every attempted item failed, idle otherwise.
func (r *SyncResult) FinalStatus() IntegrationSyncStatus {
	if r.Synced == 0 && len(r.Errors) > 0 {
		return IntegrationError
	}
	return IntegrationIdle
}
