package integration

import (
	"time"

	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/google/uuid"
)

// SyncCustomerResponse is returned by single-customer sync endpoints
type SyncCustomerResponse struct {
	System     integration.SystemType    `json:"system"`
	Direction  integration.SyncDirection `json:"direction"`
	LocalID    string                    `json:"local_id"`
	ExternalID string                    `json:"external_id"`
}

// SyncResultResponse represents a bulk sync run in API responses
type SyncResultResponse struct {
	RunID      uuid.UUID               `json:"run_id"`
	System     integration.SystemType  `json:"system"`
	Synced     int                     `json:"synced"`
	Created    int                     `json:"created"`
	Updated    int                     `json:"updated"`
	Failed     int                     `json:"failed"`
	Errors     []integration.ItemError `json:"errors"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	DurationMS int64                   `json:"duration_ms"`
}

// ToSyncResultResponse converts a SyncResult
func ToSyncResultResponse(r *integration.SyncResult) SyncResultResponse {
	return SyncResultResponse{
		RunID:      r.RunID,
		System:     r.System,
		Synced:     r.Synced,
		Created:    r.Created,
		Updated:    r.Updated,
		Failed:     len(r.Errors),
		Errors:     r.Errors,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMS: r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
	}
}

// HealthResponse is the health of every integration of a tenant
type HealthResponse struct {
	Healthy bool                 `json:"healthy"`
	Systems []integration.Health `json:"systems"`
}

// ToHealthResponse summarizes health checks
func ToHealthResponse(systems []integration.Health) HealthResponse {
	healthy := true
	for _, h := range systems {
		if h.Status != integration.HealthConnected {
			healthy = false
			break
		}
	}
	if systems == nil {
		systems = []integration.Health{}
	}
	return HealthResponse{Healthy: healthy, Systems: systems}
}
