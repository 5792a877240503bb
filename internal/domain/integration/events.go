package integration

import (
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// EventTypeCustomerSynced is raised after a customer is pushed to or
// pulled from an external CRM
const EventTypeCustomerSynced = "crm.customer_synced"

// CustomerSyncedEvent records one successful customer sync
type CustomerSyncedEvent struct {
	shared.EventHeader
	System     SystemType    `json:"system"`
	Direction  SyncDirection `json:"direction"`
	LocalID    string        `json:"local_id"`
	ExternalID string        `json:"external_id"`
	Created    bool          `json:"created"`
}

// NewCustomerSyncedEvent creates a crm.customer_synced event
func NewCustomerSyncedEvent(tenantID uuid.UUID, system SystemType, direction SyncDirection, localID, externalID string, created bool) *CustomerSyncedEvent {
	return &CustomerSyncedEvent{
		EventHeader: shared.NewEventHeader(EventTypeCustomerSynced, "Customer", localID, tenantID),
		System:          system,
		Direction:       direction,
		LocalID:         localID,
		ExternalID:      externalID,
		Created:         created,
	}
}
