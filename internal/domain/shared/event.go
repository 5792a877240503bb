package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact raised by an aggregate and fanned out by the event
// bus. AggregateID is a string since catalog and CRM records are keyed by
// platform identifiers such as "prod_001".
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
	AggregateType() string
	TenantID() uuid.UUID
}

// EventHeader is embedded by every concrete event and satisfies
// DomainEvent for it
type EventHeader struct {
	ID        uuid.UUID `json:"event_id"`
	Type      string    `json:"event_type"`
	At        time.Time `json:"occurred_at"`
	Aggregate string    `json:"aggregate_type"`
	Key       string    `json:"aggregate_id"`
	Tenant    uuid.UUID `json:"tenant_id"`
}

// NewEventHeader stamps a fresh id and the current UTC time
func NewEventHeader(eventType, aggregateType, aggregateID string, tenantID uuid.UUID) EventHeader {
	return EventHeader{
		ID:        uuid.New(),
		Type:      eventType,
		At:        time.Now().UTC(),
		Aggregate: aggregateType,
		Key:       aggregateID,
		Tenant:    tenantID,
	}
}

func (h *EventHeader) EventID() uuid.UUID    { return h.ID }
func (h *EventHeader) EventType() string     { return h.Type }
func (h *EventHeader) OccurredAt() time.Time { return h.At }
func (h *EventHeader) AggregateID() string   { return h.Key }
func (h *EventHeader) AggregateType() string { return h.Aggregate }
func (h *EventHeader) TenantID() uuid.UUID   { return h.Tenant }
