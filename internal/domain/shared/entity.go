package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity provides common fields for entities identified by a UUID
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBaseEntity creates a new base entity with generated ID
func NewBaseEntity() BaseEntity {
	now := time.Now()
	return BaseEntity{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch bumps UpdatedAt.
func (e *BaseEntity) Touch(now time.Time) {
	e.UpdatedAt = now
}

// TenantEntity is a BaseEntity owned by one tenant. It also buffers the
// domain events raised while the entity was mutated.
type TenantEntity struct {
	BaseEntity
	TenantID     uuid.UUID
	domainEvents []DomainEvent
}

// NewTenantEntity creates a tenant-owned entity
func NewTenantEntity(tenantID uuid.UUID) TenantEntity {
	return TenantEntity{
		BaseEntity: NewBaseEntity(),
		TenantID:   tenantID,
	}
}

// AddDomainEvent records an event to be published after persistence
func (e *TenantEntity) AddDomainEvent(event DomainEvent) {
	e.domainEvents = append(e.domainEvents, event)
}

// DomainEvents returns the pending events
func (e *TenantEntity) DomainEvents() []DomainEvent {
	return e.domainEvents
}

// ClearDomainEvents drops the pending events
func (e *TenantEntity) ClearDomainEvents() {
	e.domainEvents = nil
}
