package inventory

import (
	"time"

	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ReservationStatus is the lifecycle state of a stock hold
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusExpired   ReservationStatus = "expired"
	ReservationStatusFulfilled ReservationStatus = "fulfilled"
)

// IsTerminal reports whether no further transition is possible
func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationStatusCancelled || s == ReservationStatusExpired || s == ReservationStatusFulfilled
}

// Reservation holds stock for a customer until it expires, is cancelled
// or is fulfilled. Stock is decremented when the hold is placed and
// restored when it is cancelled or expires.
type Reservation struct {
	shared.TenantEntity
	ProductID  string
	VariantID  string
	CustomerID string
	Quantity   int
	Status     ReservationStatus
	ExpiresAt  time.Time
	ClosedAt   *time.Time
	Notes      string
}

// NewReservation creates an active reservation expiring after duration
func NewReservation(tenantID uuid.UUID, ref StockItemRef, customerID string, quantity int, duration time.Duration, notes string) (*Reservation, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}
	if customerID == "" {
		return nil, shared.NewValidationError("inventory: customer is required")
	}
	r := &Reservation{
		TenantEntity: shared.NewTenantEntity(tenantID),
		ProductID:    ref.ProductID,
		VariantID:    ref.VariantID,
		CustomerID:   customerID,
		Quantity:     quantity,
		Status:       ReservationStatusActive,
		Notes:        notes,
	}
	r.ExpiresAt = r.CreatedAt.Add(duration)
	r.AddDomainEvent(NewReservationPlacedEvent(r))
	return r, nil
}

// Ref returns the stock item this reservation holds
func (r *Reservation) Ref() StockItemRef {
	return StockItemRef{ProductID: r.ProductID, VariantID: r.VariantID}
}

// IsLapsed reports whether an active hold has passed its expiry
func (r *Reservation) IsLapsed(now time.Time) bool {
	return r.Status == ReservationStatusActive && !now.Before(r.ExpiresAt)
}

// IsActiveAt reports whether the hold still blocks stock for callers at now.
// A lapsed hold the sweeper has not closed yet counts as inactive.
func (r *Reservation) IsActiveAt(now time.Time) bool {
	return r.Status == ReservationStatusActive && now.Before(r.ExpiresAt)
}

// EffectiveStatus is the status callers should see at now
func (r *Reservation) EffectiveStatus(now time.Time) ReservationStatus {
	if r.IsLapsed(now) {
		return ReservationStatusExpired
	}
	return r.Status
}

// Extend pushes the expiry forward
func (r *Reservation) Extend(additional time.Duration, now time.Time) error {
	if additional <= 0 {
		return ErrInvalidDuration
	}
	if r.Status != ReservationStatusActive {
		return ErrReservationNotActive
	}
	if r.IsLapsed(now) {
		return ErrReservationLapsed
	}
	r.ExpiresAt = r.ExpiresAt.Add(additional)
	r.Touch(now)
	r.AddDomainEvent(NewReservationExtendedEvent(r))
	return nil
}

// Close moves an active reservation to a terminal status. Closing into
// the status it already has is a no-op and reports changed=false.
func (r *Reservation) Close(status ReservationStatus, now time.Time) (changed bool, err error) {
	if !status.IsTerminal() {
		return false, shared.NewValidationError("inventory: %q is not a terminal status", status)
	}
	if r.Status == status {
		return false, nil
	}
	if r.Status != ReservationStatusActive {
		return false, ErrReservationNotActive
	}
	r.Status = status
	r.ClosedAt = &now
	r.Touch(now)
	r.AddDomainEvent(NewReservationClosedEvent(r))
	return true, nil
}

// ExpiredReservationStats summarizes one sweep
type ExpiredReservationStats struct {
	TotalExpired  int       `json:"total_expired"`
	Expired       int       `json:"expired"`
	AlreadyClosed int       `json:"already_closed"`
	Failed        int       `json:"failed"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// ReserveRequest is the input of ReserveProduct
type ReserveRequest struct {
	ProductID       string `json:"product_id" validate:"required"`
	VariantID       string `json:"variant_id,omitempty"`
	CustomerID      string `json:"customer_id" validate:"required"`
	Quantity        int    `json:"quantity" validate:"gt=0"`
	DurationMinutes int    `json:"duration_minutes" validate:"gt=0"`
	Notes           string `json:"notes,omitempty" validate:"max=500"`
}

// Ref returns the stock item the request targets
func (r ReserveRequest) Ref() StockItemRef {
	return StockItemRef{ProductID: r.ProductID, VariantID: r.VariantID}
}

// Duration returns the hold length
func (r ReserveRequest) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}
