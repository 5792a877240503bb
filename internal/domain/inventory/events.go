package inventory

import (
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// AggregateTypeReservation is the aggregate type of reservation events
const AggregateTypeReservation = "Reservation"

// Event type constants
const (
	EventTypeReservationPlaced    = "reservation.placed"
	EventTypeReservationExtended  = "reservation.extended"
	EventTypeReservationCancelled = "reservation.cancelled"
	EventTypeReservationExpired   = "reservation.expired"
	EventTypeReservationFulfilled = "reservation.fulfilled"
	EventTypeStockUpdated         = "inventory.stock_updated"
)

// ReservationEvent is raised on every reservation transition
type ReservationEvent struct {
	shared.EventHeader
	ProductID  string            `json:"product_id"`
	VariantID  string            `json:"variant_id,omitempty"`
	CustomerID string            `json:"customer_id"`
	Quantity   int               `json:"quantity"`
	Status     ReservationStatus `json:"status"`
}

func newReservationEvent(eventType string, r *Reservation) *ReservationEvent {
	return &ReservationEvent{
		EventHeader: shared.NewEventHeader(eventType, AggregateTypeReservation, r.ID.String(), r.TenantID),
		ProductID:       r.ProductID,
		VariantID:       r.VariantID,
		CustomerID:      r.CustomerID,
		Quantity:        r.Quantity,
		Status:          r.Status,
	}
}

// NewReservationPlacedEvent creates a reservation.placed event
func NewReservationPlacedEvent(r *Reservation) *ReservationEvent {
	return newReservationEvent(EventTypeReservationPlaced, r)
}

// NewReservationExtendedEvent creates a reservation.extended event
func NewReservationExtendedEvent(r *Reservation) *ReservationEvent {
	return newReservationEvent(EventTypeReservationExtended, r)
}

// NewReservationClosedEvent creates the event matching r's terminal status
func NewReservationClosedEvent(r *Reservation) *ReservationEvent {
	switch r.Status {
	case ReservationStatusExpired:
		return newReservationEvent(EventTypeReservationExpired, r)
	case ReservationStatusFulfilled:
		return newReservationEvent(EventTypeReservationFulfilled, r)
	default:
		return newReservationEvent(EventTypeReservationCancelled, r)
	}
}

// StockUpdatedEvent is raised when stock is changed manually
type StockUpdatedEvent struct {
	shared.EventHeader
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason,omitempty"`
}

// NewStockUpdatedEvent creates an inventory.stock_updated event
func NewStockUpdatedEvent(tenantID uuid.UUID, u StockUpdate, quantity int) *StockUpdatedEvent {
	return &StockUpdatedEvent{
		EventHeader: shared.NewEventHeader(EventTypeStockUpdated, "Product", u.ProductID, tenantID),
		VariantID:       u.VariantID,
		Quantity:        quantity,
		Reason:          u.Reason,
	}
}
