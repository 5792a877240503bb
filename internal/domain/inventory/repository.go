package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProductRepository reads and writes the local catalog
type ProductRepository interface {
	FindByID(ctx context.Context, tenantID uuid.UUID, id string) (*Product, error)
	FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*Product, error)
	FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []string) ([]Product, error)
	Search(ctx context.Context, tenantID uuid.UUID, query string, opts SearchOptions) ([]Product, error)
	List(ctx context.Context, tenantID uuid.UUID, opts ListOptions) ([]Product, int64, error)
	Save(ctx context.Context, product *Product) error

	// SetStock writes an absolute quantity on a product or variant.
	SetStock(ctx context.Context, tenantID uuid.UUID, ref StockItemRef, quantity int) error
	// AdjustStock atomically adds a signed delta and returns the new
	// quantity. It returns ErrInvalidStockUpdate when the result would be
	// negative.
	AdjustStock(ctx context.Context, tenantID uuid.UUID, ref StockItemRef, delta int) (int, error)
	// DecrementStock atomically subtracts qty only when at least qty is
	// on hand. It returns ErrInsufficientStock otherwise.
	DecrementStock(ctx context.Context, tenantID uuid.UUID, ref StockItemRef, qty int) error
	// IncrementStock adds qty back.
	IncrementStock(ctx context.Context, tenantID uuid.UUID, ref StockItemRef, qty int) error
}

// ReservationRepository persists reservations
type ReservationRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Reservation, error)
	FindActiveByCustomer(ctx context.Context, tenantID uuid.UUID, customerID string, now time.Time) ([]Reservation, error)
	// FindLapsed returns active reservations with expires_at before now,
	// across tenants, oldest first.
	FindLapsed(ctx context.Context, now time.Time, limit int) ([]Reservation, error)
	Create(ctx context.Context, r *Reservation) error
	// UpdateExpiry writes a new expiry on an active reservation.
	UpdateExpiry(ctx context.Context, r *Reservation) error
	// TransitionFromActive moves the reservation to status only if it is
	// still active, reporting whether this call performed the transition.
	TransitionFromActive(ctx context.Context, tenantID, id uuid.UUID, status ReservationStatus, at time.Time) (bool, error)
}
