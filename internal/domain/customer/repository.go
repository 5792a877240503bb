package customer

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists local customers
type Repository interface {
	FindByID(ctx context.Context, tenantID uuid.UUID, id string) (*Customer, error)
	// FindByEmail returns ErrCustomerNotFound when no customer has the address.
	FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*Customer, error)
	Search(ctx context.Context, tenantID uuid.UUID, query string, limit int) ([]Customer, error)
	List(ctx context.Context, tenantID uuid.UUID, limit int) ([]Customer, error)
	Save(ctx context.Context, c *Customer) error
}
