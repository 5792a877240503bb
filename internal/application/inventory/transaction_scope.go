package inventory

import (
	"context"

	"github.com/coccinelle/backend/internal/domain/inventory"
)

// TransactionScope provides transactional access to inventory repositories.
// When a function is executed within a transaction scope, all repository operations
// will be part of the same database transaction and will be committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the inventory repositories within a transaction.
// A stock mutation and the reservation row it belongs to always go through the same instance.
type TransactionalRepositories interface {
	Products() inventory.ProductRepository
	Reservations() inventory.ReservationRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use transactions.
// This is useful for testing or when transaction support is not required.
type NoOpTransactionScope struct {
	products     inventory.ProductRepository
	reservations inventory.ReservationRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(products inventory.ProductRepository, reservations inventory.ReservationRepository) *NoOpTransactionScope {
	return &NoOpTransactionScope{products: products, reservations: reservations}
}

// Execute runs the function without a real transaction (for testing/compatibility).
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Products returns the product repository.
func (s *NoOpTransactionScope) Products() inventory.ProductRepository {
	return s.products
}

// Reservations returns the reservation repository.
func (s *NoOpTransactionScope) Reservations() inventory.ReservationRepository {
	return s.reservations
}

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
