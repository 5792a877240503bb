package integration

import (
	"context"

	"github.com/coccinelle/backend/internal/domain/customer"
	"github.com/coccinelle/backend/internal/domain/integration"
)

// TransactionScope runs a pull sync's local writes in one transaction
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides the repositories bound to one transaction.
// The local customer write and its mapping upsert always commit together.
type TransactionalRepositories interface {
	Customers() customer.Repository
	Mappings() integration.MappingRepository
}

// NoOpTransactionScope runs the function against plain repositories
type NoOpTransactionScope struct {
	customers customer.Repository
	mappings  integration.MappingRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(customers customer.Repository, mappings integration.MappingRepository) *NoOpTransactionScope {
	return &NoOpTransactionScope{customers: customers, mappings: mappings}
}

// Execute runs fn without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Customers returns the customer repository.
func (s *NoOpTransactionScope) Customers() customer.Repository {
	return s.customers
}

// Mappings returns the mapping repository.
func (s *NoOpTransactionScope) Mappings() integration.MappingRepository {
	return s.mappings
}

var (
	_ TransactionScope          = (*NoOpTransactionScope)(nil)
	_ TransactionalRepositories = (*NoOpTransactionScope)(nil)
)
