package persistence

import (
	"context"

	appintegration "github.com/coccinelle/backend/internal/application/integration"
	appinv "github.com/coccinelle/backend/internal/application/inventory"
	"github.com/coccinelle/backend/internal/domain/customer"
	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/domain/inventory"
	"gorm.io/gorm"
)

// GormTransactionScope implements the inventory TransactionScope using GORM transactions.
// A stock decrement and the reservation insert it pays for commit or roll back together.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appinv.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormInventoryRepositories{tx: tx})
	})
}

type gormInventoryRepositories struct {
	tx *gorm.DB
}

// Products returns the product repository scoped to the current transaction.
func (r *gormInventoryRepositories) Products() inventory.ProductRepository {
	return NewGormProductRepository(r.tx)
}

// Reservations returns the reservation repository scoped to the current transaction.
func (r *gormInventoryRepositories) Reservations() inventory.ReservationRepository {
	return NewGormReservationRepository(r.tx)
}

// GormSyncTransactionScope implements the CRM sync TransactionScope.
// A pulled customer and its mapping row are written in one transaction.
type GormSyncTransactionScope struct {
	db *gorm.DB
}

// NewGormSyncTransactionScope creates a new GormSyncTransactionScope.
func NewGormSyncTransactionScope(db *gorm.DB) *GormSyncTransactionScope {
	return &GormSyncTransactionScope{db: db}
}

// Execute runs fn within a database transaction.
func (s *GormSyncTransactionScope) Execute(ctx context.Context, fn func(repos appintegration.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormSyncRepositories{tx: tx})
	})
}

type gormSyncRepositories struct {
	tx *gorm.DB
}

func (r *gormSyncRepositories) Customers() customer.Repository {
	return NewGormCustomerRepository(r.tx)
}

func (r *gormSyncRepositories) Mappings() integration.MappingRepository {
	return NewGormSyncMappingRepository(r.tx)
}

var (
	_ appinv.TransactionScope                  = (*GormTransactionScope)(nil)
	_ appinv.TransactionalRepositories         = (*gormInventoryRepositories)(nil)
	_ appintegration.TransactionScope          = (*GormSyncTransactionScope)(nil)
	_ appintegration.TransactionalRepositories = (*gormSyncRepositories)(nil)
)
