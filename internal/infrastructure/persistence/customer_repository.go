package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/coccinelle/backend/internal/domain/customer"
	"github.com/coccinelle/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCustomerRepository implements customer.Repository using GORM
type GormCustomerRepository struct {
	db *gorm.DB
}

// NewGormCustomerRepository creates a new GormCustomerRepository
func NewGormCustomerRepository(db *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormCustomerRepository) WithTx(tx *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: tx}
}

// FindByID finds a customer by ID
func (r *GormCustomerRepository) FindByID(ctx context.Context, tenantID uuid.UUID, id string) (*customer.Customer, error) {
	var model models.CustomerModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, customer.ErrCustomerNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByEmail finds a customer by normalized email
func (r *GormCustomerRepository) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*customer.Customer, error) {
	email = customer.NormalizeEmail(email)
	if email == "" {
		return nil, customer.ErrCustomerNotFound
	}
	var model models.CustomerModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND email = ?", tenantID, email).
		Order("created_at ASC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, customer.ErrCustomerNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Search matches names, email and phone case-insensitively
func (r *GormCustomerRepository) Search(ctx context.Context, tenantID uuid.UUID, query string, limit int) ([]customer.Customer, error) {
	q := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if term := strings.ToLower(strings.TrimSpace(query)); term != "" {
		like := "%" + escapeLike(term) + "%"
		q = q.Where(`LOWER(first_name) LIKE ? ESCAPE '\' OR LOWER(last_name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\' OR phone LIKE ? ESCAPE '\'`,
			like, like, like, like)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var customerModels []models.CustomerModel
	if err := q.Order("last_name ASC, first_name ASC").Find(&customerModels).Error; err != nil {
		return nil, err
	}
	return toCustomers(customerModels), nil
}

// List returns up to limit customers, oldest first
func (r *GormCustomerRepository) List(ctx context.Context, tenantID uuid.UUID, limit int) ([]customer.Customer, error) {
	q := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var customerModels []models.CustomerModel
	if err := q.Find(&customerModels).Error; err != nil {
		return nil, err
	}
	return toCustomers(customerModels), nil
}

// Save creates or updates a customer
func (r *GormCustomerRepository) Save(ctx context.Context, c *customer.Customer) error {
	model := models.CustomerModelFromDomain(c)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error
}

func toCustomers(customerModels []models.CustomerModel) []customer.Customer {
	customers := make([]customer.Customer, len(customerModels))
	for i, model := range customerModels {
		customers[i] = *model.ToDomain()
	}
	return customers
}

// Ensure GormCustomerRepository implements customer.Repository
var _ customer.Repository = (*GormCustomerRepository)(nil)
