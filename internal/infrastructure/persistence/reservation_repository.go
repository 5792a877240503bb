package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReservationRepository implements ReservationRepository using GORM
type GormReservationRepository struct {
	db *gorm.DB
}

// NewGormReservationRepository creates a new GormReservationRepository
func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormReservationRepository) WithTx(tx *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: tx}
}

// FindByID finds a reservation by its ID within a tenant
func (r *GormReservationRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*inventory.Reservation, error) {
	var model models.ReservationModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrReservationNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveByCustomer finds the customer's active holds that have not lapsed
func (r *GormReservationRepository) FindActiveByCustomer(ctx context.Context, tenantID uuid.UUID, customerID string, now time.Time) ([]inventory.Reservation, error) {
	var reservationModels []models.ReservationModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ? AND status = ? AND expires_at > ?",
			tenantID, customerID, string(inventory.ReservationStatusActive), now).
		Order("created_at ASC").
		Find(&reservationModels).Error; err != nil {
		return nil, err
	}
	return toReservations(reservationModels), nil
}

// FindLapsed finds active holds whose expiry has passed, oldest first
func (r *GormReservationRepository) FindLapsed(ctx context.Context, now time.Time, limit int) ([]inventory.Reservation, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", string(inventory.ReservationStatusActive), now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var reservationModels []models.ReservationModel
	if err := q.Find(&reservationModels).Error; err != nil {
		return nil, err
	}
	return toReservations(reservationModels), nil
}

// Create inserts a new reservation
func (r *GormReservationRepository) Create(ctx context.Context, reservation *inventory.Reservation) error {
	model := models.ReservationModelFromDomain(reservation)
	return r.db.WithContext(ctx).Create(model).Error
}

// UpdateExpiry writes the new expiry, only while the reservation is still active
func (r *GormReservationRepository) UpdateExpiry(ctx context.Context, reservation *inventory.Reservation) error {
	result := r.db.WithContext(ctx).
		Model(&models.ReservationModel{}).
		Where("tenant_id = ? AND id = ? AND status = ?", reservation.TenantID, reservation.ID, string(inventory.ReservationStatusActive)).
		Updates(map[string]any{
			"expires_at": reservation.ExpiresAt,
			"updated_at": reservation.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return inventory.ErrReservationNotActive
	}
	return nil
}

// TransitionFromActive runs the conditional update that arbitrates
// between cancel, fulfil and the expiry sweep: only the first caller
// sees changed=true.
func (r *GormReservationRepository) TransitionFromActive(ctx context.Context, tenantID, id uuid.UUID, status inventory.ReservationStatus, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ReservationModel{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, id, string(inventory.ReservationStatusActive)).
		Updates(map[string]any{
			"status":     string(status),
			"closed_at":  at,
			"updated_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func toReservations(reservationModels []models.ReservationModel) []inventory.Reservation {
	reservations := make([]inventory.Reservation, len(reservationModels))
	for i, model := range reservationModels {
		reservations[i] = *model.ToDomain()
	}
	return reservations
}

// Ensure GormReservationRepository implements ReservationRepository
var _ inventory.ReservationRepository = (*GormReservationRepository)(nil)
