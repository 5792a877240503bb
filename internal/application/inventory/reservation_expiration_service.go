package inventory

import (
	"context"
	"time"

	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/coccinelle/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultSweepBatchSize bounds how many lapsed reservations one sweep loads
const DefaultSweepBatchSize = 500

// ReservationExpirationService handles automatic expiration of lapsed reservations
type ReservationExpirationService struct {
	reservations inventory.ReservationRepository
	txScope      TransactionScope
	eventBus     shared.EventPublisher
	logger       *zap.Logger
	batchSize    int
	now          func() time.Time
}

// NewReservationExpirationService creates a new ReservationExpirationService
func NewReservationExpirationService(
	reservations inventory.ReservationRepository,
	txScope TransactionScope,
	eventBus shared.EventPublisher,
	logger *zap.Logger,
	batchSize int,
) *ReservationExpirationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	return &ReservationExpirationService{
		reservations: reservations,
		txScope:      txScope,
		eventBus:     eventBus,
		logger:       logger,
		batchSize:    batchSize,
		now:          time.Now,
	}
}

// SetEventBus sets the event bus for publishing events
// This is useful when the event bus is not available at construction time
func (s *ReservationExpirationService) SetEventBus(eventBus shared.EventPublisher) {
	s.eventBus = eventBus
}

// SetClock overrides time.Now
func (s *ReservationExpirationService) SetClock(now func() time.Time) {
	s.now = now
}

// ExpireReservations closes every lapsed reservation as expired and
// restores its stock. A reservation closed concurrently by a cancel or
// another sweep is counted as AlreadyClosed and its stock is left alone.
func (s *ReservationExpirationService) ExpireReservations(ctx context.Context) (*inventory.ExpiredReservationStats, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reservation", "expire")
	defer span.End()

	now := s.now()
	stats := &inventory.ExpiredReservationStats{
		ProcessedAt: now,
	}

	lapsed, err := s.reservations.FindLapsed(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("Failed to find lapsed reservations", zap.Error(err))
		telemetry.RecordError(span, err)
		return nil, err
	}

	stats.TotalExpired = len(lapsed)
	if stats.TotalExpired == 0 {
		s.logger.Debug("No lapsed reservations found")
		telemetry.SetOK(span)
		return stats, nil
	}

	s.logger.Info("Found lapsed reservations",
		zap.Int("count", stats.TotalExpired),
	)

	for i := range lapsed {
		expired, err := s.expireOne(ctx, &lapsed[i], now)
		if err != nil {
			s.logger.Error("Failed to expire reservation",
				zap.String("reservation_id", lapsed[i].ID.String()),
				zap.String("tenant_id", lapsed[i].TenantID.String()),
				zap.Error(err),
			)
			stats.Failed++
			continue
		}
		if expired {
			stats.Expired++
		} else {
			stats.AlreadyClosed++
		}
	}

	s.logger.Info("Completed reservation expiry sweep",
		zap.Int("total", stats.TotalExpired),
		zap.Int("expired", stats.Expired),
		zap.Int("already_closed", stats.AlreadyClosed),
		zap.Int("failed", stats.Failed),
	)
	telemetry.SetAttributes(span,
		"expired", stats.Expired,
		"already_closed", stats.AlreadyClosed,
		"failed", stats.Failed,
	)
	telemetry.SetOK(span)
	return stats, nil
}

// expireOne runs the conditional transition and the stock restore in one
// transaction. It reports false when another caller closed the
// reservation first.
func (s *ReservationExpirationService) expireOne(ctx context.Context, r *inventory.Reservation, now time.Time) (bool, error) {
	var won bool
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		won, err = repos.Reservations().TransitionFromActive(ctx, r.TenantID, r.ID, inventory.ReservationStatusExpired, now)
		if err != nil || !won {
			return err
		}
		return repos.Products().IncrementStock(ctx, r.TenantID, r.Ref(), r.Quantity)
	})
	if err != nil || !won {
		return false, err
	}

	if _, err := r.Close(inventory.ReservationStatusExpired, now); err != nil {
		return true, nil
	}
	if s.eventBus != nil {
		if err := s.eventBus.Publish(ctx, r.DomainEvents()...); err != nil {
			s.logger.Warn("Failed to publish reservation.expired event",
				zap.String("reservation_id", r.ID.String()),
				zap.Error(err),
			)
		}
	}
	r.ClearDomainEvents()

	s.logger.Debug("Expired reservation",
		zap.String("reservation_id", r.ID.String()),
		zap.String("tenant_id", r.TenantID.String()),
		zap.String("product_id", r.ProductID),
		zap.String("variant_id", r.VariantID),
		zap.Int("quantity", r.Quantity),
	)
	return true, nil
}
