package inventory

import (
	"context"
	"errors"

	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/coccinelle/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReserveProduct holds stock for a customer. The conditional decrement
// and the reservation insert commit together, so two concurrent calls
// for the last unit cannot both succeed.
func (s *InventoryService) ReserveProduct(ctx context.Context, tenantID uuid.UUID, req inventory.ReserveRequest) (*inventory.Reservation, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reservation", "reserve",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrProductID, req.ProductID),
		telemetry.WithAttribute(telemetry.SpanAttrQuantity, req.Quantity),
	)
	defer span.End()

	if err := s.validateStruct(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	product, err := s.products.FindByID(ctx, tenantID, req.ProductID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	ref := req.Ref()
	if product.HasVariants() {
		if ref.VariantID == "" {
			return nil, inventory.ErrVariantRequired
		}
		if _, err := product.FindVariant(ref.VariantID); err != nil {
			return nil, err
		}
	} else if ref.VariantID != "" {
		return nil, inventory.ErrProductHasNoVariants
	}

	reservation, err := inventory.NewReservation(tenantID, ref, req.CustomerID, req.Quantity, req.Duration(), req.Notes)
	if err != nil {
		return nil, err
	}
	now := s.now()
	reservation.CreatedAt = now
	reservation.UpdatedAt = now
	reservation.ExpiresAt = now.Add(req.Duration())

	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.Products().DecrementStock(ctx, tenantID, ref, req.Quantity); err != nil {
			return err
		}
		return repos.Reservations().Create(ctx, reservation)
	})
	if err != nil {
		if errors.Is(err, inventory.ErrInsufficientStock) {
			telemetry.AddEvent(span, "insufficient_stock")
			s.logger.Info("Reservation rejected: insufficient stock",
				zap.String("tenant_id", tenantID.String()),
				zap.String("product_id", ref.ProductID),
				zap.String("variant_id", ref.VariantID),
				zap.Int("quantity", req.Quantity),
			)
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Reservation placed",
		zap.String("reservation_id", reservation.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("product_id", ref.ProductID),
		zap.String("variant_id", ref.VariantID),
		zap.Int("quantity", reservation.Quantity),
		zap.Time("expires_at", reservation.ExpiresAt),
	)
	s.publish(ctx, reservation.DomainEvents()...)
	reservation.ClearDomainEvents()
	telemetry.SetOK(span)
	return reservation, nil
}

// CancelReservation releases a hold and restores its stock. Cancelling a
// cancelled reservation succeeds without doing anything.
func (s *InventoryService) CancelReservation(ctx context.Context, tenantID, reservationID uuid.UUID) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "reservation", "cancel",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrReservationID, reservationID.String()),
	)
	defer span.End()

	reservation, changed, err := s.closeReservation(ctx, tenantID, reservationID, inventory.ReservationStatusCancelled, true)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if changed {
		s.logger.Info("Reservation cancelled",
			zap.String("reservation_id", reservationID.String()),
			zap.String("tenant_id", tenantID.String()),
			zap.Int("restored_quantity", reservation.Quantity),
		)
	}
	telemetry.SetOK(span)
	return nil
}

// FulfillReservation marks a hold as consumed by a sale. Stock stays
// decremented.
func (s *InventoryService) FulfillReservation(ctx context.Context, tenantID, reservationID uuid.UUID) (*inventory.Reservation, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reservation", "fulfill",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrReservationID, reservationID.String()),
	)
	defer span.End()

	reservation, _, err := s.closeReservation(ctx, tenantID, reservationID, inventory.ReservationStatusFulfilled, false)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	return reservation, nil
}

// closeReservation moves an active reservation to status inside one
// transaction, restoring stock when restore is set. It reports whether
// this call performed the transition.
func (s *InventoryService) closeReservation(ctx context.Context, tenantID, id uuid.UUID, status inventory.ReservationStatus, restore bool) (*inventory.Reservation, bool, error) {
	var (
		reservation *inventory.Reservation
		changed     bool
	)
	now := s.now()
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		r, err := repos.Reservations().FindByID(ctx, tenantID, id)
		if err != nil {
			return err
		}
		reservation = r
		if r.Status == status {
			return nil
		}
		if r.Status != inventory.ReservationStatusActive {
			return inventory.ErrReservationNotActive
		}
		if status == inventory.ReservationStatusFulfilled && r.IsLapsed(now) {
			return inventory.ErrReservationLapsed
		}

		won, err := repos.Reservations().TransitionFromActive(ctx, tenantID, id, status, now)
		if err != nil {
			return err
		}
		if !won {
			// Lost the race to a concurrent cancel or sweep.
			current, err := repos.Reservations().FindByID(ctx, tenantID, id)
			if err != nil {
				return err
			}
			reservation = current
			if current.Status == status {
				return nil
			}
			return inventory.ErrReservationNotActive
		}

		if _, err := r.Close(status, now); err != nil {
			return err
		}
		changed = true
		if restore {
			return repos.Products().IncrementStock(ctx, tenantID, r.Ref(), r.Quantity)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.publish(ctx, reservation.DomainEvents()...)
		reservation.ClearDomainEvents()
	}
	return reservation, changed, nil
}

// ExtendReservation pushes the expiry of an active, unlapsed hold forward
func (s *InventoryService) ExtendReservation(ctx context.Context, tenantID, reservationID uuid.UUID, additionalMinutes int) (*inventory.Reservation, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reservation", "extend",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrReservationID, reservationID.String()),
		telemetry.WithAttribute("additional_minutes", additionalMinutes),
	)
	defer span.End()

	if additionalMinutes <= 0 {
		err := shared.NewValidationError("inventory: additional minutes must be positive, got %d", additionalMinutes)
		telemetry.RecordError(span, err)
		return nil, err
	}

	var reservation *inventory.Reservation
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		r, err := repos.Reservations().FindByID(ctx, tenantID, reservationID)
		if err != nil {
			return err
		}
		if err := r.Extend(minutes(additionalMinutes), s.now()); err != nil {
			return err
		}
		reservation = r
		return repos.Reservations().UpdateExpiry(ctx, r)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, reservation.DomainEvents()...)
	reservation.ClearDomainEvents()
	telemetry.SetOK(span)
	return reservation, nil
}

// GetReservation returns a reservation with its status as callers
// should see it: a lapsed hold the sweeper has not closed yet reads as
// expired.
func (s *InventoryService) GetReservation(ctx context.Context, tenantID, reservationID uuid.UUID) (*inventory.Reservation, error) {
	r, err := s.reservations.FindByID(ctx, tenantID, reservationID)
	if err != nil {
		return nil, err
	}
	r.Status = r.EffectiveStatus(s.now())
	return r, nil
}

// GetCustomerReservations lists a customer's holds that are active and
// not yet lapsed
func (s *InventoryService) GetCustomerReservations(ctx context.Context, tenantID uuid.UUID, customerID string) ([]inventory.Reservation, error) {
	if customerID == "" {
		return nil, shared.NewValidationError("inventory: customer is required")
	}
	return s.reservations.FindActiveByCustomer(ctx, tenantID, customerID, s.now())
}
