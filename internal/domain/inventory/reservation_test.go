package inventory

import (
	"testing"
	"time"

	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReservation(t *testing.T) *Reservation {
	t.Helper()
	r, err := NewReservation(uuid.New(), StockItemRef{ProductID: "prod_001", VariantID: "var_001_36"}, "cust_emma", 1, 30*time.Minute, "essayage samedi")
	require.NoError(t, err)
	return r
}

func TestNewReservation(t *testing.T) {
	r := newTestReservation(t)

	assert.NotEqual(t, uuid.Nil, r.ID)
	assert.Equal(t, ReservationStatusActive, r.Status)
	assert.Equal(t, r.CreatedAt.Add(30*time.Minute), r.ExpiresAt)
	assert.Nil(t, r.ClosedAt)
	require.Len(t, r.DomainEvents(), 1)
	assert.Equal(t, EventTypeReservationPlaced, r.DomainEvents()[0].EventType())
	assert.Equal(t, r.ID.String(), r.DomainEvents()[0].AggregateID())

	t.Run("validates input", func(t *testing.T) {
		ref := StockItemRef{ProductID: "prod_001"}
		_, err := NewReservation(uuid.New(), ref, "cust", 0, time.Minute, "")
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		_, err = NewReservation(uuid.New(), ref, "cust", 1, 0, "")
		assert.ErrorIs(t, err, ErrInvalidDuration)
		_, err = NewReservation(uuid.New(), ref, "", 1, time.Minute, "")
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestReservation_ActiveAt(t *testing.T) {
	r := newTestReservation(t)

	assert.True(t, r.IsActiveAt(r.CreatedAt))
	assert.False(t, r.IsActiveAt(r.ExpiresAt))
	assert.Equal(t, ReservationStatusExpired, r.EffectiveStatus(r.ExpiresAt.Add(time.Second)))
	assert.Equal(t, ReservationStatusActive, r.EffectiveStatus(r.CreatedAt))
}

func TestReservation_Extend(t *testing.T) {
	t.Run("moves expiry forward", func(t *testing.T) {
		r := newTestReservation(t)
		before := r.ExpiresAt
		require.NoError(t, r.Extend(15*time.Minute, r.CreatedAt.Add(time.Minute)))
		assert.Equal(t, before.Add(15*time.Minute), r.ExpiresAt)
	})

	t.Run("rejects lapsed hold", func(t *testing.T) {
		r := newTestReservation(t)
		err := r.Extend(15*time.Minute, r.ExpiresAt.Add(time.Second))
		assert.ErrorIs(t, err, ErrReservationLapsed)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("rejects closed hold", func(t *testing.T) {
		r := newTestReservation(t)
		_, err := r.Close(ReservationStatusCancelled, time.Now())
		require.NoError(t, err)
		assert.ErrorIs(t, r.Extend(time.Minute, time.Now()), ErrReservationNotActive)
	})

	t.Run("rejects non-positive duration", func(t *testing.T) {
		r := newTestReservation(t)
		assert.ErrorIs(t, r.Extend(0, time.Now()), ErrInvalidDuration)
	})
}

func TestReservation_Close(t *testing.T) {
	t.Run("active to cancelled", func(t *testing.T) {
		r := newTestReservation(t)
		r.ClearDomainEvents()
		changed, err := r.Close(ReservationStatusCancelled, time.Now())
		require.NoError(t, err)
		assert.True(t, changed)
		assert.NotNil(t, r.ClosedAt)
		require.Len(t, r.DomainEvents(), 1)
		assert.Equal(t, EventTypeReservationCancelled, r.DomainEvents()[0].EventType())
	})

	t.Run("closing twice into same status is a no-op", func(t *testing.T) {
		r := newTestReservation(t)
		_, err := r.Close(ReservationStatusCancelled, time.Now())
		require.NoError(t, err)
		changed, err := r.Close(ReservationStatusCancelled, time.Now())
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("terminal states are final", func(t *testing.T) {
		r := newTestReservation(t)
		_, err := r.Close(ReservationStatusExpired, time.Now())
		require.NoError(t, err)
		_, err = r.Close(ReservationStatusCancelled, time.Now())
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("active is not a close target", func(t *testing.T) {
		r := newTestReservation(t)
		_, err := r.Close(ReservationStatusActive, time.Now())
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}
