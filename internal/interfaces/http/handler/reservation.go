package handler

import (
	"context"
	"time"

	inventoryapp "github.com/coccinelle/backend/internal/application/inventory"
	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReservationManager is the reservation surface used by ReservationHandler
type ReservationManager interface {
	ReserveProduct(ctx context.Context, tenantID uuid.UUID, req inventory.ReserveRequest) (*inventory.Reservation, error)
	CancelReservation(ctx context.Context, tenantID, reservationID uuid.UUID) error
	FulfillReservation(ctx context.Context, tenantID, reservationID uuid.UUID) (*inventory.Reservation, error)
	ExtendReservation(ctx context.Context, tenantID, reservationID uuid.UUID, additionalMinutes int) (*inventory.Reservation, error)
	GetReservation(ctx context.Context, tenantID, reservationID uuid.UUID) (*inventory.Reservation, error)
	GetCustomerReservations(ctx context.Context, tenantID uuid.UUID, customerID string) ([]inventory.Reservation, error)
}

// ReservationHandler handles stock hold endpoints
type ReservationHandler struct {
	BaseHandler
	reservations    ReservationManager
	defaultDuration int
	now             func() time.Time
}

// NewReservationHandler creates a new ReservationHandler. defaultDuration
// (minutes) applies when a request omits duration_minutes.
func NewReservationHandler(reservations ReservationManager, defaultDuration int) *ReservationHandler {
	if defaultDuration <= 0 {
		defaultDuration = 15
	}
	return &ReservationHandler{
		reservations:    reservations,
		defaultDuration: defaultDuration,
		now:             time.Now,
	}
}

// CreateReservationRequest places a hold on a product or variant
type CreateReservationRequest struct {
	ProductID       string `json:"product_id" binding:"required"`
	VariantID       string `json:"variant_id"`
	CustomerID      string `json:"customer_id" binding:"required"`
	Quantity        int    `json:"quantity" binding:"required,gt=0"`
	DurationMinutes int    `json:"duration_minutes" binding:"omitempty,gt=0,lte=10080"`
	Notes           string `json:"notes" binding:"max=500"`
}

// Reserve places a hold
//
// POST /api/v1/reservations
func (h *ReservationHandler) Reserve(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.TenantRequired(c)
		return
	}
	var req CreateReservationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = h.defaultDuration
	}

	reservation, err := h.reservations.ReserveProduct(c.Request.Context(), tenantID, inventory.ReserveRequest{
		ProductID:       req.ProductID,
		VariantID:       req.VariantID,
		CustomerID:      req.CustomerID,
		Quantity:        req.Quantity,
		DurationMinutes: duration,
		Notes:           req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, inventoryapp.ToReservationResponse(reservation, h.now()))
}

// Get returns one reservation
//
// GET /api/v1/reservations/:id
func (h *ReservationHandler) Get(c *gin.Context) {
	tenantID, reservationID, ok := h.reservationParams(c)
	if !ok {
		return
	}
	reservation, err := h.reservations.GetReservation(c.Request.Context(), tenantID, reservationID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inventoryapp.ToReservationResponse(reservation, h.now()))
}

// Cancel releases a hold and restores its stock. Cancelling twice succeeds.
//
// POST /api/v1/reservations/:id/cancel
func (h *ReservationHandler) Cancel(c *gin.Context) {
	tenantID, reservationID, ok := h.reservationParams(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.reservations.CancelReservation(ctx, tenantID, reservationID); err != nil {
		h.HandleError(c, err)
		return
	}
	reservation, err := h.reservations.GetReservation(ctx, tenantID, reservationID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inventoryapp.ToReservationResponse(reservation, h.now()))
}

// Extend pushes the expiry of an active hold
//
// POST /api/v1/reservations/:id/extend
func (h *ReservationHandler) Extend(c *gin.Context) {
	tenantID, reservationID, ok := h.reservationParams(c)
	if !ok {
		return
	}
	var req inventoryapp.ExtendReservationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	reservation, err := h.reservations.ExtendReservation(c.Request.Context(), tenantID, reservationID, req.AdditionalMinutes)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inventoryapp.ToReservationResponse(reservation, h.now()))
}

// Fulfill marks a hold as consumed by a sale
//
// POST /api/v1/reservations/:id/fulfill
func (h *ReservationHandler) Fulfill(c *gin.Context) {
	tenantID, reservationID, ok := h.reservationParams(c)
	if !ok {
		return
	}
	reservation, err := h.reservations.FulfillReservation(c.Request.Context(), tenantID, reservationID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inventoryapp.ToReservationResponse(reservation, h.now()))
}

// ListByCustomer lists a customer's live holds
//
// GET /api/v1/customers/:id/reservations
func (h *ReservationHandler) ListByCustomer(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.TenantRequired(c)
		return
	}
	reservations, err := h.reservations.GetCustomerReservations(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inventoryapp.ToReservationResponses(reservations, h.now()))
}

func (h *ReservationHandler) reservationParams(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.TenantRequired(c)
		return uuid.Nil, uuid.Nil, false
	}
	reservationID, err := parseUUIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid reservation ID format")
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, reservationID, true
}
