package order

import (
	"time"

	"github.com/coccinelle/backend/internal/domain/shared"
)

// ExchangeStatus tracks a return or exchange
type ExchangeStatus string

const (
	ExchangeRequested      ExchangeStatus = "requested"
	ExchangeApproved       ExchangeStatus = "approved"
	ExchangeLabelGenerated ExchangeStatus = "label_generated"
	ExchangeInTransit      ExchangeStatus = "in_transit"
	ExchangeReceived       ExchangeStatus = "received"
	ExchangeCompleted      ExchangeStatus = "completed"
	ExchangeCancelled      ExchangeStatus = "cancelled"
)

var exchangeTransitions = map[ExchangeStatus][]ExchangeStatus{
	ExchangeRequested:      {ExchangeApproved, ExchangeCancelled},
	ExchangeApproved:       {ExchangeLabelGenerated, ExchangeInTransit, ExchangeCancelled},
	ExchangeLabelGenerated: {ExchangeInTransit, ExchangeCancelled},
	ExchangeInTransit:      {ExchangeReceived},
	ExchangeReceived:       {ExchangeCompleted},
}

// CanTransitionTo reports whether next is reachable from s
func (s ExchangeStatus) CanTransitionTo(next ExchangeStatus) bool {
	for _, allowed := range exchangeTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ExchangeItem is one line being returned or sent out
type ExchangeItem struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	Reason    string `json:"reason,omitempty"`
}

// ReturnLabel is a prepaid return shipping label
type ReturnLabel struct {
	URL            string       `json:"url"`
	TrackingNumber string       `json:"tracking_number"`
	Carrier        string       `json:"carrier"`
	Cost           shared.Money `json:"cost"`
}

// Exchange is a return or exchange request against an order
type Exchange struct {
	ID            string         `json:"id"`
	OrderID       string         `json:"order_id"`
	CustomerID    string         `json:"customer_id"`
	ReturnItems   []ExchangeItem `json:"return_items"`
	ExchangeItems []ExchangeItem `json:"exchange_items"`
	Status        ExchangeStatus `json:"status"`
	Reason        string         `json:"reason"`
	ReturnLabel   *ReturnLabel   `json:"return_label,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ReceivedAt    *time.Time     `json:"received_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Notes         string         `json:"notes,omitempty"`
}

// ExchangeParams is the input of CreateExchange
type ExchangeParams struct {
	OrderID       string         `json:"order_id" validate:"required"`
	ReturnItems   []ExchangeItem `json:"return_items" validate:"required,min=1,dive"`
	ExchangeItems []ExchangeItem `json:"exchange_items" validate:"dive"`
	Reason        string         `json:"reason" validate:"required"`
	Notes         string         `json:"notes,omitempty"`
}

// TransitionTo moves the exchange along its lifecycle
func (e *Exchange) TransitionTo(next ExchangeStatus, now time.Time) error {
	if e.Status == next {
		return nil
	}
	if !e.Status.CanTransitionTo(next) {
		return ErrInvalidExchangeTransition
	}
	e.Status = next
	switch next {
	case ExchangeReceived:
		e.ReceivedAt = &now
	case ExchangeCompleted:
		e.CompletedAt = &now
	}
	return nil
}

// AttachLabel stores a generated return label
func (e *Exchange) AttachLabel(label ReturnLabel, now time.Time) error {
	if err := e.TransitionTo(ExchangeLabelGenerated, now); err != nil {
		return err
	}
	e.ReturnLabel = &label
	return nil
}
