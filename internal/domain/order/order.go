package order

import (
	"time"

	"github.com/coccinelle/backend/internal/domain/customer"
	"github.com/coccinelle/backend/internal/domain/shared"
)

// Status is the commercial state of an order
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusOnHold     Status = "on_hold"
)

// PaymentStatus is the payment state of an order
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentPaid              PaymentStatus = "paid"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

// FulfillmentStatus is the shipping state of an order
type FulfillmentStatus string

const (
	FulfillmentUnfulfilled        FulfillmentStatus = "unfulfilled"
	FulfillmentPartiallyFulfilled FulfillmentStatus = "partially_fulfilled"
	FulfillmentFulfilled          FulfillmentStatus = "fulfilled"
	FulfillmentReturned           FulfillmentStatus = "returned"
	FulfillmentCancelled          FulfillmentStatus = "cancelled"
)

// Customer is the buyer snapshot carried by an order
type Customer struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Item is one order line
type Item struct {
	ID        string       `json:"id"`
	ProductID string       `json:"product_id"`
	VariantID string       `json:"variant_id,omitempty"`
	Name      string       `json:"name"`
	SKU       string       `json:"sku,omitempty"`
	Quantity  int          `json:"quantity"`
	Price     shared.Money `json:"price"`
	Total     shared.Money `json:"total"`
}

// Order is a projection of an order owned by its source-of-truth system
type Order struct {
	ID                string            `json:"id"`
	ExternalID        string            `json:"external_id,omitempty"`
	OrderNumber       string            `json:"order_number"`
	Customer          Customer          `json:"customer"`
	Items             []Item            `json:"items"`
	Subtotal          shared.Money      `json:"subtotal"`
	Tax               *shared.Money     `json:"tax,omitempty"`
	Shipping          *shared.Money     `json:"shipping,omitempty"`
	Discount          *shared.Money     `json:"discount,omitempty"`
	Total             shared.Money      `json:"total"`
	Status            Status            `json:"status"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status"`
	ShippingAddress   *customer.Address `json:"shipping_address,omitempty"`
	TrackingNumber    string            `json:"tracking_number,omitempty"`
	TrackingURL       string            `json:"tracking_url,omitempty"`
	Carrier           string            `json:"carrier,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	PaidAt            *time.Time        `json:"paid_at,omitempty"`
	ShippedAt         *time.Time        `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time        `json:"delivered_at,omitempty"`
	Notes             string            `json:"notes,omitempty"`
}

// IsClosed reports whether the order can no longer change
func (o *Order) IsClosed() bool {
	return o.Status == StatusCancelled || o.Status == StatusRefunded
}

// Cancel cancels an order that has not shipped yet
func (o *Order) Cancel(reason string, now time.Time) error {
	if o.Status == StatusCancelled {
		return nil
	}
	if o.IsClosed() || o.Status == StatusCompleted || o.ShippedAt != nil {
		return ErrOrderNotCancellable
	}
	o.Status = StatusCancelled
	o.FulfillmentStatus = FulfillmentCancelled
	if reason != "" {
		o.Notes = reason
	}
	o.UpdatedAt = now
	return nil
}

// Shipment carries what MarkAsShipped records
type Shipment struct {
	TrackingNumber string     `json:"tracking_number" validate:"required"`
	Carrier        string     `json:"carrier" validate:"required"`
	TrackingURL    string     `json:"tracking_url,omitempty" validate:"omitempty,url"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
}

// MarkShipped records tracking and sets the order fulfilled
func (o *Order) MarkShipped(s Shipment, now time.Time) error {
	if o.IsClosed() {
		return ErrOrderClosed
	}
	shippedAt := now
	if s.ShippedAt != nil {
		shippedAt = *s.ShippedAt
	}
	o.TrackingNumber = s.TrackingNumber
	o.Carrier = s.Carrier
	o.TrackingURL = s.TrackingURL
	o.ShippedAt = &shippedAt
	o.FulfillmentStatus = FulfillmentFulfilled
	o.UpdatedAt = now
	return nil
}

// MarkDelivered completes the order
func (o *Order) MarkDelivered(deliveredAt, now time.Time) error {
	if o.IsClosed() {
		return ErrOrderClosed
	}
	o.DeliveredAt = &deliveredAt
	o.Status = StatusCompleted
	o.UpdatedAt = now
	return nil
}

// Update carries the editable order fields
type Update struct {
	Status            Status            `json:"status,omitempty"`
	PaymentStatus     PaymentStatus     `json:"payment_status,omitempty"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status,omitempty"`
	Notes             *string           `json:"notes,omitempty"`
	ShippingAddress   *customer.Address `json:"shipping_address,omitempty"`
}

// Apply writes non-empty update fields
func (o *Order) Apply(u Update, now time.Time) {
	if u.Status != "" {
		o.Status = u.Status
	}
	if u.PaymentStatus != "" {
		o.PaymentStatus = u.PaymentStatus
	}
	if u.FulfillmentStatus != "" {
		o.FulfillmentStatus = u.FulfillmentStatus
	}
	if u.Notes != nil {
		o.Notes = *u.Notes
	}
	if u.ShippingAddress != nil {
		o.ShippingAddress = u.ShippingAddress
	}
	o.UpdatedAt = now
}

// CreateParams is the input of CreateOrder
type CreateParams struct {
	Customer        Customer          `json:"customer"`
	Items           []Item            `json:"items" validate:"required,min=1,dive"`
	ShippingAddress *customer.Address `json:"shipping_address,omitempty"`
	Shipping        *shared.Money     `json:"shipping,omitempty"`
	Notes           string            `json:"notes,omitempty"`
}

// ListOptions filters ListOrders
type ListOptions struct {
	CustomerID string
	Status     Status
	Page       int
	PerPage    int
}

// Matches reports whether o passes the filter
func (l ListOptions) Matches(o *Order) bool {
	if l.CustomerID != "" && o.Customer.ID != l.CustomerID {
		return false
	}
	if l.Status != "" && o.Status != l.Status {
		return false
	}
	return true
}
