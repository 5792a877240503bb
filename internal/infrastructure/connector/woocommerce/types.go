package woocommerce

import (
	"strconv"
	"strings"
	"time"

	"github.com/coccinelle/backend/internal/domain/customer"
	"github.com/coccinelle/backend/internal/domain/order"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// WooCommerce order statuses
const (
	wcPending    = "pending"
	wcProcessing = "processing"
	wcOnHold     = "on-hold"
	wcCompleted  = "completed"
	wcCancelled  = "cancelled"
	wcRefunded   = "refunded"
	wcFailed     = "failed"
)

// Order meta keys written by this connector. WooCommerce has no native
// shipment tracking.
const (
	metaTrackingNumber = "_coccinelle_tracking_number"
	metaCarrier        = "_coccinelle_carrier"
	metaTrackingURL    = "_coccinelle_tracking_url"
	metaShippedAt      = "_coccinelle_shipped_at"
	metaDeliveredAt    = "_coccinelle_delivered_at"
)

// wcDateLayout is the format of the *_gmt date fields
const wcDateLayout = "2006-01-02T15:04:05"

type wcBilling struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type wcShipping struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Address1  string `json:"address_1"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
}

type wcLineItem struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	ProductID   int64           `json:"product_id"`
	VariationID int64           `json:"variation_id"`
	Quantity    int             `json:"quantity"`
	SKU         string          `json:"sku"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Total       decimal.Decimal `json:"total"`
}

// wcLineItemWrite lets WooCommerce price the line from the catalog
type wcLineItemWrite struct {
	ProductID   int64 `json:"product_id"`
	VariationID int64 `json:"variation_id,omitempty"`
	Quantity    int   `json:"quantity"`
}

type wcMeta struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type wcShippingLine struct {
	MethodID    string `json:"method_id"`
	MethodTitle string `json:"method_title"`
	Total       string `json:"total"`
}

// wcOrder is a REST v3 order
type wcOrder struct {
	ID               int64           `json:"id"`
	Number           string          `json:"number"`
	Status           string          `json:"status"`
	Currency         string          `json:"currency"`
	DateCreatedGMT   string          `json:"date_created_gmt"`
	DateModifiedGMT  string          `json:"date_modified_gmt"`
	DatePaidGMT      *string         `json:"date_paid_gmt"`
	DateCompletedGMT *string         `json:"date_completed_gmt"`
	DiscountTotal    decimal.Decimal `json:"discount_total"`
	ShippingTotal    decimal.Decimal `json:"shipping_total"`
	TotalTax         decimal.Decimal `json:"total_tax"`
	Total            decimal.Decimal `json:"total"`
	CustomerID       int64           `json:"customer_id"`
	CustomerNote     string          `json:"customer_note"`
	Billing          wcBilling       `json:"billing"`
	Shipping         wcShipping      `json:"shipping"`
	LineItems        []wcLineItem    `json:"line_items"`
	MetaData         []wcMeta        `json:"meta_data"`
}

func (o *wcOrder) meta(key string) string {
	for _, m := range o.MetaData {
		if m.Key == key {
			if s, ok := m.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

// wcOrderWrite is the body of order create and update
type wcOrderWrite struct {
	Status        string            `json:"status,omitempty"`
	CustomerID    int64             `json:"customer_id,omitempty"`
	CustomerNote  *string           `json:"customer_note,omitempty"`
	SetPaid       bool              `json:"set_paid,omitempty"`
	Billing       *wcBilling        `json:"billing,omitempty"`
	Shipping      *wcShipping       `json:"shipping,omitempty"`
	LineItems     []wcLineItemWrite `json:"line_items,omitempty"`
	ShippingLines []wcShippingLine  `json:"shipping_lines,omitempty"`
	MetaData      []wcMeta          `json:"meta_data,omitempty"`
}

// statusFromWC maps a WooCommerce status to the order and payment status
func statusFromWC(status string, paid bool) (order.Status, order.PaymentStatus) {
	payment := order.PaymentPending
	if paid {
		payment = order.PaymentPaid
	}
	switch status {
	case wcProcessing:
		return order.StatusProcessing, order.PaymentPaid
	case wcOnHold:
		return order.StatusOnHold, payment
	case wcCompleted:
		return order.StatusCompleted, order.PaymentPaid
	case wcCancelled:
		return order.StatusCancelled, payment
	case wcRefunded:
		return order.StatusRefunded, order.PaymentRefunded
	case wcFailed:
		return order.StatusCancelled, order.PaymentFailed
	default:
		return order.StatusPending, payment
	}
}

// statusToWC maps an order status to its WooCommerce status
func statusToWC(status order.Status) string {
	switch status {
	case order.StatusOnHold:
		return wcOnHold
	case order.StatusPending, order.StatusProcessing, order.StatusCompleted, order.StatusCancelled, order.StatusRefunded:
		return string(status)
	default:
		return ""
	}
}

func toOrder(o *wcOrder, fallbackCurrency string) *order.Order {
	currency := strings.ToUpper(o.Currency)
	if currency == "" {
		currency = fallbackCurrency
	}
	money := func(d decimal.Decimal) shared.Money {
		return shared.Money{Amount: d, Currency: currency}
	}
	optional := func(d decimal.Decimal) *shared.Money {
		if d.IsZero() {
			return nil
		}
		m := money(d)
		return &m
	}

	paidAt := parseDatePtr(o.DatePaidGMT)
	status, payment := statusFromWC(o.Status, paidAt != nil)

	subtotal := decimal.Zero
	items := make([]order.Item, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		subtotal = subtotal.Add(li.Subtotal)
		item := order.Item{
			ID:        strconv.FormatInt(li.ID, 10),
			ProductID: strconv.FormatInt(li.ProductID, 10),
			Name:      li.Name,
			SKU:       li.SKU,
			Quantity:  li.Quantity,
			Price:     money(li.Price),
			Total:     money(li.Total),
		}
		if li.VariationID != 0 {
			item.VariantID = strconv.FormatInt(li.VariationID, 10)
		}
		items = append(items, item)
	}

	out := &order.Order{
		ID:          strconv.FormatInt(o.ID, 10),
		ExternalID:  strconv.FormatInt(o.ID, 10),
		OrderNumber: "#" + o.Number,
		Customer: order.Customer{
			FirstName: o.Billing.FirstName,
			LastName:  o.Billing.LastName,
			Email:     customer.NormalizeEmail(o.Billing.Email),
			Phone:     o.Billing.Phone,
		},
		Items:             items,
		Subtotal:          money(subtotal),
		Tax:               optional(o.TotalTax),
		Shipping:          optional(o.ShippingTotal),
		Discount:          optional(o.DiscountTotal),
		Total:             money(o.Total),
		Status:            status,
		PaymentStatus:     payment,
		FulfillmentStatus: order.FulfillmentUnfulfilled,
		TrackingNumber:    o.meta(metaTrackingNumber),
		TrackingURL:       o.meta(metaTrackingURL),
		Carrier:           o.meta(metaCarrier),
		CreatedAt:         parseDate(o.DateCreatedGMT),
		UpdatedAt:         parseDate(o.DateModifiedGMT),
		PaidAt:            paidAt,
		ShippedAt:         parseMetaDate(o.meta(metaShippedAt)),
		DeliveredAt:       parseMetaDate(o.meta(metaDeliveredAt)),
		Notes:             o.CustomerNote,
	}
	if o.CustomerID != 0 {
		out.Customer.ID = strconv.FormatInt(o.CustomerID, 10)
	}
	if addr := toAddress(o.Shipping); !addr.IsZero() {
		out.ShippingAddress = &addr
	}
	switch {
	case status == order.StatusCancelled:
		out.FulfillmentStatus = order.FulfillmentCancelled
	case status == order.StatusRefunded:
		out.FulfillmentStatus = order.FulfillmentReturned
	case out.ShippedAt != nil || status == order.StatusCompleted:
		out.FulfillmentStatus = order.FulfillmentFulfilled
	}
	return out
}

func toAddress(s wcShipping) customer.Address {
	return customer.Address{
		Street:     s.Address1,
		City:       s.City,
		State:      s.State,
		PostalCode: s.Postcode,
		Country:    s.Country,
	}
}

func fromAddress(a *customer.Address) *wcShipping {
	if a == nil {
		return nil
	}
	return &wcShipping{
		Address1: a.Street,
		City:     a.City,
		State:    a.State,
		Postcode: a.PostalCode,
		Country:  a.Country,
	}
}

func parseDate(value string) time.Time {
	t, err := time.ParseInLocation(wcDateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseDatePtr(value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	t := parseDate(*value)
	if t.IsZero() {
		return nil
	}
	return &t
}

func parseMetaDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &t
}

// parseID parses a WooCommerce numeric identifier
func parseID(field, value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(value), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidationError("woocommerce: %s must be a numeric id, got %q", field, value)
	}
	return id, nil
}
