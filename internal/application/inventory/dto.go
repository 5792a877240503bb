package inventory

import (
	"time"

	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ReservationResponse represents a reservation in API responses
type ReservationResponse struct {
	ID         uuid.UUID                   `json:"id"`
	TenantID   uuid.UUID                   `json:"tenant_id"`
	ProductID  string                      `json:"product_id"`
	VariantID  string                      `json:"variant_id,omitempty"`
	CustomerID string                      `json:"customer_id"`
	Quantity   int                         `json:"quantity"`
	Status     inventory.ReservationStatus `json:"status"`
	ExpiresAt  time.Time                   `json:"expires_at"`
	ClosedAt   *time.Time                  `json:"closed_at,omitempty"`
	Notes      string                      `json:"notes,omitempty"`
	CreatedAt  time.Time                   `json:"created_at"`
	UpdatedAt  time.Time                   `json:"updated_at"`
}

// ToReservationResponse converts a reservation, reporting a lapsed but
// unswept hold as expired
func ToReservationResponse(r *inventory.Reservation, now time.Time) ReservationResponse {
	return ReservationResponse{
		ID:         r.ID,
		TenantID:   r.TenantID,
		ProductID:  r.ProductID,
		VariantID:  r.VariantID,
		CustomerID: r.CustomerID,
		Quantity:   r.Quantity,
		Status:     r.EffectiveStatus(now),
		ExpiresAt:  r.ExpiresAt,
		ClosedAt:   r.ClosedAt,
		Notes:      r.Notes,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// ToReservationResponses converts a slice of reservations
func ToReservationResponses(rs []inventory.Reservation, now time.Time) []ReservationResponse {
	out := make([]ReservationResponse, len(rs))
	for i := range rs {
		out[i] = ToReservationResponse(&rs[i], now)
	}
	return out
}

// VariantResponse represents a product variant in API responses
type VariantResponse struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	SKU           string                `json:"sku"`
	Price         *shared.Money         `json:"price,omitempty"`
	StockQuantity int                   `json:"stock_quantity"`
	StockStatus   inventory.StockStatus `json:"stock_status"`
	Attributes    map[string]string     `json:"attributes,omitempty"`
}

// ProductResponse represents a product in API responses. Stock status
// is derived here and never read from storage.
type ProductResponse struct {
	ID             string                `json:"id"`
	ExternalID     string                `json:"external_id,omitempty"`
	Name           string                `json:"name"`
	Description    string                `json:"description,omitempty"`
	SKU            string                `json:"sku"`
	Price          shared.Money          `json:"price"`
	CompareAtPrice *shared.Money         `json:"compare_at_price,omitempty"`
	StockQuantity  int                   `json:"stock_quantity"`
	StockStatus    inventory.StockStatus `json:"stock_status"`
	HasVariants    bool                  `json:"has_variants"`
	Variants       []VariantResponse     `json:"variants"`
	Categories     []string              `json:"categories"`
	Tags           []string              `json:"tags"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// ToProductResponse converts a domain product
func ToProductResponse(p *inventory.Product) ProductResponse {
	variants := make([]VariantResponse, len(p.Variants))
	for i := range p.Variants {
		v := &p.Variants[i]
		variants[i] = VariantResponse{
			ID:            v.ID,
			Name:          v.Name,
			SKU:           v.SKU,
			Price:         v.Price,
			StockQuantity: v.StockQuantity,
			StockStatus:   v.StockStatus(),
			Attributes:    v.Attributes,
		}
	}
	return ProductResponse{
		ID:             p.ID,
		ExternalID:     p.ExternalID,
		Name:           p.Name,
		Description:    p.Description,
		SKU:            p.SKU,
		Price:          p.Price,
		CompareAtPrice: p.CompareAtPrice,
		StockQuantity:  p.TotalStock(),
		StockStatus:    p.StockStatus(),
		HasVariants:    p.HasVariants(),
		Variants:       variants,
		Categories:     nonNil(p.Categories),
		Tags:           nonNil(p.Tags),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// ToProductResponses converts a slice of products
func ToProductResponses(ps []inventory.Product) []ProductResponse {
	out := make([]ProductResponse, len(ps))
	for i := range ps {
		out[i] = ToProductResponse(&ps[i])
	}
	return out
}

// ExtendReservationRequest is the body of an extend call
type ExtendReservationRequest struct {
	AdditionalMinutes int `json:"additional_minutes" binding:"required"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
