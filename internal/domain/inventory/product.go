package inventory

import (
	"strings"
	"time"

	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// LowStockThreshold is the quantity at or below which stock is reported as low.
const LowStockThreshold = 5

// StockStatus is derived from a quantity, never stored on its own.
type StockStatus string

const (
	StockStatusInStock    StockStatus = "in_stock"
	StockStatusLowStock   StockStatus = "low_stock"
	StockStatusOutOfStock StockStatus = "out_of_stock"
)

// StockStatusFor maps a quantity to its stock status.
func StockStatusFor(quantity int) StockStatus {
	switch {
	case quantity <= 0:
		return StockStatusOutOfStock
	case quantity <= LowStockThreshold:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

// IsValid reports whether s is a known status
func (s StockStatus) IsValid() bool {
	switch s {
	case StockStatusInStock, StockStatusLowStock, StockStatusOutOfStock:
		return true
	}
	return false
}

// Variant is a sellable variation of a product (size, color...)
type Variant struct {
	ID            string            `json:"id"`
	ProductID     string            `json:"product_id"`
	Name          string            `json:"name"`
	SKU           string            `json:"sku"`
	Price         *shared.Money     `json:"price,omitempty"`
	StockQuantity int               `json:"stock_quantity"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// StockStatus returns the status derived from the variant's quantity
func (v *Variant) StockStatus() StockStatus {
	return StockStatusFor(v.StockQuantity)
}

// Product is a catalog item. When it has variants, stock lives on the
// variants and the product quantity is their sum.
type Product struct {
	ID             string        `json:"id"`
	TenantID       uuid.UUID     `json:"tenant_id"`
	ExternalID     string        `json:"external_id,omitempty"`
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	SKU            string        `json:"sku"`
	Price          shared.Money  `json:"price"`
	CompareAtPrice *shared.Money `json:"compare_at_price,omitempty"`
	StockQuantity  int           `json:"stock_quantity"`
	Variants       []Variant     `json:"variants,omitempty"`
	Categories     []string      `json:"categories,omitempty"`
	Tags           []string      `json:"tags,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// HasVariants reports whether the product is sold through variants
func (p *Product) HasVariants() bool {
	return len(p.Variants) > 0
}

// TotalStock returns the quantity on hand across variants, or the
// product's own quantity when it has none.
func (p *Product) TotalStock() int {
	if !p.HasVariants() {
		return p.StockQuantity
	}
	total := 0
	for i := range p.Variants {
		total += p.Variants[i].StockQuantity
	}
	return total
}

// StockStatus returns the status derived from TotalStock
func (p *Product) StockStatus() StockStatus {
	return StockStatusFor(p.TotalStock())
}

// FindVariant returns the variant with the given id
func (p *Product) FindVariant(variantID string) (*Variant, error) {
	if !p.HasVariants() {
		return nil, ErrProductHasNoVariants
	}
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			return &p.Variants[i], nil
		}
	}
	return nil, ErrVariantNotFound
}

// Availability reports stock for the product, or for one of its variants
// when variantID is set and the product has variants.
func (p *Product) Availability(variantID, location string) (StockInfo, error) {
	if variantID != "" && p.HasVariants() {
		v, err := p.FindVariant(variantID)
		if err != nil {
			return StockInfo{}, err
		}
		return NewStockInfo(p.ID, v.ID, v.StockQuantity, location), nil
	}
	return NewStockInfo(p.ID, "", p.TotalStock(), location), nil
}

// Matches reports whether the product name, description or SKU contains
// the already-folded query.
func (p *Product) Matches(foldedQuery string, fold func(string) string) bool {
	if foldedQuery == "" {
		return true
	}
	return strings.Contains(fold(p.Name), foldedQuery) ||
		strings.Contains(fold(p.Description), foldedQuery) ||
		strings.Contains(fold(p.SKU), foldedQuery)
}

// StockInfo is the result of an availability check
type StockInfo struct {
	ProductID string      `json:"product_id"`
	VariantID string      `json:"variant_id,omitempty"`
	Available bool        `json:"available"`
	Quantity  int         `json:"quantity"`
	Status    StockStatus `json:"status"`
	Location  string      `json:"location,omitempty"`
}

// NewStockInfo builds StockInfo from a quantity
func NewStockInfo(productID, variantID string, quantity int, location string) StockInfo {
	return StockInfo{
		ProductID: productID,
		VariantID: variantID,
		Available: quantity > 0,
		Quantity:  quantity,
		Status:    StockStatusFor(quantity),
		Location:  location,
	}
}

// StockItemRef identifies a product or one of its variants
type StockItemRef struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id,omitempty"`
}

// SearchOptions narrows SearchProducts
type SearchOptions struct {
	Category          string
	Tags              []string
	IncludeOutOfStock bool
	Limit             int
}

// Accepts applies the category, tag and stock filters to p
func (o SearchOptions) Accepts(p *Product) bool {
	if o.Category != "" && !contains(p.Categories, o.Category) {
		return false
	}
	if len(o.Tags) > 0 {
		hit := false
		for _, t := range o.Tags {
			if contains(p.Tags, t) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if !o.IncludeOutOfStock && p.StockStatus() == StockStatusOutOfStock {
		return false
	}
	return true
}

// ListOptions paginates ListProducts. An empty StockStatus lists everything.
type ListOptions struct {
	Page        int
	PerPage     int
	StockStatus StockStatus
	// SortBy is a whitelisted column; unknown values fall back to id
	SortBy    string
	SortOrder string
}

// Normalize fills page defaults
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PerPage < 1 {
		o.PerPage = 20
	}
	return o
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
