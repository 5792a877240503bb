package inventory

import "fmt"

// StockMode selects how UpdateStock interprets its quantity
type StockMode string

const (
	// StockModeSet replaces the quantity
	StockModeSet StockMode = "set"
	// StockModeAdjust adds a signed delta
	StockModeAdjust StockMode = "adjust"
)

// StockUpdate describes a manual stock change
type StockUpdate struct {
	ProductID string    `json:"product_id" validate:"required"`
	VariantID string    `json:"variant_id,omitempty"`
	Quantity  int       `json:"quantity"`
	Mode      StockMode `json:"mode,omitempty" validate:"omitempty,oneof=set adjust"`
	Reason    string    `json:"reason,omitempty" validate:"max=255"`
}

// Apply computes the new quantity from current. The result never goes negative.
func (u StockUpdate) Apply(current int) (int, error) {
	var next int
	switch u.Mode {
	case StockModeSet, "":
		next = u.Quantity
	case StockModeAdjust:
		next = current + u.Quantity
	default:
		return current, fmt.Errorf("%w: unknown stock mode %q", ErrInvalidStockUpdate, u.Mode)
	}
	if next < 0 {
		return current, fmt.Errorf("%w: quantity would become %d", ErrInvalidStockUpdate, next)
	}
	return next, nil
}
