package inventory

import "github.com/coccinelle/backend/internal/domain/shared"

var (
	ErrProductNotFound      = shared.NewDomainError(shared.CodeNotFound, "inventory: product not found")
	ErrVariantNotFound      = shared.NewDomainError(shared.CodeNotFound, "inventory: variant not found")
	ErrReservationNotFound  = shared.NewDomainError(shared.CodeNotFound, "inventory: reservation not found")
	ErrProductHasNoVariants = shared.NewDomainError(shared.CodeValidation, "inventory: product has no variants")
	ErrVariantRequired      = shared.NewDomainError(shared.CodeValidation, "inventory: variant is required for a product with variants")
	ErrInvalidStockUpdate   = shared.NewDomainError(shared.CodeValidation, "inventory: invalid stock update")
	ErrInvalidQuantity      = shared.NewDomainError(shared.CodeValidation, "inventory: quantity must be positive")
	ErrInvalidDuration      = shared.NewDomainError(shared.CodeValidation, "inventory: duration must be positive")
	ErrInsufficientStock    = shared.NewDomainError(shared.CodeInsufficientStock, "inventory: insufficient stock for reservation")
	ErrReservationNotActive = shared.NewDomainError(shared.CodeInvalidState, "inventory: reservation is not active")
	ErrReservationLapsed    = shared.NewDomainError(shared.CodeInvalidState, "inventory: reservation has lapsed")
)
