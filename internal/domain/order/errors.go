package order

import "github.com/coccinelle/backend/internal/domain/shared"

var (
	ErrOrderNotFound             = shared.NewDomainError(shared.CodeNotFound, "order: not found")
	ErrExchangeNotFound          = shared.NewDomainError(shared.CodeNotFound, "order: exchange not found")
	ErrOrderNotCancellable       = shared.NewDomainError(shared.CodeInvalidState, "order: cannot be cancelled once shipped or completed")
	ErrOrderClosed               = shared.NewDomainError(shared.CodeInvalidState, "order: order is cancelled or refunded")
	ErrInvalidExchangeTransition = shared.NewDomainError(shared.CodeInvalidState, "order: invalid exchange status transition")
)
