package integration

import (
	"errors"
	"fmt"
	"time"

	"github.com/coccinelle/backend/internal/domain/shared"
)

var (
	ErrNotConfigured          = shared.NewDomainError(shared.CodeNotConfigured, "integration: not configured for tenant")
	ErrNotEnabled             = shared.NewDomainError(shared.CodeNotConfigured, "integration: not enabled")
	ErrMissingCredentials     = shared.NewDomainError(shared.CodeNotConfigured, "integration: missing credentials")
	ErrUnknownSystem          = shared.NewDomainError(shared.CodeValidation, "integration: unknown system type")
	ErrSystemNotImplemented   = shared.NewDomainError(shared.CodeValidation, "integration: system not yet implemented")
	ErrCapabilityNotSupported = shared.NewDomainError(shared.CodeValidation, "integration: capability not supported by system")
	ErrOperationNotSupported  = shared.NewDomainError(shared.CodeValidation, "integration: operation not supported by system")
	ErrNotExternalCRM         = shared.NewDomainError(shared.CodeValidation, "integration: system is not an external CRM")
	ErrMappingNotFound        = shared.NewDomainError(shared.CodeNotFound, "integration: sync mapping not found")
	ErrExternalNotFound       = shared.NewDomainError(shared.CodeNotFound, "integration: record not found on external system")
	ErrInvalidMapping         = shared.NewDomainError(shared.CodeValidation, "integration: invalid sync mapping")
	ErrInvalidResponse        = errors.New("integration: invalid platform response")
)

// ExternalSystemError wraps a failed call to a platform API. Transient
// failures (rate limiting, 5xx, network) may be retried.
type ExternalSystemError struct {
	System     SystemType
	Operation  string
	StatusCode int
	Transient  bool
	RetryAfter time.Duration
	Err        error
}

// Error implements error
func (e *ExternalSystemError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("integration: %s %s failed (HTTP %d): %v", e.System, e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("integration: %s %s failed: %v", e.System, e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *ExternalSystemError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match shared.ErrExternalSystem
func (e *ExternalSystemError) Is(target error) bool {
	return shared.ErrExternalSystem.Is(target)
}

// IsTransient reports whether err is an ExternalSystemError worth retrying
func IsTransient(err error) bool {
	var ese *ExternalSystemError
	return errors.As(err, &ese) && ese.Transient
}
