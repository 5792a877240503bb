package shared

import (
	"errors"
	"fmt"
)

// Error codes shared by every bounded context.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeAlreadyExists     = "ALREADY_EXISTS"
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidState      = "INVALID_STATE"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeNotConfigured     = "NOT_CONFIGURED"
	CodeExternalSystem    = "EXTERNAL_SYSTEM_ERROR"
	CodeConcurrency       = "CONCURRENCY_CONFLICT"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches the same error, or one of the root errors below carrying
// the same code, so that every not-found sentinel matches ErrNotFound
// while two distinct not-found sentinels stay distinguishable.
func (e *DomainError) Is(target error) bool {
	de, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if de == e {
		return true
	}
	return de.Code == e.Code && rootErrors[de.Code] == de
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists       = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrValidation          = NewDomainError(CodeValidation, "Invalid input provided")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrInsufficientStock   = NewDomainError(CodeInsufficientStock, "Insufficient stock available")
	ErrNotConfigured       = NewDomainError(CodeNotConfigured, "Integration is not configured")
	ErrExternalSystem      = NewDomainError(CodeExternalSystem, "External system error")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrency, "Resource was modified by another process")
)

var rootErrors = map[string]*DomainError{
	CodeNotFound:          ErrNotFound,
	CodeAlreadyExists:     ErrAlreadyExists,
	CodeValidation:        ErrValidation,
	CodeInvalidState:      ErrInvalidState,
	CodeInsufficientStock: ErrInsufficientStock,
	CodeNotConfigured:     ErrNotConfigured,
	CodeExternalSystem:    ErrExternalSystem,
	CodeConcurrency:       ErrConcurrencyConflict,
}

// NewValidationError builds a VALIDATION_ERROR with a formatted message.
func NewValidationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

// CodeOf returns the domain code carried by err, or "" when err has none.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
