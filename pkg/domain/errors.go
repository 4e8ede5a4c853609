package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error with a code and message
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeUnauthenticated  = "UNAUTHENTICATED"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInvalidState     = "INVALID_STATE"
	ErrCodeInfra            = "INFRA"
)

// NewUnauthenticatedError is returned when the actor does not resolve to a worker
func NewUnauthenticatedError() error {
	return &DomainError{
		Code:    ErrCodeUnauthenticated,
		Message: "Authentication required",
	}
}

// NewPermissionDeniedError is returned when the actor's role or scope is insufficient
func NewPermissionDeniedError(msg string) error {
	return &DomainError{
		Code:    ErrCodePermissionDenied,
		Message: msg,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) error {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewInvalidStateError covers missing fields and operations that do not apply
// to the current state, such as unassigning an unassigned lead.
func NewInvalidStateError(msg string) error {
	return &DomainError{
		Code:    ErrCodeInvalidState,
		Message: msg,
	}
}

// NewInfraError wraps a transaction or database failure
func NewInfraError(op string, err error) error {
	return &DomainError{
		Code:    ErrCodeInfra,
		Message: fmt.Sprintf("failed to %s", op),
		Err:     err,
	}
}

// Helper functions to check error types

// IsUnauthenticated checks if the error is an unauthenticated error
func IsUnauthenticated(err error) bool {
	return GetErrorCode(err) == ErrCodeUnauthenticated
}

// IsPermissionDenied checks if the error is a permission denied error
func IsPermissionDenied(err error) bool {
	return GetErrorCode(err) == ErrCodePermissionDenied
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return GetErrorCode(err) == ErrCodeNotFound
}

// IsInvalidState checks if the error is an invalid state error
func IsInvalidState(err error) bool {
	return GetErrorCode(err) == ErrCodeInvalidState
}

// IsInfra checks if the error is an infrastructure error. Errors that are not
// domain errors at all are treated as infrastructure failures.
func IsInfra(err error) bool {
	return err != nil && GetErrorCode(err) == ErrCodeInfra
}

// GetErrorCode extracts the error code from a domain error anywhere in the chain
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInfra
}
