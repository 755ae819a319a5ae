package domain

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. A DomainError always wraps exactly one of them.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state transition")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("temporarily unavailable")
)

// DomainError carries an error kind plus a human readable message.
type DomainError struct {
	Err     error
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Unwrap lets errors.Is match on the sentinel kind.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, id string) *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Code:    "not_found",
		Message: fmt.Sprintf("%s with id %s not found", entity, id),
	}
}

// NewValidationError reports rejected input.
func NewValidationError(message string) *DomainError {
	return &DomainError{Err: ErrValidation, Code: "validation_error", Message: message}
}

// NewConflictError reports a lost race or a uniqueness violation.
func NewConflictError(message string) *DomainError {
	return &DomainError{Err: ErrConflict, Code: "conflict", Message: message}
}

// NewCodedConflictError is NewConflictError with a machine readable code.
func NewCodedConflictError(code, message string) *DomainError {
	return &DomainError{Err: ErrConflict, Code: code, Message: message}
}

// NewCodedValidationError is NewValidationError with a machine readable code.
func NewCodedValidationError(code, message string) *DomainError {
	return &DomainError{Err: ErrValidation, Code: code, Message: message}
}

// NewInvalidStateError reports an illegal status transition.
func NewInvalidStateError(from, to string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidState,
		Code:    "invalid_state",
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

// NewUnauthorizedError reports a missing or invalid identity.
func NewUnauthorizedError(message string) *DomainError {
	return &DomainError{Err: ErrUnauthorized, Code: "unauthorized", Message: message}
}

// NewUnavailableError reports that the service cannot take the request now.
func NewUnavailableError(message string) *DomainError {
	return &DomainError{Err: ErrUnavailable, Code: "unavailable", Message: message}
}

// IsNotFound reports whether err is a not-found domain error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
