// Package apperrors holds the error taxonomy shared by every layer.
// Handlers map these to HTTP responses with utils.WriteAppError.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated     = errors.New("authentication required")
	ErrNotAMember          = errors.New("not a member of organization")
	ErrInsufficientRole    = errors.New("insufficient role for this action")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrNoOrganization      = errors.New("user does not belong to any organization")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrNotImplemented      = errors.New("not implemented for this billing provider")
	ErrConflict            = errors.New("conflict")

	// ErrLastOwner 组织至少保留一个 owner
	ErrLastOwner = fmt.Errorf("%w: organization must keep at least one owner", ErrConflict)
)

// ProviderError wraps a third-party payment API failure
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Provider wraps err as a ProviderError; nil stays nil
func Provider(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

// Invalid returns an ErrInvalidInput carrying a field-level message
func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound naming the missing entity
func NotFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}
