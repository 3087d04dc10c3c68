// Package common defines shared constants, sentinel errors and small helpers
// used across the crosspost server and tools. Callers should use errors.Is to
// match the sentinel values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound     = errors.New("not found")
	ErrStatusConflict = errors.New("status conflict")

	// Service-level errors (generic/internal flow control).
	ErrorUnauthorized = errors.New("unauthorized")

	// Policy errors, rejected before any mutation.
	ErrForbidden    = errors.New("forbidden")
	ErrSelfApproval = errors.New("self-approval is not allowed")

	// Validation / lifecycle errors.
	ErrValidation          = errors.New("validation error")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidState = errors.New("invalid or expired authorization state")

	// Vault errors.
	ErrIntegrity   = errors.New("credential integrity check failed")
	ErrVaultLocked = errors.New("credential vault has no key")
)

// ForbiddenError reports an ownership or role violation. It unwraps to
// ErrForbidden.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%v: %s", ErrForbidden, e.Reason)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// ValidationError reports invalid command input. It unwraps to ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Forbidden is a shorthand for &ForbiddenError{Reason: reason}.
func Forbidden(reason string) error { return &ForbiddenError{Reason: reason} }

// Invalid is a shorthand for &ValidationError{Field: field, Reason: reason}.
func Invalid(field, reason string) error { return &ValidationError{Field: field, Reason: reason} }
