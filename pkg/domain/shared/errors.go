// Package shared provides shared domain types and utilities.
package shared

import "errors"

// Domain errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation error")
	ErrUnavailable  = errors.New("unavailable")
	ErrInternal     = errors.New("internal error")
)

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable checks if the error reports an unreachable dependency.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
