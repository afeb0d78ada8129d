package user

import (
	"errors"
	"fmt"

	"github.com/openlearn/admin-api/pkg/domain/shared"
)

// Domain errors for user operations.
var (
	ErrUserNotFound = fmt.Errorf("user %w", shared.ErrNotFound)

	// ErrStoreUnavailable is returned when the user store cannot be reached.
	// It signals a systemic failure rather than a problem with one user.
	ErrStoreUnavailable = fmt.Errorf("user store %w", shared.ErrUnavailable)
)

// NotFoundError creates a not found error for a specific user.
func NotFoundError(userID string) error {
	return fmt.Errorf("user with id %s: %w", userID, ErrUserNotFound)
}

// UnavailableError wraps a driver error as a store outage.
func UnavailableError(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// IsNotFound checks if the error indicates a missing user.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}
