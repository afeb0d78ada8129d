package role

import (
	"errors"
	"fmt"

	"github.com/openlearn/admin-api/pkg/domain/shared"
)

// Domain errors for role hierarchy operations.
var (
	ErrRoleNotFound      = fmt.Errorf("%w: role not found", shared.ErrNotFound)
	ErrRoleNameRequired  = fmt.Errorf("%w: role name is required", shared.ErrValidation)
	ErrInvalidLevel      = fmt.Errorf("%w: role level must be non-negative", shared.ErrValidation)
	ErrDuplicateRole     = fmt.Errorf("%w: duplicate role name", shared.ErrValidation)
	ErrDuplicateLevel    = fmt.Errorf("%w: role levels must be unique", shared.ErrValidation)
	ErrOwnerMissing      = fmt.Errorf("%w: owner role is missing", shared.ErrValidation)
	ErrOwnerNotTop       = fmt.Errorf("%w: owner role must hold the highest level", shared.ErrValidation)
	ErrEmptyHierarchy    = fmt.Errorf("%w: role hierarchy is empty", shared.ErrValidation)
	ErrHierarchyNotReady = fmt.Errorf("%w: role hierarchy has not been loaded", shared.ErrUnavailable)

	// ErrFetchFailed is returned when the role provider cannot be reached.
	ErrFetchFailed = fmt.Errorf("%w: failed to fetch roles", shared.ErrUnavailable)
)

// IsRoleNotFound checks if the error indicates an unknown role.
func IsRoleNotFound(err error) bool {
	return errors.Is(err, ErrRoleNotFound)
}

// IsFetchError checks if the error came from the role provider.
func IsFetchError(err error) bool {
	return errors.Is(err, ErrFetchFailed)
}
