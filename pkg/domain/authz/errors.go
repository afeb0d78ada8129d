package authz

import (
	"errors"
	"fmt"

	"github.com/openlearn/admin-api/pkg/domain/shared"
)

// Authorization errors. All of them wrap shared.ErrForbidden.
var (
	// ErrSelfActionForbidden is returned when an actor tries to deactivate,
	// delete or change the role of their own account.
	ErrSelfActionForbidden = fmt.Errorf("%w: cannot perform this operation on your own account", shared.ErrForbidden)

	// ErrOwnerRoleImmutable is returned when a role change touches the owner role.
	ErrOwnerRoleImmutable = fmt.Errorf("%w: owner role cannot be assigned or changed", shared.ErrForbidden)

	// ErrRoleLevelViolation is returned when the target's role is not strictly
	// below the actor's role.
	ErrRoleLevelViolation = fmt.Errorf("%w: target role is not below your role", shared.ErrForbidden)

	// ErrPermissionDenied is returned when the actor's role lacks the permission.
	ErrPermissionDenied = fmt.Errorf("%w: permission denied", shared.ErrForbidden)
)

// IsOwnerRoleImmutable checks if the error is an owner-role error.
func IsOwnerRoleImmutable(err error) bool {
	return errors.Is(err, ErrOwnerRoleImmutable)
}

// IsAuthorizationError checks if the error is any authorization failure.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrSelfActionForbidden) ||
		errors.Is(err, ErrOwnerRoleImmutable) ||
		errors.Is(err, ErrRoleLevelViolation) ||
		errors.Is(err, ErrPermissionDenied)
}
