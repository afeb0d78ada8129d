package bulkop

import (
	"context"
	"errors"
	"fmt"

	"github.com/openlearn/admin-api/pkg/domain/authz"
	"github.com/openlearn/admin-api/pkg/domain/shared"
)

// Request validation errors.
var (
	ErrNoTargets            = fmt.Errorf("%w: at least one target user is required", shared.ErrValidation)
	ErrTooManyTargets       = fmt.Errorf("%w: too many target users", shared.ErrValidation)
	ErrBlankTargetID        = fmt.Errorf("%w: target user ids must not be blank", shared.ErrValidation)
	ErrTargetRoleRequired   = fmt.Errorf("%w: target role is required for a role change", shared.ErrValidation)
	ErrTargetRoleNotAllowed = fmt.Errorf("%w: target role is only accepted for a role change", shared.ErrValidation)
	ErrReasonRequired       = fmt.Errorf("%w: a reason is required to delete users", shared.ErrValidation)
	ErrReasonTooLong        = fmt.Errorf("%w: reason is too long", shared.ErrValidation)
)

// Operation lifecycle errors.
var (
	ErrOperationNotFound   = fmt.Errorf("bulk operation %w", shared.ErrNotFound)
	ErrOperationInProgress = fmt.Errorf("%w: bulk operation has not finished", shared.ErrConflict)
	ErrNotCancellable      = fmt.Errorf("%w: bulk operation is no longer dispatching", shared.ErrConflict)
	ErrIllegalTransition   = fmt.Errorf("%w: illegal bulk operation transition", shared.ErrInternal)
)

// ErrorKind classifies why an item or a request failed.
type ErrorKind string

const (
	ErrorKindValidation         ErrorKind = "validation_error"
	ErrorKindTooManyTargets     ErrorKind = "too_many_targets"
	ErrorKindPermissionDenied   ErrorKind = "permission_denied"
	ErrorKindRoleLevelViolation ErrorKind = "role_level_violation"
	ErrorKindOwnerRoleImmutable ErrorKind = "owner_role_immutable"
	ErrorKindSelfAction         ErrorKind = "self_action_forbidden"
	ErrorKindNotFound           ErrorKind = "not_found"
	ErrorKindDownstream         ErrorKind = "downstream_error"
	ErrorKindSystemUnavailable  ErrorKind = "system_unavailable"
	ErrorKindCancelled          ErrorKind = "cancelled"
)

// String returns the kind name.
func (k ErrorKind) String() string {
	return string(k)
}

// AllErrorKinds returns every error kind.
func AllErrorKinds() []ErrorKind {
	return []ErrorKind{
		ErrorKindValidation,
		ErrorKindTooManyTargets,
		ErrorKindPermissionDenied,
		ErrorKindRoleLevelViolation,
		ErrorKindOwnerRoleImmutable,
		ErrorKindSelfAction,
		ErrorKindNotFound,
		ErrorKindDownstream,
		ErrorKindSystemUnavailable,
		ErrorKindCancelled,
	}
}

// Classify maps an error to its ErrorKind. Unrecognized errors, including
// timeouts, are downstream errors.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, authz.ErrSelfActionForbidden):
		return ErrorKindSelfAction
	case errors.Is(err, authz.ErrOwnerRoleImmutable):
		return ErrorKindOwnerRoleImmutable
	case errors.Is(err, authz.ErrRoleLevelViolation):
		return ErrorKindRoleLevelViolation
	case errors.Is(err, authz.ErrPermissionDenied):
		return ErrorKindPermissionDenied
	case errors.Is(err, ErrTooManyTargets):
		return ErrorKindTooManyTargets
	case errors.Is(err, shared.ErrValidation):
		return ErrorKindValidation
	case errors.Is(err, shared.ErrUnavailable):
		return ErrorKindSystemUnavailable
	case errors.Is(err, shared.ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, context.Canceled):
		return ErrorKindCancelled
	default:
		return ErrorKindDownstream
	}
}

// IsSystemic reports whether the error kind should stop further dispatch.
func (k ErrorKind) IsSystemic() bool {
	return k == ErrorKindSystemUnavailable
}

// IsAuthorization reports whether the kind is an authorization failure.
func (k ErrorKind) IsAuthorization() bool {
	switch k {
	case ErrorKindPermissionDenied, ErrorKindRoleLevelViolation, ErrorKindOwnerRoleImmutable, ErrorKindSelfAction:
		return true
	default:
		return false
	}
}
