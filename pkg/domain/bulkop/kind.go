// Package bulkop models bulk user operations: the request, the per-item
// outcome taxonomy, the aggregated result and the execution state machine.
package bulkop

import (
	"fmt"
	"strings"

	"github.com/openlearn/admin-api/pkg/domain/authz"
	"github.com/openlearn/admin-api/pkg/domain/shared"
)

// Kind is the operation applied to every target of a bulk request.
type Kind string

const (
	KindActivate   Kind = "activate"
	KindDeactivate Kind = "deactivate"
	KindRoleChange Kind = "role_change"
	KindDelete     Kind = "delete"
)

// AllKinds returns every supported kind.
func AllKinds() []Kind {
	return []Kind{KindActivate, KindDeactivate, KindRoleChange, KindDelete}
}

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: unknown operation kind %q", shared.ErrValidation, s)
	}
	return k, nil
}

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

// IsValid checks if the kind is supported.
func (k Kind) IsValid() bool {
	switch k {
	case KindActivate, KindDeactivate, KindRoleChange, KindDelete:
		return true
	default:
		return false
	}
}

// Operation returns the permission required to run the kind.
func (k Kind) Operation() authz.Operation {
	switch k {
	case KindActivate:
		return authz.OperationActivateUsers
	case KindDeactivate:
		return authz.OperationDeactivateUsers
	case KindRoleChange:
		return authz.OperationChangeUserRoles
	case KindDelete:
		return authz.OperationDeleteUsers
	default:
		return ""
	}
}
