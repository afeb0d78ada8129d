// Package authz holds the authorization decisions of the console: which
// operations a role may perform, which roles it may manage and whether an
// actor may act on a given user.
package authz

// Operation is a named capability checked against a role's permission set.
type Operation string

// User-management operations.
const (
	OperationActivateUsers   Operation = "activate_users"
	OperationDeactivateUsers Operation = "deactivate_users"
	OperationChangeUserRoles Operation = "change_user_roles"
	OperationDeleteUsers     Operation = "delete_users"
	OperationManageSystem    Operation = "manage_system"
)

// String returns the permission name.
func (o Operation) String() string {
	return string(o)
}

// IsSelfHarming reports whether performing the operation on one's own
// account is forbidden.
func (o Operation) IsSelfHarming() bool {
	switch o {
	case OperationDeactivateUsers, OperationDeleteUsers, OperationChangeUserRoles:
		return true
	default:
		return false
	}
}

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role string
}

// Subject is a user an actor wants to act on.
type Subject struct {
	ID   string
	Role string
}
