package authz

import (
	"github.com/openlearn/admin-api/pkg/domain/role"
)

// Engine makes authorization decisions over one role hierarchy snapshot.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	roles *role.Hierarchy
}

// NewEngine creates an engine bound to a hierarchy snapshot.
func NewEngine(roles *role.Hierarchy) *Engine {
	return &Engine{roles: roles}
}

// Hierarchy returns the snapshot the engine decides over.
func (e *Engine) Hierarchy() *role.Hierarchy {
	return e.roles
}

// CanPerformOperation reports whether the role grants the operation.
// Unknown roles grant nothing.
func (e *Engine) CanPerformOperation(actorRole string, op Operation) bool {
	r, err := e.roles.Get(actorRole)
	if err != nil {
		return false
	}
	return r.HasPermission(op.String())
}

// CanManageRole reports whether actorRole sits strictly above targetRole.
// Equal levels are never manageable. Unknown roles are never manageable.
func (e *Engine) CanManageRole(actorRole, targetRole string) bool {
	actorLevel, err := e.roles.Level(actorRole)
	if err != nil {
		return false
	}
	targetLevel, err := e.roles.Level(targetRole)
	if err != nil {
		return false
	}
	return actorLevel > targetLevel
}

// CanActOnUser decides whether actor may perform op on target.
// requestedRole is the role a role change would assign and is ignored for
// other operations. Checks run in a fixed order so the first failing rule
// determines the error.
func (e *Engine) CanActOnUser(actor Actor, target Subject, op Operation, requestedRole string) error {
	if actor.ID == target.ID && op.IsSelfHarming() {
		return ErrSelfActionForbidden
	}

	if op == OperationChangeUserRoles &&
		(e.roles.IsOwner(target.Role) || e.roles.IsOwner(requestedRole)) {
		return ErrOwnerRoleImmutable
	}

	if !e.CanManageRole(actor.Role, target.Role) {
		return ErrRoleLevelViolation
	}

	if !e.CanPerformOperation(actor.Role, op) {
		return ErrPermissionDenied
	}

	return nil
}
