package app

import (
	"github.com/openlearn/admin-api/internal/metrics"
	"github.com/openlearn/admin-api/pkg/domain/authz"
	"github.com/openlearn/admin-api/pkg/domain/bulkop"
	"github.com/openlearn/admin-api/pkg/domain/role"
	"github.com/openlearn/admin-api/pkg/logger"
)

// AuthorizationService answers authorization questions against the active
// role hierarchy and records denials.
type AuthorizationService struct {
	roles  *RoleHierarchyService
	logger *logger.Logger
}

// NewAuthorizationService creates a new AuthorizationService.
func NewAuthorizationService(roles *RoleHierarchyService, log *logger.Logger) *AuthorizationService {
	return &AuthorizationService{
		roles:  roles,
		logger: log.With("service", "authorization"),
	}
}

// CanPerformOperation reports whether actorRole grants op. It returns false
// while no hierarchy is loaded.
func (s *AuthorizationService) CanPerformOperation(actorRole string, op authz.Operation) bool {
	engine, err := s.roles.Engine()
	if err != nil {
		return false
	}
	return engine.CanPerformOperation(actorRole, op)
}

// CanManageRole reports whether actorRole sits strictly above targetRole.
func (s *AuthorizationService) CanManageRole(actorRole, targetRole string) bool {
	engine, err := s.roles.Engine()
	if err != nil {
		return false
	}
	return engine.CanManageRole(actorRole, targetRole)
}

// CanActOnUser runs the ordered user-level checks against the active
// hierarchy and counts denials.
func (s *AuthorizationService) CanActOnUser(actor authz.Actor, target authz.Subject, op authz.Operation, requestedRole string) error {
	engine, err := s.roles.Engine()
	if err != nil {
		return err
	}
	return s.checkUser(engine, "user", actor, target, op, requestedRole)
}

// checkUser is CanActOnUser against a pinned engine. scope labels the
// denial metric.
func (s *AuthorizationService) checkUser(engine *authz.Engine, scope string, actor authz.Actor, target authz.Subject, op authz.Operation, requestedRole string) error {
	err := engine.CanActOnUser(actor, target, op, requestedRole)
	if err == nil {
		return nil
	}
	metrics.AuthzDenialsTotal.WithLabelValues(string(bulkop.Classify(err)), scope).Inc()
	s.logger.Debug("user action denied",
		"actor_id", actor.ID,
		"user_id", target.ID,
		"operation", op.String(),
		"scope", scope,
		"error", err,
	)
	return err
}

// ManageableRole is a role annotated with whether an actor can assign it.
type ManageableRole struct {
	Role       *role.Role
	Manageable bool
}

// ManageableRoles lists every role of the active snapshot, highest first,
// marking the ones actorRole can assign. The owner role is never assignable.
func (s *AuthorizationService) ManageableRoles(actorRole string) ([]ManageableRole, error) {
	engine, err := s.roles.Engine()
	if err != nil {
		return nil, err
	}

	roles := engine.Hierarchy().Roles()
	out := make([]ManageableRole, 0, len(roles))
	for _, r := range roles {
		out = append(out, ManageableRole{
			Role:       r,
			Manageable: !r.IsOwner() && engine.CanManageRole(actorRole, r.Name()),
		})
	}
	return out, nil
}

// CanViewOperation reports whether actor may read or cancel an operation
// started by ownerID. Operations are visible to the actor who started them
// and to roles holding manage_system.
func (s *AuthorizationService) CanViewOperation(actor authz.Actor, ownerID string) bool {
	if actor.ID == ownerID {
		return true
	}
	return s.CanPerformOperation(actor.Role, authz.OperationManageSystem)
}
