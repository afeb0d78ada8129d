package authz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlearn/admin-api/pkg/domain/role"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	h, err := role.FromDefinitions([]role.Definition{
		{Name: "owner", Level: 99999, Permissions: []string{"manage_system", "activate_users", "deactivate_users", "change_user_roles", "delete_users"}},
		{Name: "admin", Level: 9000, Permissions: []string{"activate_users", "deactivate_users", "change_user_roles", "delete_users"}},
		{Name: "moderator", Level: 5000, Permissions: []string{"activate_users"}},
		{Name: "user", Level: 100},
	}, time.Now())
	require.NoError(t, err)
	return NewEngine(h)
}

func TestCanPerformOperation(t *testing.T) {
	e := newTestEngine(t)

	assert.True(t, e.CanPerformOperation("admin", OperationDeleteUsers))
	assert.True(t, e.CanPerformOperation("moderator", OperationActivateUsers))
	assert.False(t, e.CanPerformOperation("moderator", OperationDeactivateUsers))
	assert.False(t, e.CanPerformOperation("user", OperationActivateUsers))
	assert.False(t, e.CanPerformOperation("ghost", OperationActivateUsers))
}

func TestCanManageRole_StrictlyGreaterLevel(t *testing.T) {
	e := newTestEngine(t)
	roles := e.Hierarchy().Roles()

	for _, a := range roles {
		for _, b := range roles {
			want := a.Level() > b.Level()
			assert.Equal(t, want, e.CanManageRole(a.Name(), b.Name()), "%s -> %s", a.Name(), b.Name())
		}
	}

	assert.False(t, e.CanManageRole("admin", "admin"))
	assert.False(t, e.CanManageRole("ghost", "user"))
	assert.False(t, e.CanManageRole("admin", "ghost"))
}

func TestCanActOnUser(t *testing.T) {
	e := newTestEngine(t)
	admin := Actor{ID: "a1", Role: "admin"}
	moderator := Actor{ID: "m1", Role: "moderator"}

	tests := []struct {
		name          string
		actor         Actor
		target        Subject
		op            Operation
		requestedRole string
		wantErr       error
	}{
		{
			name:   "admin deactivates user",
			actor:  admin,
			target: Subject{ID: "u1", Role: "user"},
			op:     OperationDeactivateUsers,
		},
		{
			name:    "self deactivate",
			actor:   admin,
			target:  Subject{ID: "a1", Role: "admin"},
			op:      OperationDeactivateUsers,
			wantErr: ErrSelfActionForbidden,
		},
		{
			name:    "self delete",
			actor:   admin,
			target:  Subject{ID: "a1", Role: "admin"},
			op:      OperationDeleteUsers,
			wantErr: ErrSelfActionForbidden,
		},
		{
			name:          "self role change wins over owner check",
			actor:         admin,
			target:        Subject{ID: "a1", Role: "admin"},
			op:            OperationChangeUserRoles,
			requestedRole: "owner",
			wantErr:       ErrSelfActionForbidden,
		},
		{
			name:          "promote to owner",
			actor:         admin,
			target:        Subject{ID: "u1", Role: "user"},
			op:            OperationChangeUserRoles,
			requestedRole: "owner",
			wantErr:       ErrOwnerRoleImmutable,
		},
		{
			name:          "demote owner",
			actor:         Actor{ID: "o2", Role: "owner"},
			target:        Subject{ID: "o1", Role: "owner"},
			op:            OperationChangeUserRoles,
			requestedRole: "user",
			wantErr:       ErrOwnerRoleImmutable,
		},
		{
			name:    "peer admin",
			actor:   admin,
			target:  Subject{ID: "a2", Role: "admin"},
			op:      OperationDeactivateUsers,
			wantErr: ErrRoleLevelViolation,
		},
		{
			name:    "target above actor",
			actor:   moderator,
			target:  Subject{ID: "a2", Role: "admin"},
			op:      OperationActivateUsers,
			wantErr: ErrRoleLevelViolation,
		},
		{
			name:    "missing permission",
			actor:   moderator,
			target:  Subject{ID: "u1", Role: "user"},
			op:      OperationDeleteUsers,
			wantErr: ErrPermissionDenied,
		},
		{
			name:          "role change below actor",
			actor:         admin,
			target:        Subject{ID: "u1", Role: "user"},
			op:            OperationChangeUserRoles,
			requestedRole: "moderator",
		},
		{
			name:    "self activate is not self-harming but fails level check",
			actor:   admin,
			target:  Subject{ID: "a1", Role: "admin"},
			op:      OperationActivateUsers,
			wantErr: ErrRoleLevelViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.CanActOnUser(tt.actor, tt.target, tt.op, tt.requestedRole)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsAuthorizationError(err))
		})
	}
}
