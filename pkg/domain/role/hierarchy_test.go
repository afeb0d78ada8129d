package role

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func consoleDefinitions() []Definition {
	return []Definition{
		{Name: "user", Level: 100, Permissions: []string{"view_courses"}},
		{Name: "owner", Level: 99999, Permissions: []string{"manage_system", "delete_users"}},
		{Name: "moderator", Level: 5000, Permissions: []string{"activate_users", "deactivate_users"}},
		{Name: "admin", Level: 9000, Permissions: []string{"activate_users", "deactivate_users", "delete_users", "change_user_roles"}},
	}
}

func TestNewRole(t *testing.T) {
	r, err := New("  admin ", 9000, []string{"b", "a", "", "a"})
	require.NoError(t, err)

	assert.Equal(t, "admin", r.Name())
	assert.Equal(t, 9000, r.Level())
	assert.Equal(t, []string{"a", "b"}, r.Permissions())
	assert.True(t, r.HasPermission("a"))
	assert.False(t, r.HasPermission("c"))
	assert.False(t, r.IsOwner())

	_, err = New("", 1, nil)
	assert.ErrorIs(t, err, ErrRoleNameRequired)

	_, err = New("x", -1, nil)
	assert.ErrorIs(t, err, ErrInvalidLevel)
}

func TestFromDefinitions(t *testing.T) {
	loadedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h, err := FromDefinitions(consoleDefinitions(), loadedAt)
	require.NoError(t, err)

	assert.Equal(t, 4, h.Len())
	assert.Equal(t, loadedAt, h.LoadedAt())
	assert.Equal(t, "owner", h.Owner().Name())

	names := make([]string, 0, h.Len())
	for _, r := range h.Roles() {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"owner", "admin", "moderator", "user"}, names)

	level, err := h.Level("moderator")
	require.NoError(t, err)
	assert.Equal(t, 5000, level)

	perms, err := h.Permissions("owner")
	require.NoError(t, err)
	assert.Equal(t, []string{"delete_users", "manage_system"}, perms)

	_, err = h.Get("guest")
	assert.True(t, IsRoleNotFound(err))
}

func TestNewHierarchy_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		defs    []Definition
		wantErr error
	}{
		{
			name:    "empty",
			defs:    nil,
			wantErr: ErrEmptyHierarchy,
		},
		{
			name: "duplicate name",
			defs: []Definition{
				{Name: "owner", Level: 10},
				{Name: "admin", Level: 5},
				{Name: "admin", Level: 4},
			},
			wantErr: ErrDuplicateRole,
		},
		{
			name: "shared level",
			defs: []Definition{
				{Name: "owner", Level: 10},
				{Name: "admin", Level: 5},
				{Name: "moderator", Level: 5},
			},
			wantErr: ErrDuplicateLevel,
		},
		{
			name: "no owner",
			defs: []Definition{
				{Name: "admin", Level: 5},
			},
			wantErr: ErrOwnerMissing,
		},
		{
			name: "owner below admin",
			defs: []Definition{
				{Name: "owner", Level: 5},
				{Name: "admin", Level: 10},
			},
			wantErr: ErrOwnerNotTop,
		},
		{
			name: "blank name",
			defs: []Definition{
				{Name: "owner", Level: 5},
				{Name: " ", Level: 1},
			},
			wantErr: ErrRoleNameRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromDefinitions(tt.defs, time.Now())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHierarchy_DefinitionsRoundTrip(t *testing.T) {
	h, err := FromDefinitions(consoleDefinitions(), time.Now())
	require.NoError(t, err)

	again, err := FromDefinitions(h.Definitions(), h.LoadedAt())
	require.NoError(t, err)
	assert.Equal(t, h.Definitions(), again.Definitions())
}
