// Package role provides the role hierarchy used for authorization decisions.
// Roles carry a strictly ordered level and a permission set. Role data is
// loaded from an external provider and never mutated in place.
package role

import (
	"slices"
	"strings"
)

// OwnerName is the name of the top role. The owner role holds the maximum
// level and can never be assigned or changed through the console.
const OwnerName = "owner"

// Definition is the provider representation of a role.
type Definition struct {
	Name        string   `json:"name" yaml:"name"`
	Level       int      `json:"level" yaml:"level"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

// Role is an immutable named capability bundle.
type Role struct {
	name        string
	level       int
	permissions map[string]struct{}
}

// New creates a role from its name, level and permissions.
// Duplicate and blank permissions are dropped.
func New(name string, level int, permissions []string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrRoleNameRequired
	}
	if level < 0 {
		return nil, ErrInvalidLevel
	}

	perms := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		perms[p] = struct{}{}
	}

	return &Role{
		name:        name,
		level:       level,
		permissions: perms,
	}, nil
}

// FromDefinition creates a role from a provider definition.
func FromDefinition(d Definition) (*Role, error) {
	return New(d.Name, d.Level, d.Permissions)
}

// Name returns the role name.
func (r *Role) Name() string { return r.name }

// Level returns the hierarchy level.
func (r *Role) Level() int { return r.level }

// IsOwner reports whether this is the owner role.
func (r *Role) IsOwner() bool { return r.name == OwnerName }

// HasPermission checks if the role grants a permission.
func (r *Role) HasPermission(permission string) bool {
	_, ok := r.permissions[permission]
	return ok
}

// Permissions returns the sorted permission list.
func (r *Role) Permissions() []string {
	perms := make([]string, 0, len(r.permissions))
	for p := range r.permissions {
		perms = append(perms, p)
	}
	slices.Sort(perms)
	return perms
}

// PermissionCount returns the number of permissions.
func (r *Role) PermissionCount() int {
	return len(r.permissions)
}

// Definition converts the role back to its provider representation.
func (r *Role) Definition() Definition {
	return Definition{
		Name:        r.name,
		Level:       r.level,
		Permissions: r.Permissions(),
	}
}
