package role

import (
	"fmt"
	"slices"
	"time"
)

// Hierarchy is an immutable snapshot of all roles ordered by level.
// Reads never block and are safe for concurrent use.
type Hierarchy struct {
	byName   map[string]*Role
	ordered  []*Role // descending level
	loadedAt time.Time
}

// NewHierarchy validates the roles and builds a snapshot.
// Levels must be unique and the owner role must hold the highest level.
func NewHierarchy(roles []*Role, loadedAt time.Time) (*Hierarchy, error) {
	if len(roles) == 0 {
		return nil, ErrEmptyHierarchy
	}

	byName := make(map[string]*Role, len(roles))
	levels := make(map[int]string, len(roles))
	for _, r := range roles {
		if _, ok := byName[r.Name()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRole, r.Name())
		}
		if other, ok := levels[r.Level()]; ok {
			return nil, fmt.Errorf("%w: %s and %s share level %d", ErrDuplicateLevel, other, r.Name(), r.Level())
		}
		byName[r.Name()] = r
		levels[r.Level()] = r.Name()
	}

	ordered := slices.Clone(roles)
	slices.SortFunc(ordered, func(a, b *Role) int {
		return b.Level() - a.Level()
	})

	if _, ok := byName[OwnerName]; !ok {
		return nil, ErrOwnerMissing
	}
	if ordered[0].Name() != OwnerName {
		return nil, fmt.Errorf("%w: %s has level %d", ErrOwnerNotTop, ordered[0].Name(), ordered[0].Level())
	}

	return &Hierarchy{
		byName:   byName,
		ordered:  ordered,
		loadedAt: loadedAt,
	}, nil
}

// FromDefinitions builds a hierarchy from provider definitions.
func FromDefinitions(defs []Definition, loadedAt time.Time) (*Hierarchy, error) {
	roles := make([]*Role, 0, len(defs))
	for _, d := range defs {
		r, err := FromDefinition(d)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return NewHierarchy(roles, loadedAt)
}

// Get returns the role with the given name.
func (h *Hierarchy) Get(name string) (*Role, error) {
	r, ok := h.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, name)
	}
	return r, nil
}

// Level returns the level of the named role.
func (h *Hierarchy) Level(name string) (int, error) {
	r, err := h.Get(name)
	if err != nil {
		return 0, err
	}
	return r.Level(), nil
}

// Permissions returns the permissions of the named role.
func (h *Hierarchy) Permissions(name string) ([]string, error) {
	r, err := h.Get(name)
	if err != nil {
		return nil, err
	}
	return r.Permissions(), nil
}

// Owner returns the owner role.
func (h *Hierarchy) Owner() *Role {
	return h.ordered[0]
}

// IsOwner reports whether name refers to the owner role.
func (h *Hierarchy) IsOwner(name string) bool {
	return name == OwnerName
}

// Roles returns all roles, highest level first.
func (h *Hierarchy) Roles() []*Role {
	return slices.Clone(h.ordered)
}

// Definitions returns the provider representation of every role.
func (h *Hierarchy) Definitions() []Definition {
	defs := make([]Definition, 0, len(h.ordered))
	for _, r := range h.ordered {
		defs = append(defs, r.Definition())
	}
	return defs
}

// Len returns the number of roles.
func (h *Hierarchy) Len() int {
	return len(h.ordered)
}

// LoadedAt returns when the snapshot was fetched.
func (h *Hierarchy) LoadedAt() time.Time {
	return h.loadedAt
}
