package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openlearn/admin-api/internal/metrics"
	"github.com/openlearn/admin-api/pkg/domain/authz"
	"github.com/openlearn/admin-api/pkg/domain/role"
	"github.com/openlearn/admin-api/pkg/logger"
)

// RoleHierarchyService holds the active role hierarchy snapshot.
//
// Readers never block: they load the current snapshot pointer. Load fetches
// a new hierarchy from the provider and swaps it in atomically. Concurrent
// Load calls share one in-flight fetch.
type RoleHierarchyService struct {
	provider role.Provider
	current  atomic.Pointer[role.Hierarchy]
	group    singleflight.Group
	logger   *logger.Logger
	now      func() time.Time
	onSwap   []func(*role.Hierarchy)
}

// RoleHierarchyOption configures a RoleHierarchyService.
type RoleHierarchyOption func(*RoleHierarchyService)

// WithRoleClock overrides the clock used to stamp loaded snapshots.
func WithRoleClock(now func() time.Time) RoleHierarchyOption {
	return func(s *RoleHierarchyService) {
		s.now = now
	}
}

// WithSwapHook registers fn to run after every successful swap. Hooks run
// on the loading goroutine and must not block.
func WithSwapHook(fn func(*role.Hierarchy)) RoleHierarchyOption {
	return func(s *RoleHierarchyService) {
		s.onSwap = append(s.onSwap, fn)
	}
}

// NewRoleHierarchyService creates a new RoleHierarchyService. No snapshot is
// available until the first successful Load.
func NewRoleHierarchyService(provider role.Provider, log *logger.Logger, opts ...RoleHierarchyOption) *RoleHierarchyService {
	s := &RoleHierarchyService{
		provider: provider,
		logger:   log.With("service", "role_hierarchy"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const roleLoadKey = "roles"

// Load fetches the hierarchy from the provider and replaces the snapshot.
// A provider failure returns an error wrapping role.ErrFetchFailed and keeps
// the previous snapshot. An invalid hierarchy is rejected the same way.
func (s *RoleHierarchyService) Load(ctx context.Context) (*role.Hierarchy, error) {
	ch := s.group.DoChan(roleLoadKey, func() (any, error) {
		// The shared fetch must not die with the first caller's context.
		return s.load(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*role.Hierarchy), nil
	}
}

// cacheInvalidator is implemented by providers that keep their own cache.
type cacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Reload drops any provider-side cache and loads a fresh hierarchy.
func (s *RoleHierarchyService) Reload(ctx context.Context) (*role.Hierarchy, error) {
	if inv, ok := s.provider.(cacheInvalidator); ok {
		// A stale cache only delays the refresh; the load still runs.
		_ = inv.Invalidate(ctx)
	}
	return s.Load(ctx)
}

func (s *RoleHierarchyService) load(ctx context.Context) (*role.Hierarchy, error) {
	start := time.Now()

	defs, err := s.provider.FetchRoles(ctx)
	if err != nil {
		metrics.RoleHierarchyLoads.WithLabelValues("fetch_error").Inc()
		s.logger.Error("failed to fetch roles", "error", err)
		if role.IsFetchError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", role.ErrFetchFailed, err)
	}

	h, err := role.FromDefinitions(defs, s.now().UTC())
	if err != nil {
		metrics.RoleHierarchyLoads.WithLabelValues("invalid").Inc()
		s.logger.Error("rejected role hierarchy", "error", err, "roles", len(defs))
		return nil, fmt.Errorf("invalid role hierarchy: %w", err)
	}

	previous := s.current.Swap(h)
	metrics.RoleHierarchyLoads.WithLabelValues("success").Inc()
	metrics.RoleHierarchyRoles.Set(float64(h.Len()))

	s.logger.Info("role hierarchy loaded",
		"roles", h.Len(),
		"replaced", previous != nil,
		"duration", time.Since(start),
	)
	for _, fn := range s.onSwap {
		fn(h)
	}
	return h, nil
}

// Snapshot returns the active hierarchy or role.ErrHierarchyNotReady.
func (s *RoleHierarchyService) Snapshot() (*role.Hierarchy, error) {
	h := s.current.Load()
	if h == nil {
		return nil, role.ErrHierarchyNotReady
	}
	return h, nil
}

// Engine returns an authorization engine bound to the active snapshot.
// The engine keeps deciding over that snapshot even if a reload happens.
func (s *RoleHierarchyService) Engine() (*authz.Engine, error) {
	h, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return authz.NewEngine(h), nil
}

// GetRole returns the named role from the active snapshot.
func (s *RoleHierarchyService) GetRole(name string) (*role.Role, error) {
	h, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return h.Get(name)
}

// Level returns the level of the named role.
func (s *RoleHierarchyService) Level(name string) (int, error) {
	h, err := s.Snapshot()
	if err != nil {
		return 0, err
	}
	return h.Level(name)
}

// Permissions returns the permissions of the named role.
func (s *RoleHierarchyService) Permissions(name string) ([]string, error) {
	h, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return h.Permissions(name)
}

// Ready reports whether a snapshot has been loaded.
func (s *RoleHierarchyService) Ready() bool {
	return s.current.Load() != nil
}
