package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openlearn/admin-api/pkg/logger"
)

// RoleRefreshScheduler reloads the role hierarchy on a cron schedule.
type RoleRefreshScheduler struct {
	roles    *RoleHierarchyService
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	logger   *logger.Logger
}

// NewRoleRefreshScheduler creates a scheduler for a standard cron spec or a
// descriptor such as "@every 5m".
func NewRoleRefreshScheduler(roles *RoleHierarchyService, schedule string, timeout time.Duration, log *logger.Logger) (*RoleRefreshScheduler, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &RoleRefreshScheduler{
		roles:    roles,
		schedule: schedule,
		timeout:  timeout,
		cron:     cron.New(),
		logger:   log.With("component", "role_refresh_scheduler"),
	}
	if _, err := s.cron.AddFunc(schedule, s.refresh); err != nil {
		return nil, fmt.Errorf("invalid role refresh schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start starts the scheduler.
func (s *RoleRefreshScheduler) Start() {
	s.cron.Start()
	s.logger.Info("role refresh scheduler started", "schedule", s.schedule)
}

// Stop stops the scheduler and waits for a running refresh.
func (s *RoleRefreshScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("role refresh scheduler stopped")
}

func (s *RoleRefreshScheduler) refresh() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("role refresh panicked", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	// The previous snapshot stays active on failure.
	if _, err := s.roles.Reload(ctx); err != nil {
		s.logger.Warn("scheduled role refresh failed", "error", err)
	}
}
