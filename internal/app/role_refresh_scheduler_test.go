package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlearn/admin-api/pkg/domain/role"
	"github.com/openlearn/admin-api/pkg/logger"
)

func TestRoleRefreshScheduler_InvalidSchedule(t *testing.T) {
	roles := NewRoleHierarchyService(role.ProviderFunc(func(context.Context) ([]role.Definition, error) {
		return consoleRoles(), nil
	}), logger.NewNop())

	_, err := NewRoleRefreshScheduler(roles, "every now and then", time.Second, logger.NewNop())
	assert.Error(t, err)
}

func TestRoleRefreshScheduler_RefreshReloads(t *testing.T) {
	var calls atomic.Int32
	roles := NewRoleHierarchyService(role.ProviderFunc(func(context.Context) ([]role.Definition, error) {
		calls.Add(1)
		return consoleRoles(), nil
	}), logger.NewNop())

	s, err := NewRoleRefreshScheduler(roles, "@every 5m", time.Second, logger.NewNop())
	require.NoError(t, err)

	s.refresh()
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, roles.Ready())

	s.Start()
	s.Stop()
}
