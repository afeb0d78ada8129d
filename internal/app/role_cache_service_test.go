package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlearn/admin-api/internal/infra/redis"
	"github.com/openlearn/admin-api/pkg/domain/role"
	"github.com/openlearn/admin-api/pkg/logger"
)

func newCachedProvider(t *testing.T, source role.Provider) (*CachedRoleProvider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	p, err := NewCachedRoleProvider(redis.NewFromClient(rdb, logger.NewNop()), source, time.Minute, logger.NewNop())
	require.NoError(t, err)
	return p, mr
}

func TestCachedRoleProvider_SharesFetch(t *testing.T) {
	var fetches atomic.Int32
	source := role.ProviderFunc(func(context.Context) ([]role.Definition, error) {
		fetches.Add(1)
		return []role.Definition{{Name: "owner", Level: 99999}, {Name: "user", Level: 100}}, nil
	})
	p, mr := newCachedProvider(t, source)

	for range 3 {
		defs, err := p.FetchRoles(context.Background())
		require.NoError(t, err)
		assert.Len(t, defs, 2)
	}
	assert.Equal(t, int32(1), fetches.Load())
	assert.True(t, mr.Exists("role_hierarchy:definitions"))

	require.NoError(t, p.Invalidate(context.Background()))
	_, err := p.FetchRoles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestCachedRoleProvider_SourceUsedWhenRedisDown(t *testing.T) {
	source := role.ProviderFunc(func(context.Context) ([]role.Definition, error) {
		return []role.Definition{{Name: "admin", Level: 9000}}, nil
	})
	p, mr := newCachedProvider(t, source)
	mr.Close()

	defs, err := p.FetchRoles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin", defs[0].Name)
}
