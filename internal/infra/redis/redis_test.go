package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlearn/admin-api/pkg/logger"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromClient(rdb, logger.NewNop()), mr
}

type definition struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

func TestCache_Load(t *testing.T) {
	client, mr := newTestClient(t)
	cache, err := NewCache[[]definition](client, "roles", time.Minute)
	require.NoError(t, err)

	var loads atomic.Int32
	load := func(context.Context) ([]definition, error) {
		loads.Add(1)
		return []definition{{Name: "owner", Level: 10}}, nil
	}

	got, err := cache.Load(context.Background(), "all", load)
	require.NoError(t, err)
	assert.Equal(t, []definition{{Name: "owner", Level: 10}}, got)

	got, err = cache.Load(context.Background(), "all", load)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(1), loads.Load())
	assert.True(t, mr.Exists("roles:all"))
	assert.Greater(t, mr.TTL("roles:all"), time.Duration(0))

	require.NoError(t, cache.Delete(context.Background(), "all"))
	_, err = cache.Get(context.Background(), "all")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCache_ExpiredEntryReloads(t *testing.T) {
	client, mr := newTestClient(t)
	cache, err := NewCache[int](client, "levels", time.Second)
	require.NoError(t, err)

	require.NoError(t, cache.Put(context.Background(), "owner", 99999))
	mr.FastForward(2 * time.Second)

	got, err := cache.Load(context.Background(), "owner", func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestCache_LoadsFromSourceWhenRedisDown(t *testing.T) {
	client, mr := newTestClient(t)
	cache, err := NewCache[[]definition](client, "roles", time.Minute)
	require.NoError(t, err)
	mr.Close()

	got, err := cache.Load(context.Background(), "all", func(context.Context) ([]definition, error) {
		return []definition{{Name: "owner", Level: 10}}, nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCache_LoadError(t *testing.T) {
	client, mr := newTestClient(t)
	cache, err := NewCache[[]definition](client, "roles", time.Minute)
	require.NoError(t, err)

	_, err = cache.Load(context.Background(), "all", func(context.Context) ([]definition, error) {
		return nil, errors.New("db down")
	})
	assert.EqualError(t, err, "db down")
	assert.False(t, mr.Exists("roles:all"))
}

func TestCache_CorruptEntry(t *testing.T) {
	client, mr := newTestClient(t)
	cache, err := NewCache[[]definition](client, "roles", time.Minute)
	require.NoError(t, err)
	require.NoError(t, mr.Set("roles:all", "{not json"))

	_, err = cache.Get(context.Background(), "all")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestNewCache_Invalid(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := NewCache[int](nil, "p", time.Minute)
	assert.Error(t, err)
	_, err = NewCache[int](client, "", time.Minute)
	assert.Error(t, err)
	_, err = NewCache[int](client, "p", 0)
	assert.Error(t, err)
}

func TestClient_CollectPoolStatsStopsWithContext(t *testing.T) {
	client, _ := newTestClient(t)
	require.NoError(t, client.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		client.CollectPoolStats(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestUserLock_Exclusive(t *testing.T) {
	client, mr := newTestClient(t)
	lock := NewUserLock(client, 30*time.Second, logger.NewNop())

	unlock, err := lock.Lock(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("bulk_user_lock:u1"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = lock.Lock(ctx, "u1")
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	other, err := lock.Lock(context.Background(), "u2")
	require.NoError(t, err)
	other()

	unlock()
	assert.False(t, mr.Exists("bulk_user_lock:u1"))

	again, err := lock.Lock(context.Background(), "u1")
	require.NoError(t, err)
	again()
}

func TestUserLock_ExpiredLockNotReleasedByOldHolder(t *testing.T) {
	client, mr := newTestClient(t)
	lock := NewUserLock(client, time.Second, logger.NewNop())

	stale, err := lock.Lock(context.Background(), "u1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	current, err := lock.Lock(context.Background(), "u1")
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists("bulk_user_lock:u1"), "old holder must not release the new lock")

	current()
	assert.False(t, mr.Exists("bulk_user_lock:u1"))
}
