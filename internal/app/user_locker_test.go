package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalUserLocker_Serializes(t *testing.T) {
	l := NewLocalUserLocker()

	var (
		running atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "u1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()
			if running.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load())
	assert.Zero(t, l.Len())
}

func TestLocalUserLocker_IndependentUsers(t *testing.T) {
	l := NewLocalUserLocker()

	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
	unlockB()
	assert.Equal(t, 1, l.Len())
}

func TestLocalUserLocker_WaitHonorsContext(t *testing.T) {
	l := NewLocalUserLocker()

	unlock, err := l.Lock(context.Background(), "u1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "u1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Zero(t, l.Len())
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("redis: connection refused")
}

func TestTieredUserLocker_ReleasesLocalOnRemoteFailure(t *testing.T) {
	local := NewLocalUserLocker()
	tiered := NewTieredUserLocker(local, failingLocker{})

	_, err := tiered.Lock(context.Background(), "u1")
	require.Error(t, err)
	assert.Zero(t, local.Len())

	ok := NewTieredUserLocker(local, NewLocalUserLocker())
	unlock, err := ok.Lock(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, local.Len())
	unlock()
	assert.Zero(t, local.Len())
}

func TestUserLockers_UnlockTwice(t *testing.T) {
	lockers := map[string]UserLocker{
		"local":  NewLocalUserLocker(),
		"tiered": NewTieredUserLocker(NewLocalUserLocker(), NewLocalUserLocker()),
	}
	for name, l := range lockers {
		t.Run(name, func(t *testing.T) {
			unlock, err := l.Lock(context.Background(), "u1")
			require.NoError(t, err)
			unlock()
			unlock()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			unlock, err = l.Lock(ctx, "u1")
			require.NoError(t, err)
			unlock()
		})
	}
}
