package app

import (
	"context"
	"sync"
	"time"

	"github.com/openlearn/admin-api/internal/metrics"
)

// UserLocker serializes work on one user id. Lock blocks until the lock is
// held or ctx is done; the returned func releases it and is safe to call
// more than once.
type UserLocker interface {
	Lock(ctx context.Context, userID string) (func(), error)
}

// LocalUserLocker is an in-process keyed mutex. Entries are dropped once no
// caller holds or waits for them.
type LocalUserLocker struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sem  chan struct{}
	refs int
}

// NewLocalUserLocker creates a new LocalUserLocker.
func NewLocalUserLocker() *LocalUserLocker {
	return &LocalUserLocker{locks: make(map[string]*userLock)}
}

// Lock implements UserLocker.
func (l *LocalUserLocker) Lock(ctx context.Context, userID string) (func(), error) {
	start := time.Now()

	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{sem: make(chan struct{}, 1)}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	select {
	case ul.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(userID, ul)
		return nil, ctx.Err()
	}
	metrics.BulkLockWait.Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ul.sem
			l.release(userID, ul)
		})
	}, nil
}

func (l *LocalUserLocker) release(userID string, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, userID)
	}
}

// Len returns the number of user ids currently locked or waited on.
func (l *LocalUserLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// TieredUserLocker takes the in-process lock first and then a lock shared
// between instances, so waiting within one process never polls the remote.
type TieredUserLocker struct {
	local  UserLocker
	remote UserLocker
}

// NewTieredUserLocker creates a locker that holds both locks.
func NewTieredUserLocker(local, remote UserLocker) *TieredUserLocker {
	return &TieredUserLocker{local: local, remote: remote}
}

// Lock implements UserLocker.
func (t *TieredUserLocker) Lock(ctx context.Context, userID string) (func(), error) {
	unlockLocal, err := t.local.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	unlockRemote, err := t.remote.Lock(ctx, userID)
	if err != nil {
		unlockLocal()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockRemote()
			unlockLocal()
		})
	}, nil
}
