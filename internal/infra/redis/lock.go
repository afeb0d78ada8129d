package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/openlearn/admin-api/pkg/logger"
)

const (
	userLockPrefix     = "bulk_user_lock"
	userLockRetryDelay = 25 * time.Millisecond
)

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock taken over by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// UserLock is a per-user lock shared between console instances.
//
// Key format: bulk_user_lock:{user_id} -> random token, expiring after ttl.
// The ttl must exceed the longest time a holder keeps the lock.
type UserLock struct {
	client *Client
	ttl    time.Duration
	retry  time.Duration
	logger *logger.Logger
}

// NewUserLock creates a new UserLock.
func NewUserLock(client *Client, ttl time.Duration, log *logger.Logger) *UserLock {
	return &UserLock{
		client: client,
		ttl:    ttl,
		retry:  userLockRetryDelay,
		logger: log.With("component", "user_lock"),
	}
}

// Lock polls until the lock for userID is taken or ctx is done.
func (l *UserLock) Lock(ctx context.Context, userID string) (func(), error) {
	key := userLockPrefix + ":" + userID
	token := uuid.NewString()

	for {
		start := time.Now()
		ok, err := l.client.client.SetNX(ctx, key, token, l.ttl).Result()
		observeCommand("setnx", start, err)
		if err != nil {
			if ctx.Err() != nil {
				recordUserLock("timeout")
				return nil, fmt.Errorf("%w: %s: %w", ErrLockNotAcquired, userID, ctx.Err())
			}
			recordUserLock("error")
			return nil, fmt.Errorf("acquire user lock: %w", err)
		}
		if ok {
			recordUserLock("acquired")
			return l.unlockFunc(key, token), nil
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			recordUserLock("timeout")
			return nil, fmt.Errorf("%w: %s: %w", ErrLockNotAcquired, userID, ctx.Err())
		case <-timer.C:
		}
	}
}

func (l *UserLock) unlockFunc(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client.client, []string{key}, token).Err(); err != nil {
				// The key expires on its own after ttl.
				l.logger.Warn("failed to release user lock", "key", key, "error", err)
			}
		})
	}
}
