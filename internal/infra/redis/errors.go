package redis

import "errors"

var (
	// ErrCacheMiss is returned by Cache.Get when the key is absent or expired.
	ErrCacheMiss = errors.New("cache: miss")

	// ErrLockNotAcquired is returned when a lock wait ends without the lock.
	ErrLockNotAcquired = errors.New("redis: lock not acquired")
)
