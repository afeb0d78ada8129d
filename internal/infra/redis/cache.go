package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps JSON-encoded values of type T under "<name>:<key>".
type Cache[T any] struct {
	client *Client
	name   string
	ttl    time.Duration
}

// NewCache creates a cache named name whose entries live for ttl.
func NewCache[T any](client *Client, name string, ttl time.Duration) (*Cache[T], error) {
	switch {
	case client == nil:
		return nil, errors.New("redis client is required")
	case name == "":
		return nil, errors.New("cache name is required")
	case ttl <= 0:
		return nil, fmt.Errorf("cache %s: ttl must be positive", name)
	}
	return &Cache[T]{client: client, name: name, ttl: ttl}, nil
}

func (c *Cache[T]) key(k string) string {
	return c.name + ":" + k
}

// Get returns the cached value or ErrCacheMiss.
func (c *Cache[T]) Get(ctx context.Context, k string) (T, error) {
	var value T

	start := time.Now()
	data, err := c.client.client.Get(ctx, c.key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		observeCommand("get", start, nil)
		recordCacheLookup(c.name, false)
		return value, ErrCacheMiss
	}
	observeCommand("get", start, err)
	if err != nil {
		return value, fmt.Errorf("cache %s get: %w", c.name, err)
	}

	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("cache %s decode: %w", c.name, err)
	}
	recordCacheLookup(c.name, true)
	return value, nil
}

// Put stores value for the cache ttl.
func (c *Cache[T]) Put(ctx context.Context, k string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache %s encode: %w", c.name, err)
	}

	start := time.Now()
	err = c.client.client.Set(ctx, c.key(k), data, c.ttl).Err()
	observeCommand("set", start, err)
	if err != nil {
		return fmt.Errorf("cache %s set: %w", c.name, err)
	}
	return nil
}

// Delete removes k. Deleting a missing key is not an error.
func (c *Cache[T]) Delete(ctx context.Context, k string) error {
	start := time.Now()
	err := c.client.client.Del(ctx, c.key(k)).Err()
	observeCommand("del", start, err)
	if err != nil {
		return fmt.Errorf("cache %s delete: %w", c.name, err)
	}
	return nil
}

// Load returns the cached value for k, calling load on a miss and storing
// its result. Redis being unreachable never fails a Load: the error is
// logged and load is used directly.
func (c *Cache[T]) Load(ctx context.Context, k string, load func(context.Context) (T, error)) (T, error) {
	value, err := c.Get(ctx, k)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.client.logger.Warn("cache unavailable, loading from source", "cache", c.name, "error", err)
	}

	value, err = load(ctx)
	if err != nil {
		return value, err
	}
	if err := c.Put(ctx, k, value); err != nil {
		c.client.logger.Warn("failed to fill cache", "cache", c.name, "error", err)
	}
	return value, nil
}
