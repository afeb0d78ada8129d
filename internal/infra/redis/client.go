package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openlearn/admin-api/internal/config"
	"github.com/openlearn/admin-api/pkg/logger"
)

// Client is the console's handle on Redis. The role cache, the per-user
// lock and the readiness check share one connection pool through it.
type Client struct {
	client *redis.Client
	logger *logger.Logger
}

func options(cfg *config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:            cfg.Addr(),
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: cfg.MinRetryDelay,
		MaxRetryBackoff: cfg.MaxRetryDelay,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec // opt-in for self-signed dev certs
			MinVersion:         tls.VersionTLS12,
		}
	}
	return opts
}

// New connects to Redis. Startup waits for the first successful ping,
// doubling the delay between attempts up to MaxRetryDelay, and gives up
// after MaxRetries retries or when ctx is done.
func New(ctx context.Context, cfg *config.RedisConfig, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("redis config is required")
	}

	c := NewFromClient(redis.NewClient(options(cfg)), log)
	delay := cfg.MinRetryDelay

	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		err := c.Ping(pingCtx)
		cancel()
		if err == nil {
			c.logger.Info("redis ready", "addr", cfg.Addr(), "pool_size", cfg.PoolSize, "tls", cfg.TLSEnabled)
			return c, nil
		}
		if attempt > cfg.MaxRetries {
			_ = c.client.Close()
			return nil, fmt.Errorf("redis %s unreachable after %d attempts: %w", cfg.Addr(), attempt, err)
		}

		c.logger.Warn("redis not ready, retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			_ = c.client.Close()
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(2*delay, cfg.MaxRetryDelay)
	}
}

// NewFromClient wraps an existing go-redis client without pinging it.
func NewFromClient(rdb *redis.Client, log *logger.Logger) *Client {
	return &Client{
		client: rdb,
		logger: log.With("component", "redis"),
	}
}

// Ping reports whether Redis answers. It backs the readiness check.
func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	err := c.client.Ping(ctx).Err()
	observeCommand("ping", start, err)
	return err
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.client.Close()
}
