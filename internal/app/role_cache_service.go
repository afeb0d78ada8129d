package app

import (
	"context"
	"fmt"
	"time"

	"github.com/openlearn/admin-api/internal/infra/redis"
	"github.com/openlearn/admin-api/pkg/domain/role"
	"github.com/openlearn/admin-api/pkg/logger"
)

// CachedRoleProvider shares fetched role definitions between console
// instances through Redis.
//
// Key format: role_hierarchy:definitions -> JSON array of role definitions.
// Redis failures fall back to the wrapped provider.
type CachedRoleProvider struct {
	cache  *redis.Cache[[]role.Definition]
	source role.Provider
	logger *logger.Logger
}

const (
	roleCachePrefix = "role_hierarchy"
	roleCacheKey    = "definitions"
)

// NewCachedRoleProvider wraps source with a Redis cache.
func NewCachedRoleProvider(
	redisClient *redis.Client,
	source role.Provider,
	ttl time.Duration,
	log *logger.Logger,
) (*CachedRoleProvider, error) {
	cache, err := redis.NewCache[[]role.Definition](redisClient, roleCachePrefix, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to create role cache: %w", err)
	}

	return &CachedRoleProvider{
		cache:  cache,
		source: source,
		logger: log.With("service", "role_cache"),
	}, nil
}

// FetchRoles implements role.Provider.
func (p *CachedRoleProvider) FetchRoles(ctx context.Context) ([]role.Definition, error) {
	return p.cache.Load(ctx, roleCacheKey, func(ctx context.Context) ([]role.Definition, error) {
		p.logger.Debug("role cache miss, fetching from source")
		return p.source.FetchRoles(ctx)
	})
}

// Invalidate drops the cached definitions so the next fetch hits the source.
func (p *CachedRoleProvider) Invalidate(ctx context.Context) error {
	if err := p.cache.Delete(ctx, roleCacheKey); err != nil {
		p.logger.Warn("failed to invalidate role cache", "error", err)
		return err
	}
	return nil
}
