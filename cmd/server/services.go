package main

import (
	"context"
	"fmt"
	"time"

	"github.com/openlearn/admin-api/internal/app"
	"github.com/openlearn/admin-api/internal/config"
	"github.com/openlearn/admin-api/internal/infra/archive"
	"github.com/openlearn/admin-api/internal/infra/jobs"
	"github.com/openlearn/admin-api/internal/infra/redis"
	"github.com/openlearn/admin-api/internal/infra/rolefile"
	"github.com/openlearn/admin-api/internal/infra/websocket"
	"github.com/openlearn/admin-api/pkg/domain/audit"
	"github.com/openlearn/admin-api/pkg/domain/metadata"
	"github.com/openlearn/admin-api/pkg/domain/role"
	"github.com/openlearn/admin-api/pkg/logger"
)

// Services holds all application services.
type Services struct {
	Roles         *app.RoleHierarchyService
	Authorization *app.AuthorizationService
	Audit         *app.AuditService
	BulkOperation *app.BulkOperationService
	Metadata      *metadata.Catalog
	WebSocketHub  *websocket.Hub

	// JobClient is set when audit entries are delivered through the queue.
	JobClient *jobs.Client
}

// ServiceDeps contains dependencies needed to create services.
type ServiceDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Repos       *Repositories
	RedisClient *redis.Client // nil when Redis is disabled
}

// NewServices initializes all services.
func NewServices(ctx context.Context, deps *ServiceDeps) (*Services, error) {
	cfg := deps.Config
	log := deps.Log
	s := &Services{WebSocketHub: websocket.NewHub(log)}

	catalog, err := metadata.Load(cfg.Metadata.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata catalog: %w", err)
	}
	s.Metadata = catalog

	provider, err := newRoleProvider(cfg, deps)
	if err != nil {
		return nil, err
	}
	s.Roles = app.NewRoleHierarchyService(provider, log, app.WithSwapHook(func(h *role.Hierarchy) {
		s.WebSocketHub.PublishRolesReloaded(map[string]any{
			"roles":     h.Len(),
			"loaded_at": h.LoadedAt(),
		})
	}))
	s.Authorization = app.NewAuthorizationService(s.Roles, log)

	sink, mode, err := newAuditSink(cfg, deps, s)
	if err != nil {
		return nil, err
	}
	s.Audit = app.NewAuditService(sink, mode, cfg.Audit.Timeout, log)

	opts := []app.BulkOperationOption{app.WithProgressPublisher(s.WebSocketHub)}
	if cfg.Bulk.DistributedLocks && deps.RedisClient != nil {
		remote := redis.NewUserLock(deps.RedisClient, cfg.Bulk.LockTTL, log)
		opts = append(opts, app.WithUserLocker(app.NewTieredUserLocker(app.NewLocalUserLocker(), remote)))
		log.Info("distributed user locks enabled", "ttl", cfg.Bulk.LockTTL)
	}
	if cfg.Archive.Enabled {
		archiver, err := archive.NewS3Archiver(ctx, cfg.Archive, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize result archive: %w", err)
		}
		opts = append(opts, app.WithResultArchiver(archiver))
		log.Info("bulk result archive enabled", "bucket", cfg.Archive.Bucket)
	}

	s.BulkOperation = app.NewBulkOperationService(s.Roles, deps.Repos.User, s.Audit, app.BulkOperationConfig{
		MaxBatchSize:    cfg.Bulk.MaxBatchSize,
		Workers:         cfg.Bulk.Workers,
		ItemTimeout:     cfg.Bulk.ItemTimeout,
		RetentionPeriod: cfg.Bulk.RetentionPeriod,
		SweepInterval:   cfg.Bulk.SweepInterval,
		DispatchRate:    cfg.Bulk.DispatchRate,
		ArchiveTimeout:  cfg.Archive.Timeout,
	}, log, opts...)

	s.WebSocketHub.SetAuthorizeFunc(websocket.OperationAuthorizer(
		func(id string) (string, error) {
			p, err := s.BulkOperation.GetProgress(id)
			if err != nil {
				return "", err
			}
			return p.ActorID, nil
		},
		s.Authorization.CanViewOperation,
	))
	s.WebSocketHub.SetSnapshotFunc(websocket.ProgressSnapshot(s.BulkOperation.GetProgress))

	return s, nil
}

// newRoleProvider selects the role source and fronts it with the Redis
// cache when Redis is available.
func newRoleProvider(cfg *config.Config, deps *ServiceDeps) (role.Provider, error) {
	var provider role.Provider
	switch cfg.Roles.Source {
	case config.RoleSourceFile:
		provider = rolefile.NewProvider(cfg.Roles.FilePath)
	default:
		provider = deps.Repos.Role
	}

	if deps.RedisClient == nil || cfg.Roles.CacheTTL <= 0 {
		return provider, nil
	}
	cached, err := app.NewCachedRoleProvider(deps.RedisClient, provider, cfg.Roles.CacheTTL, deps.Log)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// newAuditSink returns where audit entries are written. In queue mode the
// executor enqueues and the job worker persists.
func newAuditSink(cfg *config.Config, deps *ServiceDeps, s *Services) (audit.Recorder, string, error) {
	if cfg.Audit.Mode != config.AuditModeQueue {
		return deps.Repos.Audit, config.AuditModeSync, nil
	}
	client, err := jobs.NewClient(jobs.ClientConfigFrom(cfg.Redis, cfg.Queue), deps.Log)
	if err != nil {
		return nil, "", fmt.Errorf("failed to initialize job client: %w", err)
	}
	s.JobClient = client
	return client, config.AuditModeQueue, nil
}

// LoadRoles performs the initial hierarchy load. Startup fails without it.
func (s *Services) LoadRoles(ctx context.Context, log *logger.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	h, err := s.Roles.Load(ctx)
	if err != nil {
		return err
	}
	log.Info("initial role hierarchy loaded", "roles", h.Len())

	names := make([]string, 0, h.Len())
	for _, r := range h.Roles() {
		names = append(names, r.Name())
	}
	if missing := s.Metadata.Missing(metadata.NamespaceRole, names...); len(missing) > 0 {
		log.Warn("roles without display metadata", "roles", missing)
	}
	return nil
}
