package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openlearn/admin-api/internal/config"
	"github.com/openlearn/admin-api/internal/infra/http"
	"github.com/openlearn/admin-api/internal/infra/http/routes"
	"github.com/openlearn/admin-api/internal/infra/postgres"
	"github.com/openlearn/admin-api/internal/infra/redis"
	"github.com/openlearn/admin-api/internal/infra/rolefile"
	"github.com/openlearn/admin-api/internal/infra/telemetry"
	"github.com/openlearn/admin-api/pkg/jwt"
	"github.com/openlearn/admin-api/pkg/logger"
	"github.com/openlearn/admin-api/pkg/validator"
)

// Command line flags.
var (
	showRoutes  = flag.Bool("routes", false, "Print all registered routes and exit")
	migrateOnly = flag.Bool("migrate", false, "Apply pending database migrations and exit")
	migrateDown = flag.Bool("migrate-down", false, "Roll back the last applied migration and exit")
	importRoles = flag.String("import-roles", "", "Upsert the roles of a YAML role file into the database and exit")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	// ==========================================================================
	// Configuration & Logger
	// ==========================================================================
	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env, "version", cfg.App.Version)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, cfg.App.Version, log)
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		return 1
	}

	// ==========================================================================
	// Infrastructure
	// ==========================================================================
	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)
	log.Info("database connected")

	if *migrateDown {
		if err := rollback(ctx, db, log); err != nil {
			log.Error("failed to roll back migration", "error", err)
			return 1
		}
		return 0
	}

	if cfg.Database.AutoMigrate || *migrateOnly {
		if err := migrate(ctx, db, log); err != nil {
			log.Error("failed to apply migrations", "error", err)
			return 1
		}
		if *migrateOnly {
			return 0
		}
	}

	if *importRoles != "" {
		if err := importRoleFile(ctx, postgres.NewRoleRepository(db), *importRoles, log); err != nil {
			log.Error("failed to import roles", "file", *importRoles, "error", err)
			return 1
		}
		return 0
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.New(ctx, &cfg.Redis, log)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			return 1
		}
		defer closeWithLog(redisClient, "redis", log)

		statsCtx, stopStats := context.WithCancel(ctx)
		defer stopStats()
		go redisClient.CollectPoolStats(statsCtx, 15*time.Second)
	}

	// ==========================================================================
	// Repositories & Services
	// ==========================================================================
	repos := NewRepositories(db)
	log.Info("repositories initialized")

	services, err := NewServices(ctx, &ServiceDeps{
		Config:      cfg,
		Log:         log,
		Repos:       repos,
		RedisClient: redisClient,
	})
	if err != nil {
		log.Error("failed to initialize services", "error", err)
		return 1
	}
	if services.JobClient != nil {
		defer closeWithLog(services.JobClient, "job client", log)
	}
	log.Info("services initialized")

	if err := services.LoadRoles(ctx, log); err != nil {
		log.Error("failed to load role hierarchy", "error", err)
		return 1
	}

	// ==========================================================================
	// HTTP Server
	// ==========================================================================
	handlers := NewHandlers(&HandlerDeps{
		Config:      cfg,
		Log:         log,
		Validator:   validator.New(),
		DB:          db,
		RedisClient: redisClient,
		Repos:       repos,
		Services:    services,
	})

	tokens := jwt.NewGenerator(jwt.TokenConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.JWTIssuer,
	})

	server := http.NewServer(cfg, log)
	routes.Register(server.Router(), handlers, tokens, log)

	if *showRoutes {
		http.PrintRoutes(os.Stdout, http.CollectRoutes(server.Router()))
		return 0
	}

	// ==========================================================================
	// Workers
	// ==========================================================================
	workers, err := NewWorkers(&WorkerDeps{
		Config:   cfg,
		Log:      log,
		Repos:    repos,
		Services: services,
	})
	if err != nil {
		log.Error("failed to initialize workers", "error", err)
		return 1
	}
	if err := workers.Start(ctx, log); err != nil {
		log.Error("failed to start workers", "error", err)
		return 1
	}

	// ==========================================================================
	// Start Server
	// ==========================================================================
	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
		}
	}()
	log.Info("application started", "http_addr", cfg.Server.Addr())

	// ==========================================================================
	// Graceful Shutdown
	// ==========================================================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	code := 0
	// Stop accepting submissions before draining running operations.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		code = 1
	}
	if err := workers.Stop(shutdownCtx, log); err != nil {
		log.Error("worker shutdown error", "error", err)
		code = 1
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", "error", err)
	}

	log.Info("application stopped")
	return code
}

// =============================================================================
// Helper Functions
// =============================================================================

func initLogger(cfg *config.Config) *logger.Logger {
	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	log.SetDefault()
	return log
}

func migrate(ctx context.Context, db *postgres.DB, log *logger.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	migrator, err := postgres.NewMigrator(db, log)
	if err != nil {
		return err
	}
	applied, err := migrator.Up(ctx)
	if err != nil {
		return err
	}
	log.Info("database migrations applied", "count", applied)
	return nil
}

func rollback(ctx context.Context, db *postgres.DB, log *logger.Logger) error {
	migrator, err := postgres.NewMigrator(db, log)
	if err != nil {
		return err
	}
	return migrator.Down(ctx)
}

// importRoleFile seeds the roles table from a role file, so a deployment can
// switch ROLES_SOURCE from file to postgres without retyping the hierarchy.
func importRoleFile(ctx context.Context, repo *postgres.RoleRepository, path string, log *logger.Logger) error {
	defs, err := rolefile.NewProvider(path).FetchRoles(ctx)
	if err != nil {
		return err
	}
	for _, d := range defs {
		if err := repo.UpsertRole(ctx, d); err != nil {
			return fmt.Errorf("role %s: %w", d.Name, err)
		}
	}
	log.Info("roles imported", "file", path, "count", len(defs))
	return nil
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
