package main

import (
	"github.com/openlearn/admin-api/internal/config"
	"github.com/openlearn/admin-api/internal/infra/http/handler"
	"github.com/openlearn/admin-api/internal/infra/http/routes"
	"github.com/openlearn/admin-api/internal/infra/postgres"
	"github.com/openlearn/admin-api/internal/infra/redis"
	"github.com/openlearn/admin-api/internal/infra/websocket"
	"github.com/openlearn/admin-api/pkg/logger"
	"github.com/openlearn/admin-api/pkg/validator"
)

// HandlerDeps contains dependencies needed to create handlers.
type HandlerDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Validator   *validator.Validator
	DB          *postgres.DB
	RedisClient *redis.Client // nil when Redis is disabled
	Repos       *Repositories
	Services    *Services
}

// NewHandlers creates all HTTP handlers.
func NewHandlers(deps *HandlerDeps) routes.Handlers {
	svc := deps.Services
	log := deps.Log

	healthOpts := []handler.HealthHandlerOption{
		handler.WithDatabase(deps.DB),
		handler.WithCheck("roles", handler.ReadyFunc(svc.Roles.Ready)),
	}
	if deps.RedisClient != nil {
		healthOpts = append(healthOpts, handler.WithRedis(deps.RedisClient))
	}

	return routes.Handlers{
		Health: handler.NewHealthHandler(healthOpts...),
		BulkOperation: handler.NewBulkOperationHandler(svc.BulkOperation, svc.Authorization, deps.Validator, log,
			handler.WithAuditLog(deps.Repos.Audit)),
		Role:      handler.NewRoleHandler(svc.Roles, svc.Authorization, svc.Metadata, log),
		Metadata:  handler.NewMetadataHandler(svc.Metadata),
		WebSocket: websocket.NewHandler(svc.WebSocketHub, deps.Config.CORS.AllowedOrigins, log),
	}
}
