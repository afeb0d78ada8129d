// Package routes registers all HTTP routes for the API.
package routes

import (
	infrahttp "github.com/openlearn/admin-api/internal/infra/http"
	"github.com/openlearn/admin-api/internal/infra/http/handler"
	"github.com/openlearn/admin-api/internal/infra/http/middleware"
	"github.com/openlearn/admin-api/internal/infra/websocket"
	"github.com/openlearn/admin-api/pkg/logger"
)

// Middleware is an alias to the http package's Middleware type.
type Middleware = infrahttp.Middleware

// Router is an alias to the http package's Router interface.
type Router = infrahttp.Router

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health        *handler.HealthHandler
	BulkOperation *handler.BulkOperationHandler
	Role          *handler.RoleHandler
	Metadata      *handler.MetadataHandler
	WebSocket     *websocket.Handler // nil disables the progress stream
}

// Register registers all application routes.
//
//   - misc.go: health, readiness, metrics, websocket
//   - console.go: roles, metadata, bulk operations
func Register(router Router, h Handlers, tokens middleware.TokenValidator, log *logger.Logger) {
	authMiddleware := Middleware(middleware.Auth(tokens, log))

	registerHealthRoutes(router, h.Health)

	router.Group("/api/v1", func(r Router) {
		registerRoleRoutes(r, h.Role, h.Metadata)
		registerBulkOperationRoutes(r, h.BulkOperation)
		if h.WebSocket != nil {
			registerWebSocketRoutes(r, h.WebSocket)
		}
	}, authMiddleware)
}
