package routes

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openlearn/admin-api/internal/infra/http/handler"
	"github.com/openlearn/admin-api/internal/infra/websocket"
)

// registerHealthRoutes registers the public probes and the metrics endpoint.
func registerHealthRoutes(router Router, h *handler.HealthHandler) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.Handle("/metrics", promhttp.Handler())
}

// registerWebSocketRoutes registers the progress stream.
//
//	GET /api/v1/ws?token=...
//
// Clients subscribe to bulk_operation:{id} or roles:hierarchy.
func registerWebSocketRoutes(r Router, h *websocket.Handler) {
	r.GET("/ws", h.ServeWS)
}
