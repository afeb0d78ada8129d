package routes

import (
	"github.com/openlearn/admin-api/internal/infra/http/handler"
)

// registerRoleRoutes registers role hierarchy and metadata endpoints.
// Reload checks manage_system inside the handler.
func registerRoleRoutes(r Router, h *handler.RoleHandler, m *handler.MetadataHandler) {
	r.Group("/roles", func(r Router) {
		r.GET("/", h.List)
		r.POST("/reload", h.Reload)
		r.GET("/{name}", h.Get)
	})
	r.GET("/metadata", m.Get)
}

// registerBulkOperationRoutes registers the bulk operation caller API.
// Per-operation routes answer 404 to actors who cannot view the operation.
func registerBulkOperationRoutes(r Router, h *handler.BulkOperationHandler) {
	r.Group("/bulk-operations", func(r Router) {
		r.GET("/", h.List)
		r.POST("/", h.Submit)
		r.GET("/{id}", h.Get)
		r.GET("/{id}/result", h.Result)
		r.POST("/{id}/cancel", h.Cancel)
		r.GET("/{id}/audit", h.Audit)
	})
}
