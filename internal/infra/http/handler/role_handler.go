package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openlearn/admin-api/internal/app"
	"github.com/openlearn/admin-api/pkg/apierror"
	"github.com/openlearn/admin-api/pkg/domain/authz"
	"github.com/openlearn/admin-api/pkg/domain/metadata"
	"github.com/openlearn/admin-api/pkg/domain/role"
	"github.com/openlearn/admin-api/pkg/logger"
)

// RoleHandler handles role hierarchy HTTP requests.
type RoleHandler struct {
	roles   *app.RoleHierarchyService
	authz   *app.AuthorizationService
	catalog *metadata.Catalog
	logger  *logger.Logger
}

// NewRoleHandler creates a new role handler.
func NewRoleHandler(roles *app.RoleHierarchyService, authzSvc *app.AuthorizationService, catalog *metadata.Catalog, log *logger.Logger) *RoleHandler {
	return &RoleHandler{
		roles:   roles,
		authz:   authzSvc,
		catalog: catalog,
		logger:  log.With("handler", "role"),
	}
}

// RoleResponse represents a role in API responses. Metadata is nil and
// MetadataMissing true when the catalog has no entry for the role.
type RoleResponse struct {
	Name            string             `json:"name"`
	Level           int                `json:"level"`
	Permissions     []string           `json:"permissions"`
	PermissionCount int                `json:"permission_count"`
	IsOwner         bool               `json:"is_owner"`
	Manageable      bool               `json:"manageable"`
	Metadata        *metadata.Metadata `json:"metadata,omitempty"`
	MetadataMissing bool               `json:"metadata_missing,omitempty"`
}

// RoleListResponse represents the active hierarchy.
type RoleListResponse struct {
	Roles    []RoleResponse `json:"roles"`
	Total    int            `json:"total"`
	LoadedAt time.Time      `json:"loaded_at"`
}

func (h *RoleHandler) toRoleResponse(r *role.Role, manageable bool) RoleResponse {
	resp := RoleResponse{
		Name:            r.Name(),
		Level:           r.Level(),
		Permissions:     r.Permissions(),
		PermissionCount: r.PermissionCount(),
		IsOwner:         r.IsOwner(),
		Manageable:      manageable,
	}

	m, err := h.catalog.Role(r.Name())
	switch {
	case err == nil:
		resp.Metadata = &m
	case metadata.IsMissing(err):
		resp.MetadataMissing = true
	default:
		h.logger.Warn("metadata lookup failed", "role", r.Name(), "error", err)
		resp.MetadataMissing = true
	}
	return resp
}

// List handles GET /api/v1/roles.
// Roles are ordered highest level first and flagged with whether the
// caller may assign them.
func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	snapshot, err := h.roles.Snapshot()
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	roles, err := h.authz.ManageableRoles(actor.Role)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	out := make([]RoleResponse, 0, len(roles))
	for _, mr := range roles {
		out = append(out, h.toRoleResponse(mr.Role, mr.Manageable))
	}
	writeJSON(w, http.StatusOK, RoleListResponse{
		Roles:    out,
		Total:    len(out),
		LoadedAt: snapshot.LoadedAt(),
	})
}

// Get handles GET /api/v1/roles/{name}.
func (h *RoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	ro, err := h.roles.GetRole(chi.URLParam(r, "name"))
	if err != nil {
		if role.IsRoleNotFound(err) {
			writeError(w, r, apierror.NotFound("Role"))
			return
		}
		handleServiceError(w, r, h.logger, err)
		return
	}
	manageable := !ro.IsOwner() && h.authz.CanManageRole(actor.Role, ro.Name())
	writeJSON(w, http.StatusOK, h.toRoleResponse(ro, manageable))
}

// Reload handles POST /api/v1/roles/reload.
// Only roles holding manage_system may force a reload. A failed reload
// keeps the previous hierarchy and answers 503.
func (h *RoleHandler) Reload(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !h.authz.CanPerformOperation(actor.Role, authz.OperationManageSystem) {
		writeError(w, r, apierror.Forbidden(apierror.CodePermissionDenied, "Reloading roles requires manage_system"))
		return
	}

	snapshot, err := h.roles.Reload(r.Context())
	if err != nil {
		if errors.Is(err, role.ErrFetchFailed) {
			h.logger.Warn("role reload failed", "actor_id", actor.ID, "error", err)
			writeError(w, r, apierror.ServiceUnavailable("Role source unavailable; previous hierarchy kept"))
			return
		}
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("role hierarchy reloaded", "actor_id", actor.ID, "roles", snapshot.Len())
	writeJSON(w, http.StatusOK, map[string]any{
		"roles":     snapshot.Len(),
		"loaded_at": snapshot.LoadedAt(),
	})
}
