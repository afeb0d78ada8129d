package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openlearn/admin-api/pkg/apierror"
	"github.com/openlearn/admin-api/pkg/domain/audit"
	"github.com/openlearn/admin-api/pkg/domain/authz"
	"github.com/openlearn/admin-api/pkg/domain/bulkop"
	"github.com/openlearn/admin-api/pkg/logger"
	"github.com/openlearn/admin-api/pkg/validator"
)

// BulkOperations is the caller API of the bulk operation executor.
type BulkOperations interface {
	Submit(ctx context.Context, actor authz.Actor, req bulkop.Request) (string, error)
	GetProgress(id string) (bulkop.Progress, error)
	GetResult(id string) (bulkop.Result, error)
	Cancel(id string) error
	List(actorID string) []bulkop.Progress
}

// OperationViewer decides who may read or cancel an operation.
type OperationViewer interface {
	CanViewOperation(actor authz.Actor, ownerID string) bool
	CanPerformOperation(actorRole string, op authz.Operation) bool
}

// AuditLog reads the persisted audit trail of an operation.
type AuditLog interface {
	ListByOperation(ctx context.Context, operationID string) ([]*audit.Entry, error)
}

// BulkOperationHandler handles bulk operation HTTP requests.
type BulkOperationHandler struct {
	service   BulkOperations
	viewer    OperationViewer
	auditLog  AuditLog
	validator *validator.Validator
	logger    *logger.Logger
}

// BulkOperationHandlerOption configures a BulkOperationHandler.
type BulkOperationHandlerOption func(*BulkOperationHandler)

// WithAuditLog enables GET /bulk-operations/{id}/audit.
func WithAuditLog(l AuditLog) BulkOperationHandlerOption {
	return func(h *BulkOperationHandler) {
		h.auditLog = l
	}
}

// NewBulkOperationHandler creates a new bulk operation handler.
func NewBulkOperationHandler(
	svc BulkOperations,
	viewer OperationViewer,
	v *validator.Validator,
	log *logger.Logger,
	opts ...BulkOperationHandlerOption,
) *BulkOperationHandler {
	h := &BulkOperationHandler{
		service:   svc,
		validator: v,
		viewer:    viewer,
		logger:    log.With("handler", "bulk_operation"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SubmitBulkOperationRequest is the body of POST /api/v1/bulk-operations.
type SubmitBulkOperationRequest struct {
	Kind          string   `json:"kind" validate:"required,bulk_kind"`
	TargetUserIDs []string `json:"target_user_ids" validate:"required,min=1,dive,required,max=64"`
	TargetRole    string   `json:"target_role" validate:"omitempty,role_name"`
	Reason        string   `json:"reason" validate:"max=1000"`
}

// SubmitBulkOperationResponse is returned when an operation is accepted.
type SubmitBulkOperationResponse struct {
	OperationID string       `json:"operation_id"`
	State       bulkop.Phase `json:"state"`
}

// ProgressResponse is a progress snapshot with its completion percentage.
type ProgressResponse struct {
	bulkop.Progress
	Percent float64 `json:"percent"`
}

func toProgressResponse(p bulkop.Progress) ProgressResponse {
	return ProgressResponse{Progress: p, Percent: p.Percent()}
}

// Submit handles POST /api/v1/bulk-operations.
// The operation runs in the background; the response carries its id.
func (h *BulkOperationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req SubmitBulkOperationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, r, err)
		return
	}

	kind, err := bulkop.ParseKind(req.Kind)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	id, err := h.service.Submit(r.Context(), actor, bulkop.NewRequest(kind, req.TargetUserIDs, req.TargetRole, req.Reason))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Location", "/api/v1/bulk-operations/"+id)
	writeJSON(w, http.StatusAccepted, SubmitBulkOperationResponse{
		OperationID: id,
		State:       bulkop.PhaseDispatching,
	})
}

// List handles GET /api/v1/bulk-operations.
// Actors see their own operations; ?all=true lists every operation for
// roles holding manage_system.
func (h *BulkOperationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	actorID := actor.ID
	if r.URL.Query().Get("all") == "true" {
		if !h.viewer.CanPerformOperation(actor.Role, authz.OperationManageSystem) {
			writeError(w, r, apierror.Forbidden(apierror.CodePermissionDenied, "Listing all operations requires manage_system"))
			return
		}
		actorID = ""
	}

	ops := h.service.List(actorID)
	data := make([]ProgressResponse, 0, len(ops))
	for _, p := range ops {
		data = append(data, toProgressResponse(p))
	}
	writeJSON(w, http.StatusOK, ListResponse[ProgressResponse]{Data: data, Total: len(data)})
}

// Get handles GET /api/v1/bulk-operations/{id}.
func (h *BulkOperationHandler) Get(w http.ResponseWriter, r *http.Request) {
	progress, ok := h.authorizedProgress(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toProgressResponse(progress))
}

// Result handles GET /api/v1/bulk-operations/{id}/result.
// It answers 409 until the operation is terminal.
func (h *BulkOperationHandler) Result(w http.ResponseWriter, r *http.Request) {
	progress, ok := h.authorizedProgress(w, r)
	if !ok {
		return
	}

	result, err := h.service.GetResult(progress.OperationID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Cancel handles POST /api/v1/bulk-operations/{id}/cancel.
func (h *BulkOperationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	progress, ok := h.authorizedProgress(w, r)
	if !ok {
		return
	}

	if err := h.service.Cancel(progress.OperationID); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	current, err := h.service.GetProgress(progress.OperationID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toProgressResponse(current))
}

// Audit handles GET /api/v1/bulk-operations/{id}/audit.
// Entries delivered through the queue appear once the worker stores them.
func (h *BulkOperationHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if h.auditLog == nil {
		writeError(w, r, apierror.NotFound("Audit log"))
		return
	}
	progress, ok := h.authorizedProgress(w, r)
	if !ok {
		return
	}

	entries, err := h.auditLog.ListByOperation(r.Context(), progress.OperationID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	records := make([]audit.Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, e.ToRecord())
	}
	writeJSON(w, http.StatusOK, ListResponse[audit.Record]{Data: records, Total: len(records)})
}

// authorizedProgress loads the operation named in the path and checks the
// actor may see it. Operations of other actors answer 404 so ids cannot be
// probed.
func (h *BulkOperationHandler) authorizedProgress(w http.ResponseWriter, r *http.Request) (bulkop.Progress, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return bulkop.Progress{}, false
	}

	progress, err := h.service.GetProgress(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return bulkop.Progress{}, false
	}
	if !h.viewer.CanViewOperation(actor, progress.ActorID) {
		writeError(w, r, apierror.NotFound("Bulk operation"))
		return bulkop.Progress{}, false
	}
	return progress, true
}
