package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/openlearn/admin-api/internal/infra/http/middleware"
	"github.com/openlearn/admin-api/pkg/apierror"
	"github.com/openlearn/admin-api/pkg/domain/authz"
	"github.com/openlearn/admin-api/pkg/domain/bulkop"
	"github.com/openlearn/admin-api/pkg/domain/shared"
	"github.com/openlearn/admin-api/pkg/logger"
	"github.com/openlearn/admin-api/pkg/validator"
)

// ListResponse is a list response.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, apiErr *apierror.Error) {
	apiErr.WriteJSONWithRequestID(w, middleware.GetRequestID(r.Context()))
}

// requireActor returns the authenticated actor or writes 401.
func requireActor(w http.ResponseWriter, r *http.Request) (authz.Actor, bool) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		writeError(w, r, apierror.Unauthorized(""))
		return authz.Actor{}, false
	}
	return actor, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.BodyTooLarge(w, r)
			return false
		}
		writeError(w, r, apierror.BadRequest("Invalid request body"))
		return false
	}
	return true
}

func handleValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(apierror.FieldErrors, 0, len(validationErrors))
		for _, ve := range validationErrors {
			fields.Add(ve.Field, ve.Message)
		}
		writeError(w, r, fields.ToAPIError())
		return
	}
	writeError(w, r, apierror.BadRequest("Validation error"))
}

// handleServiceError maps domain errors to API errors. Authorization
// failures keep their specific code so clients can tell a missing
// permission from a hierarchy violation.
func handleServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, bulkop.ErrOperationNotFound):
		writeError(w, r, apierror.NotFound("Bulk operation"))
		return
	case errors.Is(err, bulkop.ErrOperationInProgress):
		writeError(w, r, apierror.Conflict(apierror.CodeOperationInProgress, "Bulk operation has not finished"))
		return
	case errors.Is(err, bulkop.ErrNotCancellable):
		writeError(w, r, apierror.Conflict(apierror.CodeConflict, "Bulk operation can no longer be cancelled"))
		return
	}

	switch bulkop.Classify(err) {
	case bulkop.ErrorKindTooManyTargets:
		writeError(w, r, apierror.New(http.StatusBadRequest, apierror.CodeTooManyTargets, trimSentinel(err)))
	case bulkop.ErrorKindValidation:
		writeError(w, r, apierror.BadRequest(trimSentinel(err)))
	case bulkop.ErrorKindPermissionDenied:
		writeError(w, r, apierror.Forbidden(apierror.CodePermissionDenied, "Permission denied"))
	case bulkop.ErrorKindRoleLevelViolation:
		writeError(w, r, apierror.Forbidden(apierror.CodeRoleLevelViolation, "Target role is not below the actor role"))
	case bulkop.ErrorKindOwnerRoleImmutable:
		writeError(w, r, apierror.Forbidden(apierror.CodeOwnerRoleImmutable, "The owner role cannot be changed"))
	case bulkop.ErrorKindSelfAction:
		writeError(w, r, apierror.Forbidden(apierror.CodeSelfActionForbidden, "Actors cannot act on themselves"))
	case bulkop.ErrorKindNotFound:
		writeError(w, r, apierror.NotFound(""))
	case bulkop.ErrorKindSystemUnavailable:
		log.Warn("dependency unavailable", "error", err, "request_id", middleware.GetRequestID(r.Context()))
		writeError(w, r, apierror.ServiceUnavailable(""))
	default:
		if errors.Is(err, shared.ErrConflict) {
			writeError(w, r, apierror.Conflict(apierror.CodeConflict, trimSentinel(err)))
			return
		}
		log.Error("service error", "error", err, "request_id", middleware.GetRequestID(r.Context()))
		writeError(w, r, apierror.InternalError(err))
	}
}

// trimSentinel drops the leading sentinel text from a wrapped error message.
func trimSentinel(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx != -1 {
		return msg[idx+2:]
	}
	return msg
}
