// Package jobs provides background job definitions and handlers using Asynq.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/openlearn/admin-api/pkg/domain/audit"
	"github.com/openlearn/admin-api/pkg/logger"
)

// Task types for audit jobs
const (
	TypeAuditAppend = "audit:append"
)

// QueueAudit is the queue audit entries are delivered on.
const QueueAudit = "audit"

// NewAuditAppendTask creates a task that persists one audit entry.
// The entry id doubles as the task id so a retried enqueue cannot
// produce a second row.
func NewAuditAppendTask(entry *audit.Entry, maxRetry int) (*asynq.Task, error) {
	data, err := json.Marshal(entry.ToRecord())
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return asynq.NewTask(
		TypeAuditAppend,
		data,
		asynq.TaskID(entry.ID()),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(30*time.Second),
		asynq.Retention(24*time.Hour),
		asynq.Queue(QueueAudit),
	), nil
}

// AuditTaskHandler writes queued audit entries to durable storage.
type AuditTaskHandler struct {
	store  audit.Recorder
	logger *logger.Logger
}

// NewAuditTaskHandler creates a new AuditTaskHandler.
func NewAuditTaskHandler(store audit.Recorder, log *logger.Logger) *AuditTaskHandler {
	return &AuditTaskHandler{
		store:  store,
		logger: log.With("handler", "audit"),
	}
}

// RegisterHandlers registers the audit handlers on the mux.
func (h *AuditTaskHandler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeAuditAppend, h.HandleAppend)
}

// HandleAppend decodes an audit record and stores it.
func (h *AuditTaskHandler) HandleAppend(ctx context.Context, t *asynq.Task) error {
	var rec audit.Record
	if err := json.Unmarshal(t.Payload(), &rec); err != nil {
		h.logger.Error("invalid audit payload", "error", err)
		return fmt.Errorf("unmarshal audit payload: %v: %w", err, asynq.SkipRetry)
	}

	entry, err := audit.FromRecord(rec)
	if err != nil {
		h.logger.Error("invalid audit record", "id", rec.ID, "error", err)
		return fmt.Errorf("decode audit record: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.store.Append(ctx, entry); err != nil {
		h.logger.Warn("failed to store audit entry, will retry",
			"id", entry.ID(),
			"operation_id", entry.OperationID(),
			"error", err,
		)
		return fmt.Errorf("store audit entry: %w", err)
	}

	h.logger.Debug("audit entry stored",
		"id", entry.ID(),
		"action", entry.Action(),
		"target_user_id", entry.TargetUserID(),
		"result", entry.Result(),
	)
	return nil
}
