package app

import (
	"context"
	"fmt"
	"time"

	"github.com/openlearn/admin-api/internal/metrics"
	"github.com/openlearn/admin-api/pkg/domain/audit"
	"github.com/openlearn/admin-api/pkg/logger"
)

// AuditService hands audit entries to their sink.
//
// The sink is either the audit repository (synchronous writes) or the job
// queue client (deferred writes). Both implement audit.Recorder. Failures
// are logged and returned; callers treat them as best-effort.
type AuditService struct {
	sink    audit.Recorder
	mode    string
	timeout time.Duration
	logger  *logger.Logger
}

// NewAuditService creates a new AuditService. mode labels the sink in logs
// and metrics ("sync" or "queue").
func NewAuditService(sink audit.Recorder, mode string, timeout time.Duration, log *logger.Logger) *AuditService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AuditService{
		sink:    sink,
		mode:    mode,
		timeout: timeout,
		logger:  log.With("service", "audit"),
	}
}

// Append implements audit.Recorder.
func (s *AuditService) Append(ctx context.Context, entry *audit.Entry) error {
	if entry == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.sink.Append(ctx, entry); err != nil {
		metrics.AuditWriteFailures.WithLabelValues(s.mode).Inc()
		s.logger.Error("failed to record audit entry",
			"error", err,
			"action", entry.Action().String(),
			"actor_id", entry.ActorID(),
			"user_id", entry.TargetUserID(),
			"operation_id", entry.OperationID(),
		)
		return fmt.Errorf("%w: %v", audit.ErrRecorderUnavailable, err)
	}

	metrics.AuditWritesTotal.WithLabelValues(s.mode).Inc()
	s.logger.Debug("audit entry recorded",
		"action", entry.Action().String(),
		"result", entry.Result().String(),
		"user_id", entry.TargetUserID(),
		"operation_id", entry.OperationID(),
	)
	return nil
}
