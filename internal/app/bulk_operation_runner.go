package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/openlearn/admin-api/internal/metrics"
	"github.com/openlearn/admin-api/pkg/domain/audit"
	"github.com/openlearn/admin-api/pkg/domain/authz"
	"github.com/openlearn/admin-api/pkg/domain/bulkop"
	"github.com/openlearn/admin-api/pkg/domain/user"
	"github.com/openlearn/admin-api/pkg/logger"
)

// itemChange is the before/after value of one target, recorded in audit.
type itemChange struct {
	oldValue string
	newValue string
}

// run dispatches every target of op and finalizes it.
func (s *BulkOperationService) run(ctx context.Context, op *operation) {
	defer s.wg.Done()
	defer op.cancel()

	kind := op.req.Kind()
	ctx, span := s.tracer.Start(ctx, "bulk_operation.run", trace.WithAttributes(
		attribute.String("bulk_operation.id", op.id),
		attribute.String("bulk_operation.kind", kind.String()),
		attribute.Int("bulk_operation.targets", op.req.Len()),
	))
	defer span.End()

	log := s.logger.WithContext(ctx).With(
		"operation_id", op.id,
		"kind", kind.String(),
		"actor_id", op.actor.ID,
	)
	log.Info("bulk operation dispatching", "targets", op.req.Len(), "workers", s.cfg.Workers)
	s.publish(ctx, op)

	sem := semaphore.NewWeighted(int64(s.cfg.Workers))
	var limiter *rate.Limiter
	if s.cfg.DispatchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.DispatchRate), 1)
	}

	// Items finish even when dispatch is cancelled.
	itemCtx := context.WithoutCancel(ctx)

	var (
		systemic   atomic.Bool
		items      sync.WaitGroup
		dispatched int
	)
	ids := op.req.TargetUserIDs()
	for _, id := range ids {
		if !s.acquireSlot(ctx, sem, limiter, &systemic) {
			break
		}
		if _, err := op.apply(bulkop.ItemDispatched{UserID: id}); err != nil {
			sem.Release(1)
			log.Error("failed to dispatch item", "user_id", id, "error", err)
			break
		}
		dispatched++

		items.Add(1)
		go func(id string) {
			defer items.Done()
			defer sem.Release(1)
			s.processItem(itemCtx, op, id, &systemic, log)
		}(id)
	}

	abandoned := ids[dispatched:]
	reason := s.abandonReason(op, &systemic)
	if _, err := op.apply(bulkop.DispatchClosed{Abandoned: abandoned, Reason: reason}); err != nil {
		log.Error("failed to close dispatch", "error", err)
	}
	if len(abandoned) > 0 {
		log.Warn("bulk operation stopped dispatching",
			"abandoned", len(abandoned),
			"reason", string(reason),
		)
		metrics.BulkItemsTotal.WithLabelValues(kind.String(), string(reason)).Add(float64(len(abandoned)))
	}

	items.Wait()

	state, err := op.apply(bulkop.Drained{})
	if err != nil {
		log.Error("failed to finalize bulk operation", "error", err)
		span.SetStatus(codes.Error, err.Error())
	}
	if state.Interruption != "" {
		span.SetStatus(codes.Error, string(state.Interruption))
	}

	s.finish(itemCtx, op, log)
}

// acquireSlot waits for dispatch pacing and a free worker. It returns false
// when dispatch must stop.
func (s *BulkOperationService) acquireSlot(ctx context.Context, sem *semaphore.Weighted, limiter *rate.Limiter, systemic *atomic.Bool) bool {
	if systemic.Load() || ctx.Err() != nil {
		return false
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return false
		}
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return false
	}
	// Acquire may succeed on a done context, and a worker may have hit a
	// systemic failure while we waited.
	if systemic.Load() || ctx.Err() != nil {
		sem.Release(1)
		return false
	}
	return true
}

// abandonReason picks the failure recorded for undispatched targets.
func (s *BulkOperationService) abandonReason(op *operation, systemic *atomic.Bool) bulkop.ErrorKind {
	if systemic.Load() {
		return bulkop.ErrorKindSystemUnavailable
	}
	op.mu.Lock()
	cancelRequested := op.state.CancelRequested
	op.mu.Unlock()
	if cancelRequested {
		return bulkop.ErrorKindCancelled
	}
	// Service shutdown.
	return bulkop.ErrorKindSystemUnavailable
}

// processItem runs one target to completion: lock, load, authorize, mutate,
// audit, fold.
func (s *BulkOperationService) processItem(ctx context.Context, op *operation, userID string, systemic *atomic.Bool, log *logger.Logger) {
	start := time.Now()
	kind := op.req.Kind()

	ctx, span := s.tracer.Start(ctx, "bulk_operation.item", trace.WithAttributes(
		attribute.String("bulk_operation.id", op.id),
		attribute.String("user.id", userID),
	))
	defer span.End()

	change, err := s.executeItem(ctx, op, userID)
	reason := bulkop.Classify(err)
	if reason.IsSystemic() {
		systemic.Store(true)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(reason))
	}

	s.recordAudit(ctx, op, userID, change, reason, log)

	var ev bulkop.Event = bulkop.ItemSucceeded{UserID: userID}
	result := "success"
	if err != nil {
		ev = bulkop.ItemFailed{UserID: userID, Reason: reason}
		result = string(reason)
		log.Warn("bulk operation item failed", "user_id", userID, "reason", result, "error", err)
	}
	if _, aerr := op.apply(ev); aerr != nil {
		log.Error("failed to record item outcome", "user_id", userID, "error", aerr)
	}

	metrics.BulkItemsTotal.WithLabelValues(kind.String(), result).Inc()
	metrics.BulkItemDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
	s.publish(ctx, op)
}

// executeItem applies the operation to one user while holding its lock.
// The returned change is filled once the user has been loaded.
func (s *BulkOperationService) executeItem(ctx context.Context, op *operation, userID string) (itemChange, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.ItemTimeout)
	unlock, err := s.locker.Lock(lockCtx, userID)
	cancel()
	if err != nil {
		return itemChange{}, fmt.Errorf("acquire user lock: %w", err)
	}
	defer unlock()

	// One deadline covers everything done under the lock so the holder never
	// outlives LockTTL.
	ctx, cancel = context.WithTimeout(ctx, s.cfg.ItemTimeout)
	defer cancel()

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return itemChange{}, err
	}

	kind := op.req.Kind()
	if u.IsDeleted() && kind != bulkop.KindDelete {
		return itemChange{}, user.NotFoundError(userID)
	}

	change, noop := planChange(op.req, u)

	subject := authz.Subject{ID: u.ID(), Role: u.Role()}
	// Items are judged by the hierarchy the request was validated against.
	if err := s.authorizer.checkUser(op.engine, "item", op.actor, subject, kind.Operation(), op.req.TargetRole()); err != nil {
		return change, err
	}

	if noop {
		return change, nil
	}

	return change, s.mutate(ctx, op.req, userID)
}

// planChange returns the change op.req makes to u, and whether u is
// already in the requested state.
func planChange(req bulkop.Request, u *user.User) (itemChange, bool) {
	switch req.Kind() {
	case bulkop.KindActivate:
		return itemChange{oldValue: u.Status().String(), newValue: user.StatusActive.String()}, u.IsActive()
	case bulkop.KindDeactivate:
		return itemChange{oldValue: u.Status().String(), newValue: user.StatusInactive.String()}, u.Status() == user.StatusInactive
	case bulkop.KindRoleChange:
		return itemChange{oldValue: u.Role(), newValue: req.TargetRole()}, u.Role() == req.TargetRole()
	case bulkop.KindDelete:
		return itemChange{oldValue: u.Status().String(), newValue: user.StatusDeleted.String()}, u.IsDeleted()
	default:
		return itemChange{}, false
	}
}

func (s *BulkOperationService) mutate(ctx context.Context, req bulkop.Request, userID string) error {
	switch req.Kind() {
	case bulkop.KindActivate:
		return s.users.Activate(ctx, userID)
	case bulkop.KindDeactivate:
		return s.users.Deactivate(ctx, userID)
	case bulkop.KindRoleChange:
		return s.users.SetRole(ctx, userID, req.TargetRole())
	case bulkop.KindDelete:
		return s.users.Delete(ctx, userID)
	default:
		return fmt.Errorf("unsupported bulk operation kind %q", req.Kind())
	}
}

// auditAction maps an operation kind to its audit action.
func auditAction(kind bulkop.Kind) audit.Action {
	switch kind {
	case bulkop.KindActivate:
		return audit.ActionUserActivated
	case bulkop.KindDeactivate:
		return audit.ActionUserDeactivated
	case bulkop.KindRoleChange:
		return audit.ActionUserRoleChanged
	default:
		return audit.ActionUserDeleted
	}
}

// recordAudit writes the single audit entry of one item. A recorder failure
// is logged and never changes the item outcome.
func (s *BulkOperationService) recordAudit(ctx context.Context, op *operation, userID string, change itemChange, reason bulkop.ErrorKind, log *logger.Logger) {
	result := audit.ResultSuccess
	switch {
	case reason.IsAuthorization():
		result = audit.ResultDenied
	case reason != "":
		result = audit.ResultFailure
	}

	entry, err := audit.NewEntry(auditAction(op.req.Kind()), op.actor.ID, userID, result)
	if err != nil {
		log.Error("failed to build audit entry", "user_id", userID, "error", err)
		return
	}
	entry.WithValues(change.oldValue, change.newValue).
		WithReason(op.req.Reason()).
		WithErrorKind(string(reason)).
		WithOperationID(op.id).
		WithRequestID(op.requestID)

	auditCtx, cancel := context.WithTimeout(ctx, s.cfg.ItemTimeout)
	defer cancel()
	if err := s.recorder.Append(auditCtx, entry); err != nil {
		log.Error("audit entry not recorded", "user_id", userID, "error", err)
	}
}

// finish builds the result of a drained operation and releases waiters.
func (s *BulkOperationService) finish(ctx context.Context, op *operation, log *logger.Logger) {
	finishedAt := s.now().UTC()

	op.mu.Lock()
	op.finishedAt = finishedAt
	result := bulkop.NewResult(op.id, op.req.Kind(), op.state, op.startedAt, finishedAt)
	result.ActorID = op.actor.ID
	op.result = &result
	op.mu.Unlock()
	close(op.done)

	metrics.BulkOperationsTotal.WithLabelValues(op.req.Kind().String(), string(result.State)).Inc()
	metrics.BulkOperationsInFlight.Dec()

	log.Info("bulk operation finished",
		"state", string(result.State),
		"successful", result.SuccessfulCount,
		"failed", result.FailedCount,
		"success_rate", result.SuccessRate,
		"interruption", string(result.Interruption),
		"duration", finishedAt.Sub(op.startedAt),
	)
	s.publish(ctx, op)

	if s.archiver == nil {
		return
	}
	archiveCtx, cancel := context.WithTimeout(ctx, s.cfg.ArchiveTimeout)
	defer cancel()
	if err := s.archiver.Archive(archiveCtx, result); err != nil {
		log.Error("failed to archive bulk operation result", "error", err)
	}
}
