package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openlearn/admin-api/pkg/domain/audit"
)

// AuditRepository implements audit.Repository using PostgreSQL.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append persists an audit entry. Appending the same entry id twice is a
// no-op, so queued deliveries can be retried safely.
func (r *AuditRepository) Append(ctx context.Context, e *audit.Entry) error {
	query := `
		INSERT INTO audit_logs (
			id, action, actor_id, target_user_id, old_value, new_value,
			reason, result, error_kind, severity, message,
			operation_id, request_id, logged_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID(),
		e.Action().String(),
		e.ActorID(),
		e.TargetUserID(),
		nullStringPtr(e.OldValue()),
		nullStringPtr(e.NewValue()),
		nullString(e.Reason()),
		e.Result().String(),
		nullString(e.ErrorKind()),
		e.Severity().String(),
		e.Message(),
		nullString(e.OperationID()),
		nullString(e.RequestID()),
		e.Timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// ListByOperation returns the entries of one bulk operation, oldest first.
func (r *AuditRepository) ListByOperation(ctx context.Context, operationID string) ([]*audit.Entry, error) {
	query := `
		SELECT id, action, actor_id, target_user_id, old_value, new_value,
			reason, result, error_kind, severity, operation_id, request_id, logged_at
		FROM audit_logs
		WHERE operation_id = $1
		ORDER BY logged_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		var (
			id, action, actorID, targetUserID, result, severity string
			oldValue, newValue, reason, errorKind               sql.NullString
			opID, requestID                                     sql.NullString
			loggedAt                                            time.Time
		)
		if err := rows.Scan(&id, &action, &actorID, &targetUserID, &oldValue, &newValue,
			&reason, &result, &errorKind, &severity, &opID, &requestID, &loggedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		entries = append(entries, audit.Reconstitute(
			id,
			audit.Action(action),
			actorID,
			targetUserID,
			nullStringPtrValue(oldValue),
			nullStringPtrValue(newValue),
			nullStringValue(reason),
			audit.Result(result),
			nullStringValue(errorKind),
			audit.Severity(severity),
			nullStringValue(opID),
			nullStringValue(requestID),
			loggedAt,
		))
	}
	return entries, rows.Err()
}
