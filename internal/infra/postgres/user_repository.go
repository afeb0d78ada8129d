package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/openlearn/admin-api/pkg/domain/user"
)

const userColumns = `id, email, name, role, status`

// UserRepository implements user.Repository using PostgreSQL.
// Deleting a user is a soft delete: the row keeps its id with status
// "deleted" so audit entries stay resolvable.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var (
		uid, email, role, status string
		name                     sql.NullString
	)
	row := r.db.QueryRowContext(ctx, query, id)
	if err := row.Scan(&uid, &email, &name, &role, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.NotFoundError(id)
		}
		return nil, wrapUserError("get user", err)
	}

	return user.Reconstruct(uid, email, nullStringValue(name), role, user.Status(status)), nil
}

// Activate sets the user's status to active.
func (r *UserRepository) Activate(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, user.StatusActive)
}

// Deactivate sets the user's status to inactive.
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, user.StatusInactive)
}

// Delete soft-deletes the user.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET status = 'deleted', deleted_at = COALESCE(deleted_at, NOW()), updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, "delete user", id, query, id)
}

// SetRole assigns a role to the user.
func (r *UserRepository) SetRole(ctx context.Context, id, role string) error {
	query := `
		UPDATE users
		SET role = $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'deleted'
	`
	return r.exec(ctx, "set user role", id, query, id, role)
}

func (r *UserRepository) setStatus(ctx context.Context, id string, status user.Status) error {
	query := `
		UPDATE users
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'deleted'
	`
	return r.exec(ctx, "set user status", id, query, id, status.String())
}

func (r *UserRepository) exec(ctx context.Context, op, id, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapUserError(op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return wrapUserError(op, err)
	}
	if rows == 0 {
		return user.NotFoundError(id)
	}
	return nil
}

// wrapUserError marks connection failures as a store outage. Other driver
// errors stay plain so they count against the single user.
func wrapUserError(op string, err error) error {
	if isConnectionError(err) {
		return user.UnavailableError(fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
