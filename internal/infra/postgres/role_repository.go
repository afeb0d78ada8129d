package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/openlearn/admin-api/pkg/domain/role"
)

// RoleRepository reads the role hierarchy from PostgreSQL.
// It implements role.Provider.
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new RoleRepository.
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// FetchRoles returns every role, highest level first.
func (r *RoleRepository) FetchRoles(ctx context.Context) ([]role.Definition, error) {
	query := `SELECT name, level, permissions FROM roles ORDER BY level DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", role.ErrFetchFailed, err)
	}
	defer rows.Close()

	var defs []role.Definition
	for rows.Next() {
		var d role.Definition
		if err := rows.Scan(&d.Name, &d.Level, pq.Array(&d.Permissions)); err != nil {
			return nil, fmt.Errorf("%w: scan role: %v", role.ErrFetchFailed, err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", role.ErrFetchFailed, err)
	}
	return defs, nil
}

// UpsertRole creates or replaces a role definition.
func (r *RoleRepository) UpsertRole(ctx context.Context, d role.Definition) error {
	query := `
		INSERT INTO roles (name, level, permissions, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name) DO UPDATE
		SET level = EXCLUDED.level, permissions = EXCLUDED.permissions, updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, d.Name, d.Level, pq.Array(d.Permissions)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: level %d", role.ErrDuplicateLevel, d.Level)
		}
		return fmt.Errorf("failed to upsert role: %w", err)
	}
	return nil
}
