package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
	"testing/fstest"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlearn/admin-api/pkg/domain/bulkop"
	"github.com/openlearn/admin-api/pkg/domain/shared"
	"github.com/openlearn/admin-api/pkg/domain/user"
)

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"conn done", fmt.Errorf("exec: %w", sql.ErrConnDone), true},
		{"admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"connection failure", &pq.Error{Code: "08006"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"plain", errors.New("syntax error"), false},
		{"deadline", context.DeadlineExceeded, false},
		{"wrapped deadline", fmt.Errorf("get user: %w", context.DeadlineExceeded), false},
		{"canceled", fmt.Errorf("exec: %w", context.Canceled), false},
		{"dial refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{"read reset", &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}, true},
		{"read timeout", &net.OpError{Op: "read", Net: "tcp", Err: os.ErrDeadlineExceeded}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isConnectionError(tt.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestWrapUserError(t *testing.T) {
	err := wrapUserError("deactivate user", driver.ErrBadConn)
	assert.True(t, shared.IsUnavailable(err))

	err = wrapUserError("deactivate user", &pq.Error{Code: "22P02"})
	assert.False(t, shared.IsUnavailable(err))
	assert.Contains(t, err.Error(), "failed to deactivate user")

	err = wrapUserError("get user", user.NotFoundError("u1"))
	assert.ErrorIs(t, err, user.ErrUserNotFound)

	err = wrapUserError("get user", context.DeadlineExceeded)
	assert.False(t, shared.IsUnavailable(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// stallConnector hands out connections whose statements block until the
// caller's context ends.
type stallConnector struct{}

func (stallConnector) Connect(context.Context) (driver.Conn, error) { return stallConn{}, nil }
func (stallConnector) Driver() driver.Driver                        { return stallDriver{} }

type stallDriver struct{}

func (stallDriver) Open(string) (driver.Conn, error) { return stallConn{}, nil }

type stallConn struct{}

func (stallConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("prepare not supported") }
func (stallConn) Close() error                        { return nil }
func (stallConn) Begin() (driver.Tx, error)           { return nil, errors.New("begin not supported") }

func (stallConn) ExecContext(ctx context.Context, _ string, _ []driver.NamedValue) (driver.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stallConn) QueryContext(ctx context.Context, _ string, _ []driver.NamedValue) (driver.Rows, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestUserRepository_SlowStatementIsNotAnOutage(t *testing.T) {
	db := &DB{DB: sql.OpenDB(stallConnector{})}
	t.Cleanup(func() { _ = db.Close() })
	repo := NewUserRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := repo.Deactivate(ctx, "slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, shared.IsUnavailable(err))
	assert.Equal(t, bulkop.ErrorKindDownstream, bulkop.Classify(err))

	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = repo.GetByID(ctx, "slow")
	require.Error(t, err)
	assert.False(t, shared.IsUnavailable(err))
	assert.Equal(t, bulkop.ErrorKindDownstream, bulkop.Classify(err))
}

func TestNullStringHelpers(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.Equal(t, "x", nullStringValue(nullString("x")))
	assert.Nil(t, nullStringPtrValue(nullStringPtr(nil)))

	s := "v"
	got := nullStringPtrValue(nullStringPtr(&s))
	require.NotNil(t, got)
	assert.Equal(t, "v", *got)
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/000002_users.up.sql":   {Data: []byte("CREATE TABLE users();")},
		"m/000002_users.down.sql": {Data: []byte("DROP TABLE users;")},
		"m/000001_roles.up.sql":   {Data: []byte("CREATE TABLE roles();")},
		"m/README.md":             {Data: []byte("ignored")},
	}

	migs, err := loadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, "000001", migs[0].Version)
	assert.Equal(t, "roles", migs[0].Name)
	assert.Empty(t, migs[0].down)
	assert.Equal(t, "000002", migs[1].Version)
	assert.Equal(t, "DROP TABLE users;", migs[1].down)
}

func TestLoadMigrations_MissingUp(t *testing.T) {
	fsys := fstest.MapFS{
		"m/000001_roles.down.sql": {Data: []byte("DROP TABLE roles;")},
	}
	_, err := loadMigrations(fsys, "m")
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	migs, err := loadMigrations(migrationFiles, "migrations")
	require.NoError(t, err)
	require.Len(t, migs, 3)
	for _, m := range migs {
		assert.NotEmpty(t, m.down, "migration %s should be reversible", m.Version)
	}
	assert.Equal(t, "audit_logs", migs[2].Name)
}
