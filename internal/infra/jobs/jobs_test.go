package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlearn/admin-api/pkg/domain/audit"
	"github.com/openlearn/admin-api/pkg/logger"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Queue: QueueAudit}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type memStore struct {
	mu      sync.Mutex
	entries []*audit.Entry
	err     error
}

func (m *memStore) Append(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func newEntry(t *testing.T) *audit.Entry {
	t.Helper()
	e, err := audit.NewEntry(audit.ActionUserDeactivated, "admin_1", "u1", audit.ResultSuccess)
	require.NoError(t, err)
	return e.WithValues("active", "inactive").WithOperationID("op-1").WithRequestID("req-1")
}

func TestClient_AppendEnqueuesRecord(t *testing.T) {
	q := &fakeEnqueuer{}
	c := newClient(q, 5, logger.NewNop())

	entry := newEntry(t)
	require.NoError(t, c.Append(context.Background(), entry))
	require.Len(t, q.tasks, 1)
	assert.Equal(t, TypeAuditAppend, q.tasks[0].Type())

	var rec audit.Record
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &rec))
	assert.Equal(t, entry.ID(), rec.ID)
	assert.Equal(t, "op-1", rec.OperationID)
	require.NotNil(t, rec.NewValue)
	assert.Equal(t, "inactive", *rec.NewValue)
}

func TestClient_AppendDuplicateIsNoop(t *testing.T) {
	c := newClient(&fakeEnqueuer{err: asynq.ErrTaskIDConflict}, 5, logger.NewNop())
	assert.NoError(t, c.Append(context.Background(), newEntry(t)))
}

func TestClient_AppendFailure(t *testing.T) {
	c := newClient(&fakeEnqueuer{err: errors.New("dial tcp: connection refused")}, 5, logger.NewNop())
	assert.Error(t, c.Append(context.Background(), newEntry(t)))
}

func TestAuditTaskHandler_HandleAppend(t *testing.T) {
	store := &memStore{}
	h := NewAuditTaskHandler(store, logger.NewNop())

	entry := newEntry(t)
	task, err := NewAuditAppendTask(entry, 3)
	require.NoError(t, err)

	require.NoError(t, h.HandleAppend(context.Background(), asynq.NewTask(task.Type(), task.Payload())))
	require.Len(t, store.entries, 1)
	got := store.entries[0]
	assert.Equal(t, entry.ID(), got.ID())
	assert.Equal(t, audit.ActionUserDeactivated, got.Action())
	assert.Equal(t, "req-1", got.RequestID())
}

func TestAuditTaskHandler_InvalidPayloadSkipsRetry(t *testing.T) {
	h := NewAuditTaskHandler(&memStore{}, logger.NewNop())

	err := h.HandleAppend(context.Background(), asynq.NewTask(TypeAuditAppend, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.HandleAppend(context.Background(), asynq.NewTask(TypeAuditAppend, []byte(`{"action":"explode","result":"success"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAuditTaskHandler_StoreFailureRetries(t *testing.T) {
	h := NewAuditTaskHandler(&memStore{err: errors.New("db down")}, logger.NewNop())

	task, err := NewAuditAppendTask(newEntry(t), 3)
	require.NoError(t, err)

	err = h.HandleAppend(context.Background(), asynq.NewTask(task.Type(), task.Payload()))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}
