package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlearn/admin-api/internal/app"
	"github.com/openlearn/admin-api/internal/infra/http/middleware"
	"github.com/openlearn/admin-api/pkg/apierror"
	"github.com/openlearn/admin-api/pkg/domain/audit"
	"github.com/openlearn/admin-api/pkg/domain/authz"
	"github.com/openlearn/admin-api/pkg/domain/bulkop"
	"github.com/openlearn/admin-api/pkg/domain/metadata"
	"github.com/openlearn/admin-api/pkg/domain/role"
	"github.com/openlearn/admin-api/pkg/logger"
	"github.com/openlearn/admin-api/pkg/validator"
)

var (
	admin     = authz.Actor{ID: "admin-1", Role: "admin"}
	otherAdm  = authz.Actor{ID: "admin-2", Role: "admin"}
	owner     = authz.Actor{ID: "owner-1", Role: "owner"}
	moderator = authz.Actor{ID: "mod-1", Role: "moderator"}
)

func testRoles(t *testing.T) *app.RoleHierarchyService {
	t.Helper()
	svc := app.NewRoleHierarchyService(role.ProviderFunc(func(context.Context) ([]role.Definition, error) {
		return []role.Definition{
			{Name: "owner", Level: 99999, Permissions: []string{
				"activate_users", "deactivate_users", "change_user_roles", "delete_users", "manage_system",
			}},
			{Name: "admin", Level: 9000, Permissions: []string{
				"activate_users", "deactivate_users", "change_user_roles", "delete_users",
			}},
			{Name: "moderator", Level: 5000, Permissions: []string{"activate_users", "deactivate_users"}},
			{Name: "tutor", Level: 1000},
			{Name: "user", Level: 100},
		}, nil
	}), logger.NewNop())
	_, err := svc.Load(context.Background())
	require.NoError(t, err)
	return svc
}

type fakeBulkOperations struct {
	mu        sync.Mutex
	submitted []bulkop.Request
	submitErr error
	progress  map[string]bulkop.Progress
	results   map[string]bulkop.Result
	cancelErr error
	cancelled []string
}

func newFakeBulkOperations() *fakeBulkOperations {
	return &fakeBulkOperations{
		progress: make(map[string]bulkop.Progress),
		results:  make(map[string]bulkop.Result),
	}
}

func (f *fakeBulkOperations) Submit(_ context.Context, _ authz.Actor, req bulkop.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return "op-1", nil
}

func (f *fakeBulkOperations) GetProgress(id string) (bulkop.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.progress[id]
	if !ok {
		return bulkop.Progress{}, bulkop.ErrOperationNotFound
	}
	return p, nil
}

func (f *fakeBulkOperations) GetResult(id string) (bulkop.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[id]
	if !ok {
		return bulkop.Result{}, bulkop.ErrOperationInProgress
	}
	return r, nil
}

func (f *fakeBulkOperations) Cancel(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeBulkOperations) List(actorID string) []bulkop.Progress {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bulkop.Progress
	for _, p := range f.progress {
		if actorID == "" || p.ActorID == actorID {
			out = append(out, p)
		}
	}
	return out
}

// withActor stands in for the Auth middleware.
func withActor(actor *authz.Actor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor != nil {
				r = r.WithContext(middleware.WithActor(r.Context(), *actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bulkRouter(t *testing.T, ops BulkOperations, actor *authz.Actor) http.Handler {
	t.Helper()
	roles := testRoles(t)
	h := NewBulkOperationHandler(ops, app.NewAuthorizationService(roles, logger.NewNop()), validator.New(), logger.NewNop())

	r := chi.NewRouter()
	r.Use(withActor(actor))
	r.Get("/bulk-operations", h.List)
	r.Post("/bulk-operations", h.Submit)
	r.Get("/bulk-operations/{id}", h.Get)
	r.Get("/bulk-operations/{id}/result", h.Result)
	r.Post("/bulk-operations/{id}/cancel", h.Cancel)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apierror.Response {
	t.Helper()
	var resp apierror.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestBulkOperationHandler_Submit(t *testing.T) {
	ops := newFakeBulkOperations()
	h := bulkRouter(t, ops, &admin)

	rec := do(t, h, http.MethodPost, "/bulk-operations", map[string]any{
		"kind":            "deactivate",
		"target_user_ids": []string{"u1", "u2", "u1"},
		"reason":          "term ended",
	})

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp SubmitBulkOperationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "op-1", resp.OperationID)
	assert.Equal(t, "/api/v1/bulk-operations/op-1", rec.Header().Get("Location"))

	require.Len(t, ops.submitted, 1)
	assert.Equal(t, bulkop.KindDeactivate, ops.submitted[0].Kind())
	assert.Equal(t, []string{"u1", "u2"}, ops.submitted[0].TargetUserIDs())
}

func TestBulkOperationHandler_SubmitRejects(t *testing.T) {
	tests := []struct {
		name   string
		actor  *authz.Actor
		body   any
		err    error
		status int
		code   apierror.Code
	}{
		{
			name:   "unauthenticated",
			body:   map[string]any{"kind": "activate", "target_user_ids": []string{"u1"}},
			status: http.StatusUnauthorized,
			code:   apierror.CodeUnauthorized,
		},
		{
			name:   "unknown kind",
			actor:  &admin,
			body:   map[string]any{"kind": "promote", "target_user_ids": []string{"u1"}},
			status: http.StatusUnprocessableEntity,
			code:   apierror.CodeValidationFailed,
		},
		{
			name:   "no targets",
			actor:  &admin,
			body:   map[string]any{"kind": "activate", "target_user_ids": []string{}},
			status: http.StatusUnprocessableEntity,
			code:   apierror.CodeValidationFailed,
		},
		{
			name:   "unknown field",
			actor:  &admin,
			body:   map[string]any{"kind": "activate", "target_user_ids": []string{"u1"}, "force": true},
			status: http.StatusBadRequest,
			code:   apierror.CodeBadRequest,
		},
		{
			name:   "too many targets",
			actor:  &admin,
			body:   map[string]any{"kind": "activate", "target_user_ids": []string{"u1"}},
			err:    bulkop.ErrTooManyTargets,
			status: http.StatusBadRequest,
			code:   apierror.CodeTooManyTargets,
		},
		{
			name:   "role level violation",
			actor:  &admin,
			body:   map[string]any{"kind": "role_change", "target_user_ids": []string{"u1"}, "target_role": "admin"},
			err:    authz.ErrRoleLevelViolation,
			status: http.StatusForbidden,
			code:   apierror.CodeRoleLevelViolation,
		},
		{
			name:   "permission denied",
			actor:  &moderator,
			body:   map[string]any{"kind": "delete", "target_user_ids": []string{"u1"}, "reason": "spam"},
			err:    authz.ErrPermissionDenied,
			status: http.StatusForbidden,
			code:   apierror.CodePermissionDenied,
		},
		{
			name:   "hierarchy not loaded",
			actor:  &admin,
			body:   map[string]any{"kind": "activate", "target_user_ids": []string{"u1"}},
			err:    role.ErrHierarchyNotReady,
			status: http.StatusServiceUnavailable,
			code:   apierror.CodeServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := newFakeBulkOperations()
			ops.submitErr = tt.err
			rec := do(t, bulkRouter(t, ops, tt.actor), http.MethodPost, "/bulk-operations", tt.body)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func runningProgress(id, actorID string) bulkop.Progress {
	return bulkop.Progress{
		OperationID: id,
		ActorID:     actorID,
		Kind:        bulkop.KindActivate,
		State:       bulkop.PhaseDispatching,
		Completed:   1,
		Total:       4,
		Successful:  1,
		Errors:      []bulkop.ItemFailure{},
		StartedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBulkOperationHandler_GetVisibility(t *testing.T) {
	ops := newFakeBulkOperations()
	ops.progress["op-1"] = runningProgress("op-1", admin.ID)

	tests := []struct {
		name   string
		actor  authz.Actor
		status int
	}{
		{"starter", admin, http.StatusOK},
		{"other admin", otherAdm, http.StatusNotFound},
		{"owner with manage_system", owner, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, bulkRouter(t, ops, &tt.actor), http.MethodGet, "/bulk-operations/op-1", nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			var resp ProgressResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, 1, resp.Completed)
			assert.InDelta(t, 25.0, resp.Percent, 0.001)
		})
	}

	rec := do(t, bulkRouter(t, ops, &admin), http.MethodGet, "/bulk-operations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBulkOperationHandler_Result(t *testing.T) {
	ops := newFakeBulkOperations()
	ops.progress["op-1"] = runningProgress("op-1", admin.ID)
	h := bulkRouter(t, ops, &admin)

	rec := do(t, h, http.MethodGet, "/bulk-operations/op-1/result", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apierror.CodeOperationInProgress, decodeError(t, rec).Code)

	ops.results["op-1"] = bulkop.Result{
		OperationID:     "op-1",
		State:           bulkop.PhaseCompleted,
		Successful:      []string{"u1", "u2"},
		Failed:          []bulkop.ItemFailure{{UserID: "u3", Reason: bulkop.ErrorKindNotFound}},
		SuccessfulCount: 2,
		FailedCount:     1,
	}
	rec = do(t, h, http.MethodGet, "/bulk-operations/op-1/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result bulkop.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.SuccessfulCount)
	assert.Equal(t, bulkop.ErrorKindNotFound, result.Failed[0].Reason)
}

func TestBulkOperationHandler_Cancel(t *testing.T) {
	ops := newFakeBulkOperations()
	ops.progress["op-1"] = runningProgress("op-1", admin.ID)

	rec := do(t, bulkRouter(t, ops, &otherAdm), http.MethodPost, "/bulk-operations/op-1/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, ops.cancelled)

	rec = do(t, bulkRouter(t, ops, &admin), http.MethodPost, "/bulk-operations/op-1/cancel", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"op-1"}, ops.cancelled)

	ops.cancelErr = bulkop.ErrNotCancellable
	rec = do(t, bulkRouter(t, ops, &admin), http.MethodPost, "/bulk-operations/op-1/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBulkOperationHandler_List(t *testing.T) {
	ops := newFakeBulkOperations()
	ops.progress["op-1"] = runningProgress("op-1", admin.ID)
	ops.progress["op-2"] = runningProgress("op-2", otherAdm.ID)

	rec := do(t, bulkRouter(t, ops, &admin), http.MethodGet, "/bulk-operations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ListResponse[ProgressResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)

	rec = do(t, bulkRouter(t, ops, &admin), http.MethodGet, "/bulk-operations?all=true", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, bulkRouter(t, ops, &owner), http.MethodGet, "/bulk-operations?all=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
}

type fakeAuditLog map[string][]*audit.Entry

func (f fakeAuditLog) ListByOperation(_ context.Context, id string) ([]*audit.Entry, error) {
	return f[id], nil
}

func TestBulkOperationHandler_Audit(t *testing.T) {
	ops := newFakeBulkOperations()
	ops.progress["op-1"] = runningProgress("op-1", admin.ID)

	entry, err := audit.NewEntry(audit.ActionUserActivated, admin.ID, "u1", audit.ResultSuccess)
	require.NoError(t, err)
	entry.WithOperationID("op-1")

	h := NewBulkOperationHandler(ops, app.NewAuthorizationService(testRoles(t), logger.NewNop()), validator.New(), logger.NewNop(),
		WithAuditLog(fakeAuditLog{"op-1": {entry}}))
	r := chi.NewRouter()
	r.Use(withActor(&admin))
	r.Get("/bulk-operations/{id}/audit", h.Audit)

	rec := do(t, r, http.MethodGet, "/bulk-operations/op-1/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ListResponse[audit.Record]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "u1", resp.Data[0].TargetUserID)
	assert.Equal(t, "op-1", resp.Data[0].OperationID)
}

func roleRouter(t *testing.T, roles *app.RoleHierarchyService, actor *authz.Actor) http.Handler {
	t.Helper()
	catalog, err := metadata.Parse([]byte(`
roles:
  owner: {label: Owner, icon: crown, color: "#7c3aed"}
  admin: {label: Administrator, icon: shield, color: "#dc2626"}
  moderator: {label: Moderator}
  user: {label: Learner}
`))
	require.NoError(t, err)

	h := NewRoleHandler(roles, app.NewAuthorizationService(roles, logger.NewNop()), catalog, logger.NewNop())
	r := chi.NewRouter()
	r.Use(withActor(actor))
	r.Get("/roles", h.List)
	r.Get("/roles/{name}", h.Get)
	r.Post("/roles/reload", h.Reload)
	return r
}

func TestRoleHandler_List(t *testing.T) {
	rec := do(t, roleRouter(t, testRoles(t), &admin), http.MethodGet, "/roles", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RoleListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 5, resp.Total)

	byName := make(map[string]RoleResponse, len(resp.Roles))
	for _, r := range resp.Roles {
		byName[r.Name] = r
	}
	assert.Equal(t, "owner", resp.Roles[0].Name)
	assert.False(t, byName["owner"].Manageable)
	assert.False(t, byName["admin"].Manageable)
	assert.True(t, byName["moderator"].Manageable)

	require.NotNil(t, byName["admin"].Metadata)
	assert.Equal(t, "shield", byName["admin"].Metadata.Icon)
	assert.Nil(t, byName["tutor"].Metadata)
	assert.True(t, byName["tutor"].MetadataMissing)
}

func TestRoleHandler_Get(t *testing.T) {
	h := roleRouter(t, testRoles(t), &moderator)

	rec := do(t, h, http.MethodGet, "/roles/user", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp RoleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 100, resp.Level)
	assert.True(t, resp.Manageable)

	rec = do(t, h, http.MethodGet, "/roles/guest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoleHandler_Reload(t *testing.T) {
	var fail bool
	roles := app.NewRoleHierarchyService(role.ProviderFunc(func(context.Context) ([]role.Definition, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		return []role.Definition{
			{Name: "owner", Level: 99999, Permissions: []string{"manage_system"}},
			{Name: "admin", Level: 9000},
		}, nil
	}), logger.NewNop())
	_, err := roles.Load(context.Background())
	require.NoError(t, err)

	rec := do(t, roleRouter(t, roles, &admin), http.MethodPost, "/roles/reload", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, roleRouter(t, roles, &owner), http.MethodPost, "/roles/reload", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	fail = true
	rec = do(t, roleRouter(t, roles, &owner), http.MethodPost, "/roles/reload", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, roles.Ready())
}

func TestMetadataHandler_FlagsMissingKeys(t *testing.T) {
	catalog, err := metadata.Parse([]byte(`
operations:
  activate: {label: Activate}
`))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	NewMetadataHandler(catalog).Get(rec, httptest.NewRequest(http.MethodGet, "/metadata", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MetadataResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Operations, len(bulkop.AllKinds()))
	assert.Equal(t, "activate", resp.Operations[0].Key)
	assert.False(t, resp.Operations[0].Missing)
	assert.True(t, resp.Operations[1].Missing)
	for _, e := range resp.Errors {
		assert.True(t, e.Missing, e.Key)
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	ready := false
	h := NewHealthHandler(
		WithDatabase(PingerFunc(func(context.Context) error { return nil })),
		WithCheck("roles", ReadyFunc(func() bool { return ready })),
	)

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Checks["database"].Status)
	assert.Equal(t, "error", resp.Checks["roles"].Status)

	ready = true
	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
