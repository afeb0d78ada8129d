package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"roles":[],"total":0}`))
	}))
	defer srv.Close()

	data, err := NewClient(srv.URL+"/", "tok", false).Get(context.Background(), "/api/v1/roles")
	require.NoError(t, err)

	var resp RoleListResponse
	require.NoError(t, unmarshal(data, &resp))
	assert.Zero(t, resp.Total)
}

func TestClient_ParsesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"Forbidden","code":"ROLE_LEVEL_VIOLATION","message":"Target role is not below yours","request_id":"req-1"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "tok", false).Post(context.Background(), "/api/v1/bulk-operations", SubmitRequest{Kind: "role_change"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "ROLE_LEVEL_VIOLATION", apiErr.Code)
	assert.Equal(t, "req-1", apiErr.RequestID)
	assert.Equal(t, "ROLE_LEVEL_VIOLATION: Target role is not below yours", apiErr.Error())
}

func TestClient_DefaultErrorMessage(t *testing.T) {
	err := parseAPIError(http.StatusConflict, []byte("not json"))
	assert.EqualError(t, err, "conflict: operation not finished")
}

func TestWaitForOperation(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/bulk-operations/op-1", r.URL.Path)
		state := "dispatching"
		if calls.Add(1) >= 3 {
			state = "completed"
		}
		_ = json.NewEncoder(w).Encode(ProgressResponse{OperationID: "op-1", State: state, Total: 2, Completed: 2})
	}))
	defer srv.Close()

	var seen []string
	p, err := waitForOperation(context.Background(), NewClient(srv.URL, "tok", false), "op-1", time.Millisecond,
		func(p ProgressResponse) { seen = append(seen, p.State) })
	require.NoError(t, err)
	assert.Equal(t, "completed", p.State)
	assert.Equal(t, []string{"dispatching", "dispatching", "completed"}, seen)
}

func TestWaitForOperation_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ProgressResponse{OperationID: "op-1", State: "dispatching"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := waitForOperation(ctx, NewClient(srv.URL, "tok", false), "op-1", 5*time.Millisecond, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReadTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.txt")
	require.NoError(t, os.WriteFile(path, []byte("u1\n\n# comment\n  u2  \n"), 0o600))

	ids, err := readTargets(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids)
}

func TestConfig_ContextsAndRedaction(t *testing.T) {
	t.Setenv("CONSOLE_CONFIG_DIR", t.TempDir())

	cfg := &Config{}
	cfg.SetContext("prod", ContextDetail{APIURL: "https://console.example", Token: "secret"})
	cfg.SetContext("prod", ContextDetail{APIURL: "https://console.example", Token: "rotated"})
	cfg.CurrentContext = "prod"
	require.NoError(t, saveConfig(cfg))

	loaded, err := loadConfig()
	require.NoError(t, err)
	require.Len(t, loaded.Contexts, 1)
	assert.Equal(t, "rotated", loaded.GetContext("prod").Context.Token)
	assert.Equal(t, "console-admin/v1", loaded.APIVersion)

	assert.Equal(t, "REDACTED", loaded.Redacted().Contexts[0].Context.Token)
	assert.Equal(t, "rotated", loaded.Contexts[0].Context.Token)
}

func runSetContextArgs(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newSetContextCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.Execute()
}

func TestSetContext_UpdatesOnlyGivenFields(t *testing.T) {
	t.Setenv("CONSOLE_CONFIG_DIR", t.TempDir())

	require.NoError(t, runSetContextArgs(t, "staging", "--api-url", "https://staging.console.example", "--token", "s3cret"))
	require.NoError(t, runSetContextArgs(t, "staging", "--group-output", "bulk=json", "--default-output", "wide"))

	cfg, err := loadConfig()
	require.NoError(t, err)
	got := cfg.GetContext("staging").Context
	assert.Equal(t, "https://staging.console.example", got.APIURL)
	assert.Equal(t, "s3cret", got.Token)
	assert.Equal(t, "wide", got.Output)
	assert.Equal(t, map[string]string{"bulk": "json"}, got.Outputs)
	assert.Equal(t, "staging", cfg.CurrentContext)

	tokenPath := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenPath, []byte("from-file\n"), 0o600))
	require.NoError(t, runSetContextArgs(t, "staging", "--token-file", tokenPath, "--group-output", "bulk="))

	cfg, err = loadConfig()
	require.NoError(t, err)
	got = cfg.GetContext("staging").Context
	assert.Empty(t, got.Token)
	assert.Empty(t, got.Outputs)
	token, err := got.accessToken()
	require.NoError(t, err)
	assert.Equal(t, "from-file", token)
}

func TestSetContext_Rejects(t *testing.T) {
	t.Setenv("CONSOLE_CONFIG_DIR", t.TempDir())
	require.NoError(t, runSetContextArgs(t, "prod", "--api-url", "https://console.example", "--token", "t"))

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"new context without url", []string{"dev", "--token", "t"}, "--api-url is required"},
		{"new context without token", []string{"dev", "--api-url", "https://dev.example"}, "--token or --token-file"},
		{"token and file", []string{"prod", "--token", "a", "--token-file", "/tmp/t"}, "mutually exclusive"},
		{"unknown format", []string{"prod", "--default-output", "xml"}, "unknown output format"},
		{"unknown group", []string{"prod", "--group-output", "users=json"}, "unknown command group"},
		{"not a url", []string{"prod", "--api-url", "console.example"}, "must be an http(s) URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runSetContextArgs(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Contexts, 1)
	assert.Equal(t, ContextDetail{APIURL: "https://console.example", Token: "t"}, cfg.Contexts[0].Context)
}

func TestConfig_ValidateOnLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "foreign api version",
			yaml:    "apiVersion: other/v2\ncontexts: []\n",
			wantErr: "unsupported apiVersion",
		},
		{
			name: "duplicate context",
			yaml: `contexts:
- name: prod
  context: {api-url: "https://a.example"}
- name: prod
  context: {api-url: "https://b.example"}
`,
			wantErr: "defined twice",
		},
		{
			name:    "dangling current context",
			yaml:    "current-context: gone\ncontexts: []\n",
			wantErr: "current-context",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Setenv("CONSOLE_CONFIG_DIR", dir)
			require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(tt.yaml), 0o600))

			_, err := loadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDeleteContext(t *testing.T) {
	cfg := &Config{CurrentContext: "a"}
	cfg.SetContext("a", ContextDetail{APIURL: "https://a.example"})
	cfg.SetContext("b", ContextDetail{APIURL: "https://b.example"})

	assert.True(t, cfg.DeleteContext("a"))
	assert.False(t, cfg.DeleteContext("a"))
	assert.Empty(t, cfg.CurrentContext)
	require.Len(t, cfg.Contexts, 1)
	assert.Equal(t, "b", cfg.Contexts[0].Name)
}

func TestOutputFor_ContextGroupDefaults(t *testing.T) {
	prev := activeContext
	activeContext = &ContextDetail{Output: "wide", Outputs: map[string]string{"bulk": "json"}}
	t.Cleanup(func() { activeContext = prev })

	assert.Equal(t, "bulk", commandGroup(bulkStatusCmd))
	assert.Equal(t, "get", commandGroup(getRolesCmd))
	assert.Equal(t, outputJSON, outputFor(bulkStatusCmd))
	assert.Equal(t, outputWide, outputFor(getRolesCmd))

	flag := rootCmd.PersistentFlags().Lookup("output")
	require.NotNil(t, flag)
	require.NoError(t, flag.Value.Set("yaml"))
	flag.Changed = true
	t.Cleanup(func() {
		_ = flag.Value.Set(flag.DefValue)
		flag.Changed = false
	})
	assert.Equal(t, outputYAML, outputFor(bulkStatusCmd))
	assert.Equal(t, outputYAML, outputFor(getRolesCmd))
}

func TestRender(t *testing.T) {
	resp := SubmitResponse{OperationID: "op-1", State: "dispatching"}

	var buf bytes.Buffer
	require.NoError(t, render(&buf, outputJSON, resp, nil))
	var decoded SubmitResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, resp, decoded)

	buf.Reset()
	require.NoError(t, render(&buf, outputYAML, resp, nil))
	assert.Contains(t, buf.String(), "operationid: op-1")

	buf.Reset()
	require.NoError(t, render(&buf, outputTable, resp, func(w io.Writer) {
		fmt.Fprint(w, "accepted")
	}))
	assert.Equal(t, "accepted", buf.String())
}

func TestPrintFailures(t *testing.T) {
	var failed []ItemFailure
	for i := range 25 {
		reason := "downstream_error"
		if i%5 == 0 {
			reason = "not_found"
		}
		failed = append(failed, ItemFailure{UserID: fmt.Sprintf("user-%02d", i), Reason: reason})
	}

	assert.Equal(t, []reasonCount{{"downstream_error", 20}, {"not_found", 5}}, failuresByReason(failed))

	var buf bytes.Buffer
	printFailures(&buf, outputTable, failed)
	assert.Contains(t, buf.String(), "REASON")
	assert.Contains(t, buf.String(), "list all 25 failed users")
	assert.NotContains(t, buf.String(), "user-07")

	buf.Reset()
	printFailures(&buf, outputWide, failed)
	assert.Equal(t, 27, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "user-07")

	buf.Reset()
	printFailures(&buf, outputTable, failed[:3])
	assert.Contains(t, buf.String(), "user-02")
}

func TestLocalTime(t *testing.T) {
	assert.Equal(t, "-", localTime(""))
	assert.Equal(t, "yesterday", localTime("yesterday"))
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, ts.Local().Format(time.DateTime), localTime(ts.Format(time.RFC3339)))
}
