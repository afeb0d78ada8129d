package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the admin console HTTP client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	verbose    bool
}

// NewClient creates a new admin console client.
func NewClient(baseURL, token string, verbose bool) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		verbose: verbose,
	}
}

// Do performs an HTTP request and returns the response body.
func (c *Client) Do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.verbose {
		fmt.Printf(">>> %s %s\n", method, url)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if c.verbose {
		fmt.Printf("<<< %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, parseAPIError(resp.StatusCode, respBody)
	}

	return respBody, resp.StatusCode, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	data, _, err := c.Do(ctx, http.MethodGet, path, nil)
	return data, err
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body any) ([]byte, error) {
	data, _, err := c.Do(ctx, http.MethodPost, path, body)
	return data, err
}

// APIError represents an error from the admin console API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("API error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	return msg
}

func parseAPIError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}

	var parsed struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Message
		apiErr.RequestID = parsed.RequestID
	}

	if apiErr.Message == "" {
		switch statusCode {
		case http.StatusUnauthorized:
			apiErr.Message = "unauthorized: invalid or expired access token"
		case http.StatusForbidden:
			apiErr.Message = "forbidden: insufficient permissions"
		case http.StatusNotFound:
			apiErr.Message = "resource not found"
		case http.StatusConflict:
			apiErr.Message = "conflict: operation not finished"
		default:
			apiErr.Message = fmt.Sprintf("API error: %d %s", statusCode, http.StatusText(statusCode))
		}
	}

	return apiErr
}

// Response types matching server handler structs.

type CheckResult struct {
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ReadyResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

type RoleResponse struct {
	Name            string         `json:"name"`
	Level           int            `json:"level"`
	Permissions     []string       `json:"permissions"`
	PermissionCount int            `json:"permission_count"`
	IsOwner         bool           `json:"is_owner"`
	Manageable      bool           `json:"manageable"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type RoleListResponse struct {
	Roles    []RoleResponse `json:"roles"`
	Total    int            `json:"total"`
	LoadedAt string         `json:"loaded_at"`
}

type SubmitRequest struct {
	Kind          string   `json:"kind"`
	TargetUserIDs []string `json:"target_user_ids"`
	TargetRole    string   `json:"target_role,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}

type SubmitResponse struct {
	OperationID string `json:"operation_id"`
	State       string `json:"state"`
}

type ItemFailure struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

type ProgressResponse struct {
	OperationID string        `json:"operation_id"`
	ActorID     string        `json:"actor_id"`
	Kind        string        `json:"kind"`
	State       string        `json:"state"`
	Completed   int           `json:"completed"`
	Total       int           `json:"total"`
	Successful  int           `json:"successful"`
	Failed      int           `json:"failed"`
	Errors      []ItemFailure `json:"errors"`
	Percent     float64       `json:"percent"`
	StartedAt   string        `json:"started_at"`
	FinishedAt  *string       `json:"finished_at,omitempty"`
}

// Terminal reports whether the operation accepts no further progress.
func (p ProgressResponse) Terminal() bool {
	return p.State == "completed" || p.State == "cancelled"
}

type ProgressListResponse struct {
	Data  []ProgressResponse `json:"data"`
	Total int                `json:"total"`
}

type ResultResponse struct {
	OperationID     string        `json:"operation_id"`
	ActorID         string        `json:"actor_id"`
	Kind            string        `json:"kind"`
	State           string        `json:"state"`
	Successful      []string      `json:"successful"`
	Failed          []ItemFailure `json:"failed"`
	SuccessfulCount int           `json:"successful_count"`
	FailedCount     int           `json:"failed_count"`
	SuccessRate     float64       `json:"success_rate"`
	Interruption    string        `json:"interruption,omitempty"`
	StartedAt       string        `json:"started_at"`
	FinishedAt      string        `json:"finished_at"`
}

type AuditRecord struct {
	ID           string  `json:"id"`
	Action       string  `json:"action"`
	ActorID      string  `json:"actor_id"`
	TargetUserID string  `json:"target_user_id"`
	OldValue     *string `json:"old_value,omitempty"`
	NewValue     *string `json:"new_value,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	Result       string  `json:"result"`
	ErrorKind    string  `json:"error_kind,omitempty"`
	Severity     string  `json:"severity"`
	Timestamp    string  `json:"timestamp"`
}

type AuditListResponse struct {
	Data  []AuditRecord `json:"data"`
	Total int           `json:"total"`
}
