package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const readinessTimeout = 5 * time.Second

// Pinger is a dependency the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

// Ping calls f.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// ReadyFunc turns a readiness flag, such as whether the role hierarchy has
// been loaded, into a Pinger.
func ReadyFunc(ready func() bool) Pinger {
	return PingerFunc(func(context.Context) error {
		if !ready() {
			return errors.New("not ready")
		}
		return nil
	})
}

type namedCheck struct {
	name   string
	pinger Pinger
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	checks []namedCheck
}

// HealthHandlerOption configures the health handler.
type HealthHandlerOption func(*HealthHandler)

// WithDatabase checks the database connection.
func WithDatabase(db Pinger) HealthHandlerOption { return WithCheck("database", db) }

// WithRedis checks the Redis connection.
func WithRedis(redis Pinger) HealthHandlerOption { return WithCheck("redis", redis) }

// WithCheck adds a named readiness check.
func WithCheck(name string, p Pinger) HealthHandlerOption {
	return func(h *HealthHandler) {
		h.checks = append(h.checks, namedCheck{name: name, pinger: p})
	}
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(opts ...HealthHandlerOption) *HealthHandler {
	h := &HealthHandler{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthResponse is the liveness probe body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the readiness probe body.
type ReadyResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Health handles GET /health. It never touches dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now().UTC()})
}

// Ready handles GET /ready. All checks run concurrently; any failure
// answers 503.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	results := make([]CheckResult, len(h.checks))
	var g errgroup.Group
	for i, c := range h.checks {
		g.Go(func() error {
			results[i] = runCheck(ctx, c.pinger)
			return nil
		})
	}
	_ = g.Wait()

	resp := ReadyResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]CheckResult, len(h.checks)),
	}
	code := http.StatusOK
	for i, c := range h.checks {
		resp.Checks[c.name] = results[i]
		if results[i].Status != "ok" {
			resp.Status = "not_ready"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

func runCheck(ctx context.Context, p Pinger) CheckResult {
	start := time.Now()
	err := p.Ping(ctx)
	res := CheckResult{Status: "ok", Duration: time.Since(start).Round(time.Microsecond).String()}
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
	}
	return res
}
