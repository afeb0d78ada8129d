package middleware

import (
	"net/http"
	"time"

	"github.com/openlearn/admin-api/pkg/logger"
)

// LoggerConfig configures HTTP request logging.
type LoggerConfig struct {
	// SkipPaths are not logged. /ws is skipped by default since the
	// connection lives for the whole session.
	SkipPaths []string
	// SlowRequestThreshold logs slower requests as warnings. Zero disables it.
	SlowRequestThreshold time.Duration
}

// DefaultLoggerConfig returns default logging configuration.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		SkipPaths:            []string{"/health", "/ready", "/metrics", "/ws"},
		SlowRequestThreshold: 5 * time.Second,
	}
}

// Logger logs one line per request. The level follows the status: 5xx
// error, 4xx and slow requests warn, the rest info.
func Logger(log *logger.Logger, cfg LoggerConfig) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", elapsed,
				"request_id", GetRequestID(r.Context()),
				"remote_addr", r.RemoteAddr,
			}
			if actor, ok := GetActor(r.Context()); ok {
				attrs = append(attrs, "actor_id", actor.ID, "actor_role", actor.Role)
			}

			switch {
			case rec.status >= http.StatusInternalServerError:
				log.Error("http request", attrs...)
			case rec.status >= http.StatusBadRequest:
				log.Warn("http request", attrs...)
			case cfg.SlowRequestThreshold > 0 && elapsed > cfg.SlowRequestThreshold:
				log.Warn("slow http request", attrs...)
			default:
				log.Info("http request", attrs...)
			}
		})
	}
}
