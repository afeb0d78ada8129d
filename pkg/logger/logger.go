// Package logger provides the structured logger used across the console.
//
// It is a thin layer over log/slog that masks credentials and personal
// data in attribute values and picks request-scoped fields out of a
// context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Logger is a slog.Logger whose With returns *Logger.
type Logger struct {
	*slog.Logger
}

// Config selects the level ("debug", "info", "warn", "error"), the format
// ("json" or "text") and the destination. A nil Output means stdout.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// New builds a Logger from cfg. Debug level also records source locations.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   level == slog.LevelDebug,
		ReplaceAttr: redact,
	}
	if strings.EqualFold(cfg.Format, "text") {
		return &Logger{Logger: slog.New(slog.NewTextHandler(out, opts))}
	}
	return &Logger{Logger: slog.New(slog.NewJSONHandler(out, opts))}
}

// NewDefault returns an info-level JSON logger on stdout.
func NewDefault() *Logger {
	return New(Config{Level: "info", Format: "json"})
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

// redactedKeys are matched as substrings of the lowercased attribute key.
// Audit reasons and role names are logged as is.
var redactedKeys = []string{
	"password", "secret", "token", "authorization", "bearer",
	"api_key", "apikey", "private_key", "cookie", "session",
	"dsn", "database_url", "redis_url", "access_key", "credential",
	"email", "phone",
}

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, k := range redactedKeys {
		if strings.Contains(key, k) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a Logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// SetDefault installs l as the slog default.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

// ContextKey types the context values WithContext reads. The HTTP
// middleware stores the request id and authenticated actor under them.
type ContextKey string

const (
	ContextKeyRequestID ContextKey = "request_id"
	ContextKeyUserID    ContextKey = "user_id"
)

// WithContext adds request_id, user_id and trace_id when ctx carries them.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var attrs []any
	if id, _ := ctx.Value(ContextKeyRequestID).(string); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if id, _ := ctx.Value(ContextKeyUserID).(string); id != "" {
		attrs = append(attrs, slog.String("user_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs, slog.String("trace_id", sc.TraceID().String()))
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
