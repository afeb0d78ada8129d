package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/openlearn/admin-api/pkg/logger"
)

// RequestIDKey is the context key shared with the logger package.
const RequestIDKey = logger.ContextKeyRequestID

const maxRequestIDLength = 128

// RequestID propagates X-Request-ID or assigns a new one. Incoming ids that
// are too long or carry non-printable bytes are replaced, since they end up
// in logs and audit entries.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if !validRequestID(id) {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), RequestIDKey, id)))
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// GetRequestID extracts the request ID from context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
