package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/openlearn/admin-api/pkg/apierror"
	"github.com/openlearn/admin-api/pkg/logger"
)

// Recovery turns a handler panic into a 500. Stack traces are logged
// outside production only.
func Recovery(log *logger.Logger, production bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				requestID := GetRequestID(r.Context())
				attrs := []any{"panic", rec, "request_id", requestID, "path", r.URL.Path}
				if !production {
					attrs = append(attrs, "stack", string(debug.Stack()))
				}
				log.Error("panic recovered", attrs...)

				apierror.InternalError(fmt.Errorf("panic: %v", rec)).WriteJSONWithRequestID(w, requestID)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
