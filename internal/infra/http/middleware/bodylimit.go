package middleware

import (
	"net/http"

	"github.com/openlearn/admin-api/pkg/apierror"
)

// DefaultMaxBodySize applies when BodyLimit is given a non-positive size.
const DefaultMaxBodySize = 1 << 20

// BodyLimit caps request bodies at maxBytes. Reads past the cap fail with
// *http.MaxBytesError, which handlers answer with BodyTooLarge.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BodyTooLarge writes the 413 response.
func BodyTooLarge(w http.ResponseWriter, r *http.Request) {
	apierror.New(http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", "Request body too large").
		WriteJSONWithRequestID(w, GetRequestID(r.Context()))
}
