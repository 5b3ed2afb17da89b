// Package middleware provides the HTTP middleware chain for the server:
// request correlation, panic recovery, CORS, request logging, and an
// optional request throttle.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/pagelens/pagelens/internal/errors"
)

// requestIDHeader is the inbound/outbound correlation header.
const requestIDHeader = "X-Request-ID"

// RequestID attaches a correlation id to every request. An inbound
// X-Request-ID is honored; otherwise a new UUID is generated. The id is
// echoed on the response and stored in the request context for error
// envelopes and logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(apperrors.WithRequestID(r.Context(), id)))
	})
}
