package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	apperrors "github.com/pagelens/pagelens/internal/errors"
)

// Throttle applies a process-wide request rate limit. A non-positive
// rps disables the limiter entirely.
//
// This is coarse back-pressure for the expensive recognition endpoint:
// the inference gate already serializes engine work, the throttle just
// keeps the waiting line bounded.
func Throttle(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				apperrors.WriteError(w, http.StatusTooManyRequests, apperrors.ErrorBody{
					Code:      apperrors.CodeTooManyRequests,
					Message:   "请求过于频繁，请稍后重试。",
					RequestID: apperrors.RequestIDFromContext(r.Context()),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
