package middleware

import (
	"net/http"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// CORS applies the allowed-origins policy. Origins are matched against
// the configured patterns with glob semantics, so entries like
// "https://*.example.com" work. A single "*" (or an empty list) allows
// any origin. Credentials are never allowed.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	patterns := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			patterns = append(patterns, o)
		}
	}
	allowAny := len(patterns) == 0
	for _, p := range patterns {
		if p == "*" {
			allowAny = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAny || matchOrigin(patterns, origin)) {
				allowed := origin
				if allowAny {
					allowed = "*"
				}
				w.Header().Set("Access-Control-Allow-Origin", allowed)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "*")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matchOrigin(patterns []string, origin string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, origin); err == nil && ok {
			return true
		}
	}
	return false
}
