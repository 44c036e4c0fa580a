package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds the request context. It does not write a response itself:
// the governance stages resolve an expired context to their fail-closed
// defaults, and handlers map a deadline error from storage to 504.
// A non-positive timeout disables the middleware.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
