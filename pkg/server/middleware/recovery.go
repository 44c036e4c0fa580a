package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/aegis/pkg/server/types"
)

// Recovery turns a handler panic into a 500 with the standard error body
// and logs the stack. http.ErrAbortHandler is re-raised so the server can
// abort the connection as it intends.
func Recovery(next http.Handler) http.Handler {
	logger := slog.Default().With("component", "http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			logger.ErrorContext(r.Context(), "panic in handler",
				"error", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)

			types.NewServerError("An internal error occurred. Please try again later.", "").
				WithRequestID(GetRequestID(r.Context())).
				Write(w)
		}()

		next.ServeHTTP(w, r)
	})
}
