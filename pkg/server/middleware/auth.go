package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"mercator-hq/aegis/pkg/identity"
	"mercator-hq/aegis/pkg/server/types"
	"mercator-hq/aegis/pkg/telemetry/logging"
)

// TokenVerifier resolves a bearer token to a principal.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*identity.Principal, error)
}

// Authenticate requires a valid bearer token on every path except the
// public ones. The verified principal is stored with identity.WithPrincipal
// and its user and session ids are added to the logging context.
//
// A nil verifier disables authentication; handlers then fall back to the
// user id in the request body.
func Authenticate(verifier TokenVerifier, public ...string) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "auth")
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(public, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				types.NewAuthenticationError("missing bearer token").
					WithRequestID(GetRequestID(r.Context())).
					Write(w)
				return
			}

			principal, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.WarnContext(r.Context(), "token rejected", "path", r.URL.Path, "error", err)
				types.NewAuthenticationError("invalid or expired token").
					WithRequestID(GetRequestID(r.Context())).
					Write(w)
				return
			}

			ctx := identity.WithPrincipal(r.Context(), principal)
			ctx = logging.WithUserID(ctx, principal.UserID)
			if principal.SessionID != "" {
				ctx = logging.WithSessionID(ctx, principal.SessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
