package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mercator-hq/aegis/pkg/knowledge"
	"mercator-hq/aegis/pkg/session"
)

// MinSecretLength is the minimum HS256 secret size in bytes.
const MinSecretLength = 32

// DefaultIssuer is used when Config.Issuer is empty.
const DefaultIssuer = "aegis"

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// Config configures token signing.
type Config struct {
	Secret string
	Issuer string
	// TTL is the token lifetime. Defaults to the session lifetime.
	TTL time.Duration
}

// Claims are the JWT claims issued by TokenManager.
type Claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	SessionID string `json:"session_id,omitempty"`
}

// TokenManager handles token generation and validation.
type TokenManager struct {
	secret   []byte
	issuer   string
	ttl      time.Duration
	sessions session.Store
	pack     knowledge.Provider
	logger   *slog.Logger
	now      func() time.Time
}

// NewTokenManager creates a token manager. sessions may be nil, in which
// case tokens are not bound to sessions.
func NewTokenManager(cfg Config, sessions session.Store, pack knowledge.Provider) (*TokenManager, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &TokenManager{
		secret:   []byte(cfg.Secret),
		issuer:   issuer,
		ttl:      ttl,
		sessions: sessions,
		pack:     pack,
		logger:   slog.Default().With("component", "identity"),
		now:      time.Now,
	}, nil
}

// Issue opens a session for the user and returns a signed token bound to it.
func (tm *TokenManager) Issue(ctx context.Context, userID, role string) (string, *session.Session, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("user id is required")
	}
	role = tm.resolveRole(role)

	var sess *session.Session
	if tm.sessions != nil {
		var err error
		if sess, err = tm.sessions.Create(ctx, userID, role); err != nil {
			return "", nil, fmt.Errorf("failed to create session: %w", err)
		}
	}

	token, err := tm.Sign(userID, role, sess)
	if err != nil {
		return "", nil, err
	}
	tm.logger.Info("Token issued", "user_id", userID, "role", role)
	return token, sess, nil
}

// Sign creates a token without opening a session. The token expires with
// the session when one is given.
func (tm *TokenManager) Sign(userID, role string, sess *session.Session) (string, error) {
	now := tm.now().UTC()
	expires := now.Add(tm.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Role: role,
	}
	if sess != nil {
		claims.ID = sess.ID
		claims.SessionID = sess.ID
		if sess.ExpiresAt.Before(expires) {
			claims.ExpiresAt = jwt.NewNumericDate(sess.ExpiresAt)
		}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token and returns its principal. Every failure is
// reported as ErrInvalidToken; the cause is logged.
func (tm *TokenManager) Verify(ctx context.Context, tokenString string) (*Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return tm.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil || !token.Valid {
		tm.logger.Warn("Token rejected", "error", err)
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		tm.logger.Warn("Token rejected", "error", "missing subject")
		return nil, ErrInvalidToken
	}

	if tm.sessions != nil {
		if _, err := session.Verify(ctx, tm.sessions, claims.SessionID, claims.Subject); err != nil {
			tm.logger.Warn("Token rejected", "user_id", claims.Subject, "error", err)
			return nil, ErrInvalidToken
		}
	}

	return tm.principal(claims.Subject, claims.Role, claims.SessionID), nil
}

// Logout revokes the session behind a principal.
func (tm *TokenManager) Logout(ctx context.Context, sessionID string) error {
	if tm.sessions == nil {
		return session.ErrNotFound
	}
	return tm.sessions.Revoke(ctx, sessionID)
}

func (tm *TokenManager) principal(userID, role, sessionID string) *Principal {
	role = tm.resolveRole(role)
	p := &Principal{
		UserID:      userID,
		Role:        role,
		SessionID:   sessionID,
		Permissions: []string{},
		AuditAccess: AuditAccessNone,
	}
	if pack := tm.current(); pack != nil {
		if r, ok := pack.Policy.Roles[role]; ok {
			p.Permissions = append(p.Permissions, r.Permissions...)
			if r.AuditAccess != "" {
				p.AuditAccess = r.AuditAccess
			}
		}
	}
	return p
}

// resolveRole maps unknown roles to the pack's default role.
func (tm *TokenManager) resolveRole(role string) string {
	pack := tm.current()
	if pack == nil {
		return role
	}
	if _, ok := pack.Policy.Roles[role]; ok {
		return role
	}
	return pack.Policy.DefaultRole
}

func (tm *TokenManager) current() *knowledge.Pack {
	if tm.pack == nil {
		return nil
	}
	return tm.pack.Current()
}
