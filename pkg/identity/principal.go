package identity

import (
	"context"
	"slices"
)

// Audit access levels from the role table.
const (
	AuditAccessFull    = "full"
	AuditAccessLimited = "limited"
	AuditAccessOwn     = "own"
	AuditAccessNone    = "none"
)

// Principal is an authenticated caller.
type Principal struct {
	UserID      string   `json:"user_id"`
	Role        string   `json:"role"`
	SessionID   string   `json:"session_id,omitempty"`
	Permissions []string `json:"permissions"`
	AuditAccess string   `json:"audit_access"`
}

// Has reports whether the principal holds permission p.
func (p *Principal) Has(permission string) bool {
	return p != nil && slices.Contains(p.Permissions, permission)
}

// CanReadAuditOf reports whether the principal may read audit records that
// belong to owner.
func (p *Principal) CanReadAuditOf(owner string) bool {
	if p == nil {
		return false
	}
	switch p.AuditAccess {
	case AuditAccessFull, AuditAccessLimited:
		return true
	case AuditAccessOwn:
		return owner == p.UserID
	}
	return false
}

// CanExport reports whether the principal may export audit records.
func (p *Principal) CanExport() bool {
	return p != nil && (p.AuditAccess == AuditAccessFull || p.AuditAccess == AuditAccessLimited)
}

// CanViewAnalytics reports whether the principal may read audit analytics.
func (p *Principal) CanViewAnalytics() bool {
	return p.Has("analyze") || p.Has("admin")
}

type contextKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal stored by the middleware.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok && p != nil
}
