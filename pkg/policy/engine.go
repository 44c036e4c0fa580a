package policy

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/knowledge"
)

// StageName identifies the policy engine in audit trails.
const StageName = "policy_enforcement"

// Family names with special selection rules.
const (
	FamilyDataPrivacy = "data_privacy"
	FamilyRegulatory  = "regulatory"
)

// Context modification directives.
const (
	DirectiveOwnData        = "restrict_to_own_data"
	DirectiveDepartmentData = "restrict_to_department_data"
	DirectivePublicData     = "restrict_to_public_data"
	DirectiveAuditLogging   = "audit_logging_enabled"
	DirectiveEncryption     = "encryption_enabled"
	DirectiveMFA            = "mfa_enforced"
	DirectiveHumanReview    = "human_review_required"
)

// AdminRole is the only role that may carry override rights.
const AdminRole = "admin"

// DefaultFallback is used when no pack is available at all.
var DefaultFallback = governance.EnforcementRules{
	DataAccess:            "public",
	AuditRequired:         true,
	MFARequired:           true,
	EncryptionRequired:    true,
	SessionTimeoutSeconds: 900,
	OverrideAllowed:       false,
}

// Engine evaluates policy decisions. It is safe for concurrent use.
type Engine struct {
	pack   knowledge.Provider
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used when a request carries no
// timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates a policy engine over the given pack provider.
func New(pack knowledge.Provider, opts ...Option) *Engine {
	e := &Engine{
		pack:   pack,
		now:    time.Now,
		logger: slog.Default().With("component", "policy"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate derives the policy decision for a request.
func (e *Engine) Evaluate(ctx context.Context, req *governance.Request) (decision governance.PolicyDecision) {
	var pack *knowledge.Pack
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Policy evaluation panicked, using restrictive default", "request_id", req.ID, "panic", r)
			decision = Fallback(pack, req.Role)
		}
	}()

	pack = e.pack.Current()
	d, err := e.evaluate(ctx, pack, req)
	if err != nil {
		e.logger.Warn("Policy evaluation failed, using restrictive default",
			"request_id", req.ID,
			"error", err,
		)
		return Fallback(pack, req.Role)
	}

	e.logger.Debug("Policy evaluated",
		"request_id", req.ID,
		"role", d.Role,
		"families", d.Families,
		"windows", d.ActiveWindows,
	)
	return d
}

func (e *Engine) evaluate(ctx context.Context, pack *knowledge.Pack, req *governance.Request) (governance.PolicyDecision, error) {
	if err := ctx.Err(); err != nil {
		return governance.PolicyDecision{}, err
	}
	if pack == nil {
		return governance.PolicyDecision{}, fmt.Errorf("no knowledge pack loaded")
	}
	tables := &pack.Policy

	roleName, role, err := resolveRole(tables, req.Role)
	if err != nil {
		return governance.PolicyDecision{}, err
	}

	d := governance.PolicyDecision{
		Role:        roleName,
		Permissions: append([]string(nil), role.Permissions...),
		AuditAccess: role.AuditAccess,
		Frameworks:  []string{},
		Controls:    map[string]string{},
	}
	d.Rules = governance.EnforcementRules{
		DataAccess:            role.DataAccess,
		AuditRequired:         role.AuditAccess != "" && role.AuditAccess != "none",
		MFARequired:           role.MFARequired,
		SessionTimeoutSeconds: role.SessionTimeout,
		OverrideAllowed:       role.OverrideAllowed && roleName == AdminRole,
	}

	humanReview := false
	ranks := controlRanks(tables.ControlLevels)

	for _, name := range applicableFamilies(tables, req) {
		fam, ok := tables.Families[name]
		if !ok {
			// Regulatory frameworks without a family entry still apply.
			if name != FamilyRegulatory {
				return governance.PolicyDecision{}, fmt.Errorf("family %q is not defined", name)
			}
		}
		d.Families = append(d.Families, name)
		d.Frameworks = appendUnique(d.Frameworks, fam.Frameworks...)
		mergeControls(d.Controls, fam.Controls, ranks)
		humanReview = tighten(&d.Rules, fam.Rules) || humanReview
	}
	d.Frameworks = appendUnique(d.Frameworks, regulatoryFrameworks(tables, req)...)

	at := req.Timestamp
	if at.IsZero() {
		at = e.now()
	}
	windows, err := pack.Windows().Active(at)
	if err != nil {
		return governance.PolicyDecision{}, err
	}
	for _, w := range windows {
		d.ActiveWindows = append(d.ActiveWindows, w.Name)
		mergeControls(d.Controls, w.Controls, ranks)
		humanReview = tighten(&d.Rules, w.Rules) || humanReview
	}

	d.Directives = Directives(d.Rules, humanReview)
	return d, nil
}

// Fallback returns the maximally restrictive decision.
func Fallback(pack *knowledge.Pack, requestedRole string) governance.PolicyDecision {
	rules := DefaultFallback
	families := []string{"security", "ethical_ai"}
	if pack != nil {
		rules = pack.Policy.Fallback
		if len(pack.Policy.AlwaysFamilies) > 0 {
			families = append([]string(nil), pack.Policy.AlwaysFamilies...)
		}
	}
	rules.OverrideAllowed = false

	role := strings.ToLower(strings.TrimSpace(requestedRole))
	if role == "" {
		role = "unknown"
	}
	return governance.PolicyDecision{
		Role:        role,
		Permissions: []string{},
		AuditAccess: "none",
		Families:    families,
		Frameworks:  []string{},
		Rules:       rules,
		Directives:  Directives(rules, true),
		Fallback:    true,
	}
}

// Directives lists the context modifications implied by rules.
func Directives(rules governance.EnforcementRules, humanReview bool) []string {
	var out []string
	switch rules.DataAccess {
	case "own":
		out = append(out, DirectiveOwnData)
	case "department":
		out = append(out, DirectiveDepartmentData)
	case "public", "":
		out = append(out, DirectivePublicData)
	}
	if rules.AuditRequired {
		out = append(out, DirectiveAuditLogging)
	}
	if rules.EncryptionRequired {
		out = append(out, DirectiveEncryption)
	}
	if rules.MFARequired {
		out = append(out, DirectiveMFA)
	}
	if humanReview {
		out = append(out, DirectiveHumanReview)
	}
	return out
}

func resolveRole(t *knowledge.PolicyTables, requested string) (string, knowledge.Role, error) {
	name := strings.ToLower(strings.TrimSpace(requested))
	if r, ok := t.Roles[name]; ok {
		return name, r, nil
	}
	r, ok := t.Roles[t.DefaultRole]
	if !ok {
		return "", knowledge.Role{}, fmt.Errorf("default role %q is not defined", t.DefaultRole)
	}
	return t.DefaultRole, r, nil
}

func applicableFamilies(t *knowledge.PolicyTables, req *governance.Request) []string {
	families := append([]string(nil), t.AlwaysFamilies...)

	dataType := req.ContextString("data_type")
	if slices.Contains(t.SensitiveDataTypes, dataType) ||
		req.ContextBool("sensitive") || req.ContextBool("sensitive_data") || req.ContextBool("contains_pii") {
		families = appendUnique(families, FamilyDataPrivacy)
	}
	if len(regulatoryFrameworks(t, req)) > 0 {
		families = appendUnique(families, FamilyRegulatory)
	}
	return families
}

func regulatoryFrameworks(t *knowledge.PolicyTables, req *governance.Request) []string {
	var out []string
	if fws, ok := t.Industries[req.ContextString("industry")]; ok {
		out = appendUnique(out, fws...)
	}
	flags := make([]string, 0, len(t.Flags))
	for flag := range t.Flags {
		flags = append(flags, flag)
	}
	slices.Sort(flags)
	for _, flag := range flags {
		if req.ContextBool(flag) {
			out = appendUnique(out, t.Flags[flag]...)
		}
	}
	return out
}

// tighten applies m to rules without ever loosening them. It reports whether
// m requires human review.
func tighten(rules *governance.EnforcementRules, m knowledge.RuleTightening) bool {
	rules.AuditRequired = rules.AuditRequired || m.AuditRequired
	rules.MFARequired = rules.MFARequired || m.MFARequired
	rules.EncryptionRequired = rules.EncryptionRequired || m.EncryptionRequired
	if m.SessionTimeout > 0 && (rules.SessionTimeoutSeconds <= 0 || m.SessionTimeout < rules.SessionTimeoutSeconds) {
		rules.SessionTimeoutSeconds = m.SessionTimeout
	}
	return m.HumanReview
}

func controlRanks(levels []string) map[string]int {
	ranks := make(map[string]int, len(levels))
	for i, l := range levels {
		ranks[l] = i
	}
	return ranks
}

// mergeControls keeps the strongest label per control. Unknown labels rank
// below every known one.
func mergeControls(dst, src map[string]string, ranks map[string]int) {
	for k, v := range src {
		cur, ok := dst[k]
		if !ok || rank(ranks, v) > rank(ranks, cur) {
			dst[k] = v
		}
	}
}

func rank(ranks map[string]int, label string) int {
	if r, ok := ranks[label]; ok {
		return r
	}
	return -1
}

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		if !slices.Contains(dst, it) {
			dst = append(dst, it)
		}
	}
	return dst
}
