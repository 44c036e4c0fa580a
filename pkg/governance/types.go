package governance

import (
	"strings"
	"time"
)

// RiskLevel classifies a risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Action is the screener's verdict for a request.
type Action string

const (
	ActionAllow         Action = "allow"
	ActionFlagForReview Action = "flag_for_review"
	ActionBlock         Action = "block"
)

// ComplianceStatus is the auditor's verdict for a generated response.
type ComplianceStatus string

const (
	StatusCompliant    ComplianceStatus = "compliant"
	StatusNeedsReview  ComplianceStatus = "needs_review"
	StatusNonCompliant ComplianceStatus = "non_compliant"
	// StatusBlocked is reported when the request never reached generation.
	StatusBlocked ComplianceStatus = "blocked"
)

// Priority of a review flag.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// ReviewStatusPending is the initial status of every review flag.
const ReviewStatusPending = "pending_review"

// Risk thresholds shared by the screener and the recorder.
const (
	HighRiskThreshold   = 0.8
	MediumRiskThreshold = 0.5
)

// Auditor status thresholds.
const (
	CompliantThreshold   = 0.8
	NeedsReviewThreshold = 0.6
)

// Request is a single inbound governance request. It is never modified after
// construction.
type Request struct {
	// ID correlates logs, traces and the audit record.
	ID string `json:"id"`

	Prompt    string `json:"prompt"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`

	// Role is the verified role delivered by the identity collaborator.
	Role string `json:"role,omitempty"`

	// Context carries free-form hints such as industry, data_type or
	// payment_processing.
	Context map[string]any `json:"context,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// ContextString returns a context value as a lower-cased string.
func (r *Request) ContextString(key string) string {
	if r == nil || r.Context == nil {
		return ""
	}
	switch v := r.Context[key].(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case []byte:
		return strings.ToLower(strings.TrimSpace(string(v)))
	}
	return ""
}

// ContextBool reports whether a context key holds a truthy value.
func (r *Request) ContextBool(key string) bool {
	if r == nil || r.Context == nil {
		return false
	}
	switch v := r.Context[key].(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "yes" || s == "1"
	case float64:
		return v != 0
	case int:
		return v != 0
	}
	return false
}

// CategoryMatch lists the terms matched in one risk category.
type CategoryMatch struct {
	Category string   `json:"category"`
	Terms    []string `json:"terms"`
	Score    float64  `json:"score"`
}

// ModerationResult is the outcome of a moderation classification.
type ModerationResult struct {
	Flagged    bool               `json:"flagged"`
	Categories map[string]float64 `json:"categories,omitempty"`
	Confidence float64            `json:"confidence"`
	// Source names the classifier that produced the result, or "fail_safe"
	// when the classifier failed and the result was forced to flagged.
	Source string `json:"source"`
}

// MaxCategoryScore returns the highest category score, or fallback when the
// result carries no categories.
func (m ModerationResult) MaxCategoryScore(fallback float64) float64 {
	if len(m.Categories) == 0 {
		return fallback
	}
	max := 0.0
	for _, v := range m.Categories {
		if v > max {
			max = v
		}
	}
	return max
}

// RiskAssessment is produced once by the screener and read-only downstream.
type RiskAssessment struct {
	Score            float64          `json:"risk_score"`
	Level            RiskLevel        `json:"risk_level"`
	Categories       []CategoryMatch  `json:"categories,omitempty"`
	PII              map[string]int   `json:"pii_detected,omitempty"`
	ComplianceIssues []string         `json:"compliance_issues,omitempty"`
	Factors          []string         `json:"risk_factors,omitempty"`
	Moderation       ModerationResult `json:"moderation_result"`
	Action           Action           `json:"action"`
	Confidence       float64          `json:"analysis_confidence"`
	Allowlisted      bool             `json:"allowlisted,omitempty"`
	PromptLength     int              `json:"prompt_length"`
	// Error is a stock description of an internal failure; never raw error text.
	Error string `json:"error,omitempty"`
}

// HasCategory reports whether the named category was triggered.
func (a *RiskAssessment) HasCategory(name string) bool {
	for _, c := range a.Categories {
		if c.Category == name {
			return true
		}
	}
	return false
}

// EnforcementRules are the concrete controls of a policy decision.
type EnforcementRules struct {
	DataAccess            string `json:"data_access" yaml:"data_access"`
	AuditRequired         bool   `json:"audit_required" yaml:"audit_required"`
	MFARequired           bool   `json:"mfa_required" yaml:"mfa_required"`
	EncryptionRequired    bool   `json:"encryption_required" yaml:"encryption_required"`
	SessionTimeoutSeconds int    `json:"session_timeout" yaml:"session_timeout"`
	OverrideAllowed       bool   `json:"override_allowed" yaml:"override_allowed"`
}

// PolicyDecision is created by the policy engine for each request.
type PolicyDecision struct {
	Role          string            `json:"role"`
	Permissions   []string          `json:"permissions"`
	AuditAccess   string            `json:"audit_access"`
	Families      []string          `json:"policy_families"`
	Frameworks    []string          `json:"frameworks"`
	ActiveWindows []string          `json:"active_windows,omitempty"`
	Controls      map[string]string `json:"controls,omitempty"`
	Rules         EnforcementRules  `json:"enforcement_rules"`
	Directives    []string          `json:"context_modifications"`
	// Fallback is true when the restrictive default was returned after an
	// internal error.
	Fallback bool `json:"fallback,omitempty"`
}

// ReviewFlag queues a request or response for human review.
type ReviewFlag struct {
	ID        string    `json:"id"`
	Stage     string    `json:"stage"`
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	Priority  Priority  `json:"priority"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// QualityScores holds the per-dimension quality breakdown.
type QualityScores struct {
	Accuracy     float64 `json:"accuracy"`
	Completeness float64 `json:"completeness"`
	Clarity      float64 `json:"clarity"`
	Objectivity  float64 `json:"objectivity"`
	Evidence     float64 `json:"evidence"`
}

// Mean returns the mean of all five dimensions.
func (q QualityScores) Mean() float64 {
	return (q.Accuracy + q.Completeness + q.Clarity + q.Objectivity + q.Evidence) / 5
}

// AuditResult is produced by the content auditor.
type AuditResult struct {
	QualityScore        float64          `json:"quality_score"`
	Quality             QualityScores    `json:"quality"`
	FairnessScore       float64          `json:"fairness_score"`
	BiasScore           float64          `json:"bias_score"`
	InclusivityScore    float64          `json:"inclusivity_score"`
	ComplianceScore     float64          `json:"compliance_score"`
	ComplianceIssues    []string         `json:"compliance_issues"`
	RequiredDisclaimers []string         `json:"required_disclaimers"`
	ModerationFlags     []string         `json:"moderation_flags"`
	ModerationRisk      RiskLevel        `json:"moderation_risk"`
	OverallScore        float64          `json:"overall_score"`
	Status              ComplianceStatus `json:"compliance_status"`
	Recommendations     []string         `json:"recommendations"`
	Confidence          float64          `json:"audit_confidence"`
	Review              *ReviewFlag      `json:"review_flag,omitempty"`
}

// EducationalContent is the knowledge material attached to guidance.
type EducationalContent struct {
	Topics        map[string]KnowledgeEntry `json:"topics,omitempty"`
	Frameworks    map[string]string         `json:"compliance_frameworks,omitempty"`
	BestPractices map[string][]string       `json:"best_practices,omitempty"`
	Resources     map[string]string         `json:"resources,omitempty"`
}

// KnowledgeEntry is a single advisory topic.
type KnowledgeEntry struct {
	Description  string   `json:"description" yaml:"description"`
	Examples     []string `json:"examples,omitempty" yaml:"examples"`
	Requirements []string `json:"requirements,omitempty" yaml:"requirements"`
	Alternatives []string `json:"alternatives,omitempty" yaml:"alternatives"`
}

// AdvisoryGuidance is produced by the advisory composer.
type AdvisoryGuidance struct {
	GuidanceType        string             `json:"guidance_type"`
	Domains             []string           `json:"domains,omitempty"`
	Recommendations     []string           `json:"recommendations"`
	RequiredDisclaimers []string           `json:"required_disclaimers"`
	Alternatives        []string           `json:"alternatives,omitempty"`
	Education           EducationalContent `json:"educational_content"`
}

// StageResult is one entry of the audit trail returned to callers.
type StageResult struct {
	Stage      string `json:"stage"`
	Outcome    string `json:"outcome"`
	DurationMs int64  `json:"duration_ms"`
	Detail     any    `json:"detail,omitempty"`
}

// Clamp bounds v to [0,1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// LevelForScore maps a risk score to its level.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score >= HighRiskThreshold:
		return RiskHigh
	case score >= MediumRiskThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ActionForLevel maps a risk level to the screener action.
func ActionForLevel(level RiskLevel) Action {
	switch level {
	case RiskHigh:
		return ActionBlock
	case RiskMedium:
		return ActionFlagForReview
	default:
		return ActionAllow
	}
}

// StatusForScore maps the auditor's overall score to a status.
func StatusForScore(score float64) ComplianceStatus {
	switch {
	case score >= CompliantThreshold:
		return StatusCompliant
	case score >= NeedsReviewThreshold:
		return StatusNeedsReview
	default:
		return StatusNonCompliant
	}
}
