package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for governance spans. Prompt and response text are never
// attached to spans.
const (
	AttrRequestID        = "aegis.request_id"
	AttrSessionID        = "aegis.session_id"
	AttrRole             = "aegis.role"
	AttrRiskScore        = "aegis.risk_score"
	AttrRiskLevel        = "aegis.risk_level"
	AttrRiskAction       = "aegis.risk_action"
	AttrComplianceStatus = "aegis.compliance_status"
	AttrBlocked          = "aegis.blocked"
	AttrStage            = "aegis.stage"
	AttrStageOutcome     = "aegis.stage.outcome"
	AttrFrameworks       = "aegis.policy.frameworks"
	AttrAuditID          = "aegis.audit_id"

	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"
)

// SetRequestAttributes tags span with the request identity.
func SetRequestAttributes(span trace.Span, requestID, sessionID, role string) {
	span.SetAttributes(
		attribute.String(AttrRequestID, requestID),
		attribute.String(AttrSessionID, sessionID),
		attribute.String(AttrRole, role),
	)
}

// SetRiskAttributes tags span with the screener's verdict.
func SetRiskAttributes(span trace.Span, score float64, level, action string) {
	span.SetAttributes(
		attribute.Float64(AttrRiskScore, score),
		attribute.String(AttrRiskLevel, level),
		attribute.String(AttrRiskAction, action),
	)
}

// SetOutcomeAttributes tags span with the run's final outcome.
func SetOutcomeAttributes(span trace.Span, status string, blocked bool, auditID string) {
	span.SetAttributes(
		attribute.String(AttrComplianceStatus, status),
		attribute.Bool(AttrBlocked, blocked),
		attribute.String(AttrAuditID, auditID),
	)
}

// SetFrameworks tags span with the applied compliance frameworks.
func SetFrameworks(span trace.Span, frameworks []string) {
	if len(frameworks) == 0 {
		return
	}
	span.SetAttributes(attribute.StringSlice(AttrFrameworks, frameworks))
}

// StageAttributes returns the start attributes of a stage span.
func StageAttributes(stage string) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String(AttrStage, stage))
}
