package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/aegis/pkg/evidence"
	"mercator-hq/aegis/pkg/evidence/recorder"
	"mercator-hq/aegis/pkg/governance"
)

// GenerationStage identifies the model call in audit trails.
const GenerationStage = "generation"

// Stock texts returned for blocked requests.
const (
	BlockedResponse       = "Request blocked due to high-risk content"
	BlockedRecommendation = "Please review and modify your request"
)

// Response is the result of one governance run. It is safe to return to the
// caller as-is: no field carries raw internal error text.
type Response struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`

	ResponseText     string                      `json:"response_text"`
	RiskAssessment   governance.RiskAssessment   `json:"risk_assessment"`
	ComplianceStatus governance.ComplianceStatus `json:"compliance_status"`
	AuditTrail       []governance.StageResult    `json:"audit_trail"`
	Recommendations  []string                    `json:"recommendations"`

	// Stage artifacts; nil when the screener blocked the request.
	Policy   *governance.PolicyDecision   `json:"policy_decision,omitempty"`
	Audit    *governance.AuditResult      `json:"audit_result,omitempty"`
	Advisory *governance.AdvisoryGuidance `json:"advisory_guidance,omitempty"`

	// Summary is the recorder's output. A persistence failure shows up only
	// here, as an error-tagged id with Stored=false.
	Summary evidence.Summary `json:"audit"`

	Blocked     bool                        `json:"blocked"`
	ReviewFlags []governance.ReviewFlag     `json:"review_flags,omitempty"`
	Violation   *governance.PolicyViolation `json:"-"`

	Duration time.Duration `json:"-"`
}

// Recorder persists the outcome of a run.
type Recorder interface {
	Record(ctx context.Context, e recorder.Entry) evidence.Summary
}

// Observer receives per-stage and per-request measurements.
type Observer interface {
	ObserveStage(stage, outcome string, duration time.Duration)
	ObserveDecision(resp *Response)
}

// Tracer starts spans. Both an OpenTelemetry trace.Tracer and the
// telemetry tracing wrapper satisfy it.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, string, time.Duration) {}
func (nopObserver) ObserveDecision(*Response)                  {}
