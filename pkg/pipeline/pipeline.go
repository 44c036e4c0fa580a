package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/aegis/pkg/advisory"
	"mercator-hq/aegis/pkg/auditing"
	"mercator-hq/aegis/pkg/evidence/recorder"
	"mercator-hq/aegis/pkg/generation"
	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/policy"
	"mercator-hq/aegis/pkg/review"
	"mercator-hq/aegis/pkg/screening"
	"mercator-hq/aegis/pkg/telemetry/tracing"
)

// Defaults applied by New.
const (
	DefaultGenerationTimeout = 30 * time.Second
	DefaultMaxPromptLength   = 32000
)

// Config controls request validation and the generation call.
type Config struct {
	// GenerationTimeout bounds a single generator call.
	GenerationTimeout time.Duration

	// MaxPromptLength is the longest accepted prompt, in characters.
	MaxPromptLength int
}

// Stages bundles the collaborators of a pipeline.
type Stages struct {
	Screener  *screening.Screener
	Policy    *policy.Engine
	Generator generation.Generator
	Auditor   *auditing.Auditor
	Composer  *advisory.Composer
	Recorder  Recorder
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithReview routes review flags to e.
func WithReview(e review.Emitter) Option {
	return func(p *Pipeline) { p.review = e }
}

// WithObserver reports stage measurements to o.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithTracer wraps every run and stage in a span.
func WithTracer(t Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline runs the governance stages over one request at a time. It holds
// no per-request state and is safe for concurrent use.
type Pipeline struct {
	stages   Stages
	config   Config
	review   review.Emitter
	observer Observer
	tracer   Tracer
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a pipeline. Every field of stages is required.
func New(stages Stages, cfg Config, opts ...Option) *Pipeline {
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	if cfg.MaxPromptLength <= 0 {
		cfg.MaxPromptLength = DefaultMaxPromptLength
	}

	p := &Pipeline{
		stages:   stages,
		config:   cfg,
		review:   review.NewLogEmitter(),
		observer: nopObserver{},
		tracer:   noop.NewTracerProvider().Tracer("aegis"),
		now:      time.Now,
		logger:   slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate checks a request before it reaches scoring.
func (p *Pipeline) Validate(req *governance.Request) error {
	if req == nil {
		return governance.NewValidationError("", "request is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return governance.NewValidationError("prompt", "prompt is required")
	}
	if !utf8.ValidString(req.Prompt) {
		return governance.NewValidationError("prompt", "prompt must be valid UTF-8")
	}
	if utf8.RuneCountInString(req.Prompt) > p.config.MaxPromptLength {
		return governance.NewValidationError("prompt", "prompt exceeds the maximum length")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return governance.NewValidationError("user_id", "user_id is required")
	}
	return nil
}

// Process runs the full governance flow. The only error it returns is a
// *governance.ValidationError; every other failure resolves to the stage's
// fail-closed default inside the response.
func (p *Pipeline) Process(ctx context.Context, in governance.Request) (*Response, error) {
	if err := p.Validate(&in); err != nil {
		return nil, err
	}

	start := p.now()
	req := in
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = start.UTC()
	}

	ctx, span := p.tracer.Start(ctx, "governance.process")
	defer span.End()
	tracing.SetRequestAttributes(span, req.ID, req.SessionID, req.Role)

	resp := &Response{
		RequestID: req.ID,
		SessionID: req.SessionID,
	}

	var risk governance.RiskAssessment
	p.stage(ctx, resp, screening.StageName, func(ctx context.Context) (string, any) {
		risk = p.stages.Screener.Screen(ctx, &req)
		return string(risk.Action), risk
	})
	resp.RiskAssessment = risk
	tracing.SetRiskAttributes(span, risk.Score, string(risk.Level), string(risk.Action))

	if flag := screening.Escalate(&req, risk, p.now()); flag != nil {
		p.emit(ctx, resp, *flag)
	}

	if risk.Action == governance.ActionBlock {
		p.block(ctx, &req, resp, start)
		tracing.SetOutcomeAttributes(span, string(resp.ComplianceStatus), true, resp.Summary.ID)
		return resp, nil
	}

	var decision governance.PolicyDecision
	p.stage(ctx, resp, policy.StageName, func(ctx context.Context) (string, any) {
		decision = p.stages.Policy.Evaluate(ctx, &req)
		if decision.Fallback {
			return "fallback", decision
		}
		return "applied", decision
	})
	resp.Policy = &decision

	var text string
	p.stage(ctx, resp, GenerationStage, func(ctx context.Context) (string, any) {
		var ok bool
		text, ok = p.generate(ctx, &req, decision)
		if !ok {
			return "failed", map[string]any{"error": "response generation failed"}
		}
		return "generated", map[string]any{"response_length": len(text)}
	})
	resp.ResponseText = text

	var audit governance.AuditResult
	p.stage(ctx, resp, auditing.StageName, func(ctx context.Context) (string, any) {
		audit = p.stages.Auditor.Audit(ctx, &req, text)
		return string(audit.Status), audit
	})
	resp.Audit = &audit
	resp.ComplianceStatus = audit.Status
	if audit.Review != nil {
		p.emit(ctx, resp, *audit.Review)
	}

	var guidance governance.AdvisoryGuidance
	p.stage(ctx, resp, advisory.StageName, func(ctx context.Context) (string, any) {
		guidance = p.stages.Composer.Compose(advisory.Input{
			Prompt:   req.Prompt,
			Response: text,
			Risk:     risk,
			Audit:    audit,
		})
		return guidance.GuidanceType, guidance
	})
	resp.Advisory = &guidance
	resp.Recommendations = guidance.Recommendations

	p.record(ctx, resp, recorder.Entry{
		Request:  req,
		Risk:     risk,
		Policy:   &decision,
		Audit:    &audit,
		Advisory: &guidance,
		Response: text,
		Duration: p.now().Sub(start),
	})

	resp.Duration = p.now().Sub(start)
	p.observer.ObserveDecision(resp)
	tracing.SetFrameworks(span, resp.Summary.Frameworks)
	tracing.SetOutcomeAttributes(span, string(resp.ComplianceStatus), false, resp.Summary.ID)

	p.logger.Info("Governance request processed",
		"request_id", req.ID,
		"session_id", req.SessionID,
		"risk_level", risk.Level,
		"compliance_status", resp.ComplianceStatus,
		"audit_id", resp.Summary.ID,
		"duration_ms", resp.Duration.Milliseconds(),
	)
	return resp, nil
}

func (p *Pipeline) block(ctx context.Context, req *governance.Request, resp *Response, start time.Time) {
	resp.Blocked = true
	resp.Violation = governance.NewPolicyViolation(&resp.RiskAssessment)
	resp.ResponseText = BlockedResponse
	resp.ComplianceStatus = governance.StatusBlocked
	resp.Recommendations = []string{BlockedRecommendation}

	p.record(ctx, resp, recorder.Entry{
		Request:  *req,
		Risk:     resp.RiskAssessment,
		Blocked:  true,
		Duration: p.now().Sub(start),
	})

	resp.Duration = p.now().Sub(start)
	p.observer.ObserveDecision(resp)

	p.logger.Warn("Governance request blocked",
		"request_id", req.ID,
		"session_id", req.SessionID,
		"user_id", req.UserID,
		"risk_score", resp.RiskAssessment.Score,
		"audit_id", resp.Summary.ID,
	)
}

func (p *Pipeline) record(ctx context.Context, resp *Response, e recorder.Entry) {
	p.stage(ctx, resp, recorder.StageName, func(ctx context.Context) (string, any) {
		resp.Summary = p.stages.Recorder.Record(ctx, e)
		if !resp.Summary.Stored {
			return "failed", resp.Summary
		}
		return "stored", resp.Summary
	})
}

// generate calls the generator under the configured timeout. On any failure
// it returns the stock apology and false.
func (p *Pipeline) generate(ctx context.Context, req *governance.Request, decision governance.PolicyDecision) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, p.config.GenerationTimeout)
	defer cancel()

	text, err := p.stages.Generator.Generate(ctx, req.Prompt, generationContext(req, decision))
	if err != nil {
		err = governance.NewExternalServiceError("generator", "generate", err)
		p.logger.Error("Generation failed, returning apology",
			"request_id", req.ID,
			"timeout", governance.IsTimeout(err),
			"error", err,
		)
		return generation.Apology, false
	}
	if strings.TrimSpace(text) == "" {
		p.logger.Warn("Generator returned an empty response, returning apology", "request_id", req.ID)
		return generation.Apology, false
	}
	return text, true
}

// generationContext merges the caller's context with the policy directives
// the model has to honour.
func generationContext(req *governance.Request, decision governance.PolicyDecision) map[string]any {
	c := make(map[string]any, len(req.Context)+3)
	for k, v := range req.Context {
		c[k] = v
	}
	c["role"] = decision.Role
	if len(decision.Directives) > 0 {
		c["governance_directives"] = decision.Directives
	}
	if len(decision.Frameworks) > 0 {
		c["compliance_frameworks"] = decision.Frameworks
	}
	return c
}

func (p *Pipeline) emit(ctx context.Context, resp *Response, flag governance.ReviewFlag) {
	resp.ReviewFlags = append(resp.ReviewFlags, flag)
	if err := p.review.Emit(ctx, flag); err != nil {
		p.logger.Error("Failed to emit review flag",
			"request_id", flag.RequestID,
			"flag_id", flag.ID,
			"stage", flag.Stage,
			"error", err,
		)
	}
}

// stage runs fn inside a span, times it and appends the result to the audit
// trail.
func (p *Pipeline) stage(ctx context.Context, resp *Response, name string, fn func(ctx context.Context) (string, any)) {
	ctx, span := p.tracer.Start(ctx, "governance."+name, tracing.StageAttributes(name))
	defer span.End()

	began := p.now()
	outcome, detail := fn(ctx)
	elapsed := p.now().Sub(began)

	span.SetAttributes(attribute.String(tracing.AttrStageOutcome, outcome))
	if outcome == "failed" || outcome == "fallback" {
		span.SetStatus(codes.Error, outcome)
	}

	resp.AuditTrail = append(resp.AuditTrail, governance.StageResult{
		Stage:      name,
		Outcome:    outcome,
		DurationMs: elapsed.Milliseconds(),
		Detail:     detail,
	})
	p.observer.ObserveStage(name, outcome, elapsed)
}
