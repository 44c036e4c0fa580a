package pipeline

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/aegis/pkg/advisory"
	"mercator-hq/aegis/pkg/auditing"
	"mercator-hq/aegis/pkg/evidence"
	"mercator-hq/aegis/pkg/evidence/recorder"
	"mercator-hq/aegis/pkg/evidence/storage"
	"mercator-hq/aegis/pkg/generation"
	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/knowledge"
	"mercator-hq/aegis/pkg/moderation"
	"mercator-hq/aegis/pkg/policy"
	"mercator-hq/aegis/pkg/screening"
)

const blockedPrompt = "hack exploit malware phishing backdoor ddos kill bomb weapon terrorism fraud " +
	"money laundering 123-45-6789 111-22-3333 a@b.io personal data medical health"

type captureEmitter struct {
	mu    sync.Mutex
	flags []governance.ReviewFlag
	err   error
}

func (c *captureEmitter) Emit(_ context.Context, f governance.ReviewFlag) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags = append(c.flags, f)
	return c.err
}

type countingObserver struct {
	stages    []string
	decisions int
}

func (o *countingObserver) ObserveStage(stage, _ string, _ time.Duration) {
	o.stages = append(o.stages, stage)
}

func (o *countingObserver) ObserveDecision(*Response) { o.decisions++ }

type failingStorage struct {
	evidence.Storage
}

func (failingStorage) Store(context.Context, *evidence.AuditRecord) error {
	return errors.New("connection refused")
}

func newPipeline(t *testing.T, store evidence.Storage, gen generation.Generator, opts ...Option) *Pipeline {
	t.Helper()
	pack := knowledge.NewStaticStore(knowledge.Default())
	classifier := moderation.NewKeywordClassifier(nil)

	rec := recorder.New(store, pack, &recorder.Config{Async: false})
	t.Cleanup(func() { rec.Close() })

	if gen == nil {
		gen = generation.NewStaticGenerator("Here is some general information about your question.", nil)
	}
	return New(Stages{
		Screener:  screening.New(pack, classifier),
		Policy:    policy.New(pack),
		Generator: gen,
		Auditor:   auditing.New(pack, classifier),
		Composer:  advisory.New(pack),
		Recorder:  rec,
	}, Config{GenerationTimeout: time.Second}, opts...)
}

func stageNames(trail []governance.StageResult) []string {
	names := make([]string, len(trail))
	for i, s := range trail {
		names[i] = s.Stage
	}
	return names
}

func TestProcess_Validation(t *testing.T) {
	p := newPipeline(t, storage.NewMemoryStorage(), nil)

	tests := []struct {
		name      string
		req       governance.Request
		wantField string
	}{
		{"empty prompt", governance.Request{UserID: "u1"}, "prompt"},
		{"blank prompt", governance.Request{Prompt: "   ", UserID: "u1"}, "prompt"},
		{"missing user", governance.Request{Prompt: "hello"}, "user_id"},
		{"too long", governance.Request{Prompt: strings.Repeat("a", DefaultMaxPromptLength+1), UserID: "u1"}, "prompt"},
		{"invalid utf8", governance.Request{Prompt: "\xff\xfe", UserID: "u1"}, "prompt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := p.Process(context.Background(), tt.req)
			if resp != nil {
				t.Errorf("expected no response, got %+v", resp)
			}
			var verr *governance.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, verr.Field)
			}
		})
	}
}

func TestProcess_LowRiskRunsAllStages(t *testing.T) {
	store := storage.NewMemoryStorage()
	emitter := &captureEmitter{}
	observer := &countingObserver{}
	p := newPipeline(t, store, nil, WithReview(emitter), WithObserver(observer))

	resp, err := p.Process(context.Background(), governance.Request{
		Prompt: "What is the weather today?",
		UserID: "user-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		screening.StageName,
		policy.StageName,
		GenerationStage,
		auditing.StageName,
		advisory.StageName,
		recorder.StageName,
	}
	if got := stageNames(resp.AuditTrail); !slices.Equal(got, want) {
		t.Errorf("expected stages %v, got %v", want, got)
	}
	if !slices.Equal(observer.stages, want) || observer.decisions != 1 {
		t.Errorf("unexpected observations: %v (%d decisions)", observer.stages, observer.decisions)
	}

	if resp.RiskAssessment.Level != governance.RiskLow || resp.Blocked {
		t.Errorf("expected unblocked low risk, got %s blocked=%v", resp.RiskAssessment.Level, resp.Blocked)
	}
	if resp.ResponseText != "Here is some general information about your question." {
		t.Errorf("unexpected response text %q", resp.ResponseText)
	}
	if resp.Audit == nil || resp.ComplianceStatus != resp.Audit.Status {
		t.Errorf("expected compliance status from the audit, got %s", resp.ComplianceStatus)
	}
	if resp.Advisory == nil || !slices.Equal(resp.Recommendations, resp.Advisory.Recommendations) {
		t.Errorf("expected advisory recommendations, got %v", resp.Recommendations)
	}
	if resp.Policy == nil || !slices.Equal(resp.Policy.Families, []string{"security", "ethical_ai"}) {
		t.Errorf("expected only the security and ethical_ai families, got %+v", resp.Policy)
	}
	generic := knowledge.Default().Advisory.Generic
	if !slices.Equal(resp.Recommendations, generic) {
		t.Errorf("expected only generic recommendations %v, got %v", generic, resp.Recommendations)
	}
	if resp.Advisory != nil && (resp.Advisory.GuidanceType != advisory.GuidanceGeneral || len(resp.Advisory.Domains) != 0) {
		t.Errorf("expected general guidance without domains, got %s %v", resp.Advisory.GuidanceType, resp.Advisory.Domains)
	}
	if resp.RequestID == "" || resp.SessionID == "" {
		t.Errorf("expected generated ids, got %q/%q", resp.RequestID, resp.SessionID)
	}

	if !resp.Summary.Stored || !strings.HasPrefix(resp.Summary.ID, "audit_") {
		t.Errorf("expected stored audit summary, got %+v", resp.Summary)
	}
	records, err := store.QueryBySession(context.Background(), resp.SessionID)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(records) != 1 || records[0].RequestID != resp.RequestID {
		t.Fatalf("expected one record for the request, got %d", len(records))
	}

	for _, f := range emitter.flags {
		if f.Stage == screening.StageName {
			t.Errorf("low risk must not raise a screening flag: %+v", f)
		}
	}
}

func TestProcess_HighRiskIsBlockedAndRecorded(t *testing.T) {
	store := storage.NewMemoryStorage()
	emitter := &captureEmitter{}
	called := false
	gen := generation.GeneratorFunc(func(context.Context, string, map[string]any) (string, error) {
		called = true
		return "should not happen", nil
	})
	p := newPipeline(t, store, gen, WithReview(emitter))

	resp, err := p.Process(context.Background(), governance.Request{
		Prompt:    blockedPrompt,
		UserID:    "user-1",
		SessionID: "session-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if called {
		t.Error("generator must not run for blocked requests")
	}
	if !resp.Blocked || resp.ResponseText != BlockedResponse {
		t.Errorf("expected blocked response, got %q", resp.ResponseText)
	}
	if resp.ComplianceStatus != governance.StatusBlocked {
		t.Errorf("expected blocked status, got %s", resp.ComplianceStatus)
	}
	if !slices.Equal(resp.Recommendations, []string{BlockedRecommendation}) {
		t.Errorf("unexpected recommendations %v", resp.Recommendations)
	}
	if resp.Violation == nil || resp.Violation.Level != governance.RiskHigh {
		t.Errorf("expected high-risk violation, got %+v", resp.Violation)
	}
	if resp.Policy != nil || resp.Audit != nil || resp.Advisory != nil {
		t.Error("blocked response must not carry downstream artifacts")
	}

	want := []string{screening.StageName, recorder.StageName}
	if got := stageNames(resp.AuditTrail); !slices.Equal(got, want) {
		t.Errorf("expected stages %v, got %v", want, got)
	}

	if len(emitter.flags) != 1 || emitter.flags[0].Priority != governance.PriorityHigh {
		t.Fatalf("expected one high priority flag, got %+v", emitter.flags)
	}

	records, _ := store.QueryBySession(context.Background(), "session-1")
	if len(records) != 1 || !records[0].Blocked {
		t.Fatalf("expected one blocked record, got %+v", records)
	}
}

func TestProcess_MediumRiskRaisesReviewFlag(t *testing.T) {
	emitter := &captureEmitter{err: errors.New("queue unavailable")}
	p := newPipeline(t, storage.NewMemoryStorage(), nil, WithReview(emitter))

	resp, err := p.Process(context.Background(), governance.Request{
		Prompt: "How do I hack the HR system and pull the ssn 123-45-6789 of an employee?",
		UserID: "user-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.RiskAssessment.Level != governance.RiskMedium || resp.Blocked {
		t.Fatalf("expected unblocked medium risk, got %s", resp.RiskAssessment.Level)
	}
	if len(emitter.flags) == 0 || emitter.flags[0].Stage != screening.StageName {
		t.Fatalf("expected a screening flag first, got %+v", emitter.flags)
	}
	if emitter.flags[0].Priority != governance.PriorityMedium {
		t.Errorf("expected medium priority, got %s", emitter.flags[0].Priority)
	}
	if len(resp.ReviewFlags) != len(emitter.flags) {
		t.Errorf("response should list every emitted flag: %d vs %d", len(resp.ReviewFlags), len(emitter.flags))
	}
	if len(resp.AuditTrail) != 6 {
		t.Errorf("emitter failure must not stop the pipeline, got %d stages", len(resp.AuditTrail))
	}
}

func TestProcess_GeneratorFailureReturnsApology(t *testing.T) {
	tests := []struct {
		name string
		gen  generation.Generator
	}{
		{
			name: "error",
			gen: generation.GeneratorFunc(func(context.Context, string, map[string]any) (string, error) {
				return "", errors.New("upstream 503: secret-internal-detail")
			}),
		},
		{
			name: "timeout",
			gen: generation.GeneratorFunc(func(ctx context.Context, _ string, _ map[string]any) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			}),
		},
		{
			name: "empty",
			gen: generation.GeneratorFunc(func(context.Context, string, map[string]any) (string, error) {
				return "  ", nil
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, storage.NewMemoryStorage(), tt.gen)
			p.config.GenerationTimeout = 20 * time.Millisecond

			resp, err := p.Process(context.Background(), governance.Request{
				Prompt: "What is the weather today?",
				UserID: "user-1",
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.ResponseText != generation.Apology {
				t.Errorf("expected apology, got %q", resp.ResponseText)
			}
			gen := resp.AuditTrail[2]
			if gen.Stage != GenerationStage || gen.Outcome != "failed" {
				t.Errorf("expected failed generation stage, got %+v", gen)
			}
			if resp.Audit == nil || resp.Advisory == nil {
				t.Error("audit and advisory still run after a generation failure")
			}
		})
	}
}

func TestProcess_PersistenceFailureKeepsDecision(t *testing.T) {
	p := newPipeline(t, failingStorage{}, nil)

	resp, err := p.Process(context.Background(), governance.Request{
		Prompt: "What is the weather today?",
		UserID: "user-1",
	})
	if err != nil {
		t.Fatalf("persistence failure must not surface as an error: %v", err)
	}
	if resp.Summary.Stored || !strings.HasPrefix(resp.Summary.ID, "error_") {
		t.Errorf("expected error-tagged summary, got %+v", resp.Summary)
	}
	if resp.ComplianceStatus != resp.Audit.Status {
		t.Errorf("decision changed after persistence failure: %s", resp.ComplianceStatus)
	}
	last := resp.AuditTrail[len(resp.AuditTrail)-1]
	if last.Stage != recorder.StageName || last.Outcome != "failed" {
		t.Errorf("expected failed audit logging stage, got %+v", last)
	}
}

func TestProcess_MedicalPromptNeedsDisclaimer(t *testing.T) {
	gen := generation.NewStaticGenerator("Rest in a dark room and drink water.", nil)
	p := newPipeline(t, storage.NewMemoryStorage(), gen)

	resp, err := p.Process(context.Background(), governance.Request{
		Prompt: "What is the best treatment after a diagnosis of migraine?",
		UserID: "user-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Contains(resp.Audit.ComplianceIssues, "Missing medical disclaimer") {
		t.Errorf("expected missing medical disclaimer, got %v", resp.Audit.ComplianceIssues)
	}
	if resp.ComplianceStatus == governance.StatusCompliant {
		t.Errorf("expected status below compliant, got %s", resp.ComplianceStatus)
	}
	if len(resp.ReviewFlags) == 0 {
		t.Error("expected the audit review flag to be routed")
	}
}

func TestGenerationContext(t *testing.T) {
	req := &governance.Request{Context: map[string]any{"industry": "healthcare"}}
	decision := governance.PolicyDecision{
		Role:       "user",
		Directives: []string{"audit_logging_required"},
		Frameworks: []string{"hipaa"},
	}

	c := generationContext(req, decision)

	if c["industry"] != "healthcare" || c["role"] != "user" {
		t.Errorf("unexpected context %v", c)
	}
	if d, ok := c["governance_directives"].([]string); !ok || len(d) != 1 {
		t.Errorf("expected directives, got %v", c["governance_directives"])
	}
	if _, ok := req.Context["role"]; ok {
		t.Error("request context must not be modified")
	}
}
