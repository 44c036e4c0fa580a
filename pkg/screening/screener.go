package screening

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/aegis/pkg/detect"
	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/knowledge"
	"mercator-hq/aegis/pkg/moderation"
)

// Risk factor labels.
const (
	FactorAllowlisted = "allowlisted_query"
	FactorSuspicious  = "suspicious_content"
	FactorPII         = "pii_detected"
	FactorCompliance  = "compliance_violations"
	FactorModeration  = "content_moderation"
	FactorError       = "analysis_error"
)

// StageName identifies the screener in audit trails and review flags.
const StageName = "risk_screening"

// stockFailure is the only error text ever placed in an assessment.
const stockFailure = "risk analysis could not be completed"

// Screener scores prompts against the active knowledge pack.
type Screener struct {
	pack       knowledge.Provider
	classifier moderation.Classifier
	logger     *slog.Logger

	tables atomic.Pointer[compiledTables]
}

// compiledTables caches matchers for one pack instance.
type compiledTables struct {
	pack       *knowledge.Pack
	allowlist  []string
	categories []categorySet
	pii        *detect.PIIDetector
	compliance []categorySet
}

type categorySet struct {
	name  string
	terms *detect.TermSet
}

// New creates a screener. classifier may be nil to skip moderation.
func New(pack knowledge.Provider, classifier moderation.Classifier) *Screener {
	return &Screener{
		pack:       pack,
		classifier: classifier,
		logger:     slog.Default().With("component", "screening"),
	}
}

// Screen scores a request. It never returns an error; failures produce the
// fail-closed assessment.
func (s *Screener) Screen(ctx context.Context, req *governance.Request) (result governance.RiskAssessment) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Screening panicked, failing closed", "request_id", req.ID, "panic", r)
			result = FailClosed(len(req.Prompt))
		}
	}()

	a, err := s.screen(ctx, req)
	if err != nil {
		s.logger.Warn("Screening failed, failing closed",
			"request_id", req.ID,
			"error", err,
		)
		return FailClosed(len(req.Prompt))
	}

	s.logger.Debug("Prompt screened",
		"request_id", req.ID,
		"risk_score", a.Score,
		"risk_level", a.Level,
		"action", a.Action,
	)
	return a
}

func (s *Screener) screen(ctx context.Context, req *governance.Request) (governance.RiskAssessment, error) {
	if err := ctx.Err(); err != nil {
		return governance.RiskAssessment{}, err
	}

	pack := s.pack.Current()
	if pack == nil {
		return governance.RiskAssessment{}, fmt.Errorf("no knowledge pack loaded")
	}
	t, err := s.compiled(pack)
	if err != nil {
		return governance.RiskAssessment{}, err
	}
	w := pack.Screening.Weights

	norm := detect.Normalize(req.Prompt)
	a := governance.RiskAssessment{
		PII:          map[string]int{},
		PromptLength: len(req.Prompt),
	}

	for _, phrase := range t.allowlist {
		if detect.ContainsPhrase(norm, phrase) {
			a.Allowlisted = true
			a.Factors = []string{FactorAllowlisted}
			return finalize(a, w.AllowlistScore), nil
		}
	}

	total := 0.0
	for _, c := range t.categories {
		terms := c.terms.Find(norm)
		if len(terms) == 0 {
			continue
		}
		score := governance.Clamp(float64(len(terms)) * w.Keyword)
		a.Categories = append(a.Categories, governance.CategoryMatch{
			Category: c.name,
			Terms:    terms,
			Score:    score,
		})
		total += score
	}

	a.PII = t.pii.Scan(req.Prompt)
	total += float64(detect.Total(a.PII)) * w.PIIMatch
	base := governance.Clamp(total)

	for _, fw := range t.compliance {
		for _, term := range fw.terms.Find(norm) {
			a.ComplianceIssues = append(a.ComplianceIssues, fmt.Sprintf("Potential %s violation: %s", fw.name, term))
		}
	}

	moderated := 0.0
	if s.classifier != nil {
		res, err := s.classifier.Moderate(ctx, req.Prompt)
		if err != nil {
			return governance.RiskAssessment{}, err
		}
		a.Moderation = res
		if res.Flagged {
			moderated = res.MaxCategoryScore(w.ModerationFallback)
		}
	}

	if len(a.Categories) > 0 {
		a.Factors = append(a.Factors, FactorSuspicious)
	}
	if len(a.PII) > 0 {
		a.Factors = append(a.Factors, FactorPII)
	}
	if len(a.ComplianceIssues) > 0 {
		a.Factors = append(a.Factors, FactorCompliance)
	}
	if a.Moderation.Flagged {
		a.Factors = append(a.Factors, FactorModeration)
	}

	score := base + float64(len(a.ComplianceIssues))*w.ComplianceIssue + moderated
	return finalize(a, score), nil
}

// finalize clamps the score and derives level, action and confidence.
func finalize(a governance.RiskAssessment, score float64) governance.RiskAssessment {
	a.Score = governance.Clamp(score)
	a.Level = governance.LevelForScore(a.Score)
	a.Action = governance.ActionForLevel(a.Level)
	a.Confidence = 0.7
	if a.Score > governance.MediumRiskThreshold {
		a.Confidence = 0.9
	}
	return a
}

// FailClosed is the assessment returned whenever screening cannot complete.
func FailClosed(promptLength int) governance.RiskAssessment {
	return governance.RiskAssessment{
		Score:            1,
		Level:            governance.RiskHigh,
		Action:           governance.ActionBlock,
		Confidence:       0,
		Factors:          []string{FactorError},
		ComplianceIssues: []string{"analysis_failed"},
		Moderation:       moderation.FailSafe(),
		PromptLength:     promptLength,
		Error:            stockFailure,
	}
}

// compiled returns matchers for pack, building them on first use.
func (s *Screener) compiled(pack *knowledge.Pack) (*compiledTables, error) {
	if t := s.tables.Load(); t != nil && t.pack == pack {
		return t, nil
	}

	st := &pack.Screening
	pii, err := detect.NewPIIDetector(st.PIIOrder, st.PIIPatterns)
	if err != nil {
		return nil, fmt.Errorf("pii detector: %w", err)
	}
	t := &compiledTables{
		pack:      pack,
		allowlist: st.Allowlist,
		pii:       pii,
	}
	for _, name := range st.CategoryOrder {
		t.categories = append(t.categories, categorySet{name: name, terms: detect.NewTermSet(st.Categories[name])})
	}
	for _, fw := range st.ComplianceOrder {
		t.compliance = append(t.compliance, categorySet{name: fw, terms: detect.NewTermSet(st.Compliance[fw])})
	}
	s.tables.Store(t)
	return t, nil
}

// Escalate builds the review flag for a medium or high risk assessment. It
// returns nil for low risk.
func Escalate(req *governance.Request, a governance.RiskAssessment, now time.Time) *governance.ReviewFlag {
	if a.Level != governance.RiskHigh && a.Level != governance.RiskMedium {
		return nil
	}
	priority := governance.PriorityMedium
	if a.Level == governance.RiskHigh {
		priority = governance.PriorityHigh
	}
	return &governance.ReviewFlag{
		ID:        "esc_" + uuid.NewString(),
		Stage:     StageName,
		RequestID: req.ID,
		UserID:    req.UserID,
		Priority:  priority,
		Status:    governance.ReviewStatusPending,
		Reason:    fmt.Sprintf("prompt screened as %s risk (score %.2f)", a.Level, a.Score),
		CreatedAt: now.UTC(),
	}
}
