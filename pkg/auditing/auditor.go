package auditing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/aegis/pkg/detect"
	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/knowledge"
	"mercator-hq/aegis/pkg/moderation"
)

// StageName identifies the auditor in audit trails and review flags.
const StageName = "output_audit"

// Compliance issue texts.
const (
	IssueMissingDisclosure  = "Missing AI disclosure"
	IssueMissingDataProtect = "Missing data protection considerations"
	IssueAuditFailed        = "audit_failed"
)

// DisclosureTag is added to required disclaimers when the AI disclosure is
// missing.
const DisclosureTag = "ai_disclosure"

// Recommendation texts, emitted per threshold breach.
const (
	RecommendQuality    = "Improve output quality and accuracy"
	RecommendFairness   = "Address potential bias and improve inclusivity"
	RecommendCompliance = "Add required disclaimers and compliance notices"
	RecommendModeration = "Review and moderate flagged content"
	RecommendFailed     = "Review audit system"
)

// Thresholds below which a recommendation is emitted.
const (
	qualityFloor    = 0.7
	fairnessFloor   = 0.7
	complianceFloor = 0.8
)

// Auditor audits responses. It is safe for concurrent use.
type Auditor struct {
	pack       knowledge.Provider
	classifier moderation.Classifier
	now        func() time.Time
	logger     *slog.Logger

	tables atomic.Pointer[compiledTables]
}

type compiledTables struct {
	pack       *knowledge.Pack
	quality    [4]*detect.TermSet
	evidence   *detect.TermSet
	bias       *detect.TermSet
	inclusive  *detect.TermSet
	disclosure *detect.TermSet
	domains    []domainRule
	pii        *detect.TermSet
	privacy    *detect.TermSet
	moderation []namedSet
}

type domainRule struct {
	domain      string
	triggers    *detect.TermSet
	disclaimers *detect.TermSet
}

type namedSet struct {
	name  string
	terms *detect.TermSet
}

// qualityDimensions fixes the order of the four indicator dimensions.
var qualityDimensions = [4]string{"accuracy", "completeness", "clarity", "objectivity"}

// New creates an auditor. classifier may be nil, in which case the local
// keyword scan is always used for moderation.
func New(pack knowledge.Provider, classifier moderation.Classifier) *Auditor {
	return &Auditor{
		pack:       pack,
		classifier: classifier,
		now:        time.Now,
		logger:     slog.Default().With("component", "auditing"),
	}
}

// Audit scores response as an answer to req. It never returns an error; a
// failed audit yields the non-compliant default.
func (a *Auditor) Audit(ctx context.Context, req *governance.Request, response string) (result governance.AuditResult) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Audit panicked, using non-compliant default", "request_id", req.ID, "panic", r)
			result = a.Failed(req)
		}
	}()

	res, err := a.audit(ctx, req, response)
	if err != nil {
		a.logger.Warn("Audit failed, using non-compliant default",
			"request_id", req.ID,
			"error", err,
		)
		return a.Failed(req)
	}

	a.logger.Debug("Response audited",
		"request_id", req.ID,
		"overall_score", res.OverallScore,
		"status", res.Status,
		"issues", len(res.ComplianceIssues),
	)
	return res
}

func (a *Auditor) audit(ctx context.Context, req *governance.Request, response string) (governance.AuditResult, error) {
	if err := ctx.Err(); err != nil {
		return governance.AuditResult{}, err
	}
	pack := a.pack.Current()
	if pack == nil {
		return governance.AuditResult{}, fmt.Errorf("no knowledge pack loaded")
	}
	t := a.compiled(pack)
	w := pack.Auditing.Weights

	normReq := detect.Normalize(req.Prompt)
	normResp := detect.Normalize(response)

	res := governance.AuditResult{
		ComplianceIssues:    []string{},
		RequiredDisclaimers: []string{},
		ModerationFlags:     []string{},
		Recommendations:     []string{},
	}

	res.Quality = scoreQuality(t, normResp, w)
	res.QualityScore = governance.Clamp(res.Quality.Mean())

	res.BiasScore = governance.Clamp(float64(t.bias.Count(normResp)) * w.BiasStep)
	res.InclusivityScore = governance.Clamp(float64(t.inclusive.Count(normResp)) * w.InclusiveStep)
	res.FairnessScore = governance.Clamp(1 - res.BiasScore + res.InclusivityScore)

	res.ComplianceIssues, res.RequiredDisclaimers = verifyCompliance(t, normReq, normResp)
	res.ComplianceScore = governance.Clamp(1 - float64(len(res.ComplianceIssues))*w.IssuePenalty)

	res.ModerationFlags = a.moderate(ctx, t, response, normResp, w.ClassifierCutoff)
	res.ModerationRisk = riskForFlags(len(res.ModerationFlags))

	penalty := 0.0
	switch res.ModerationRisk {
	case governance.RiskHigh:
		penalty = w.HighPenalty
	case governance.RiskMedium:
		penalty = w.MediumPenalty
	}

	res.OverallScore = governance.Clamp(
		res.QualityScore*w.Quality +
			res.FairnessScore*w.Fairness +
			res.ComplianceScore*w.Compliance +
			(1-penalty)*w.Moderation,
	)
	res.Status = governance.StatusForScore(res.OverallScore)

	if res.QualityScore < qualityFloor {
		res.Recommendations = append(res.Recommendations, RecommendQuality)
	}
	if res.FairnessScore < fairnessFloor {
		res.Recommendations = append(res.Recommendations, RecommendFairness)
	}
	if res.ComplianceScore < complianceFloor {
		res.Recommendations = append(res.Recommendations, RecommendCompliance)
	}
	if res.ModerationRisk == governance.RiskHigh {
		res.Recommendations = append(res.Recommendations, RecommendModeration)
	}

	res.Confidence = 0.7
	if res.OverallScore > 0.7 {
		res.Confidence = 0.9
	}
	res.Review = a.flag(req, res.Status, fmt.Sprintf("response audited as %s (score %.2f)", res.Status, res.OverallScore))
	return res, nil
}

func scoreQuality(t *compiledTables, resp string, w knowledge.AuditWeights) governance.QualityScores {
	var dims [4]float64
	for i, set := range t.quality {
		dims[i] = governance.Clamp(float64(set.Count(resp)) * w.IndicatorStep)
	}
	return governance.QualityScores{
		Accuracy:     dims[0],
		Completeness: dims[1],
		Clarity:      dims[2],
		Objectivity:  dims[3],
		Evidence:     governance.Clamp(float64(t.evidence.Count(resp)) * w.EvidenceStep),
	}
}

func verifyCompliance(t *compiledTables, req, resp string) (issues, required []string) {
	issues = []string{}
	required = []string{}
	for _, rule := range t.domains {
		if rule.triggers.Any(req) && !rule.disclaimers.Any(resp) {
			issues = append(issues, fmt.Sprintf("Missing %s disclaimer", rule.domain))
			required = append(required, rule.domain)
		}
	}
	if !t.disclosure.Any(resp) {
		issues = append(issues, IssueMissingDisclosure)
		required = append(required, DisclosureTag)
	}
	if t.pii.Any(req) && !t.privacy.Any(resp) {
		issues = append(issues, IssueMissingDataProtect)
	}
	return issues, required
}

// moderate asks the classifier and falls back to the keyword scan when it
// fails or is not configured.
func (a *Auditor) moderate(ctx context.Context, t *compiledTables, raw, norm string, cutoff float64) []string {
	if a.classifier != nil {
		res, err := a.classifier.Moderate(ctx, raw)
		if err == nil {
			return classifierFlags(res, cutoff)
		}
		a.logger.Warn("Moderation classifier failed, using keyword fallback", "error", err)
	}

	flags := []string{}
	for _, cat := range t.moderation {
		for _, term := range cat.terms.Find(norm) {
			flags = append(flags, fmt.Sprintf("%s: %s", cat.name, term))
		}
	}
	return flags
}

func classifierFlags(res governance.ModerationResult, cutoff float64) []string {
	names := make([]string, 0, len(res.Categories))
	for name := range res.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	flags := []string{}
	for _, name := range names {
		if score := res.Categories[name]; score > cutoff {
			flags = append(flags, fmt.Sprintf("%s: high_score_%.2f", name, score))
		}
	}
	return flags
}

func riskForFlags(n int) governance.RiskLevel {
	switch {
	case n > 3:
		return governance.RiskHigh
	case n > 1:
		return governance.RiskMedium
	default:
		return governance.RiskLow
	}
}

// Failed returns the non-compliant default used when auditing cannot
// complete.
func (a *Auditor) Failed(req *governance.Request) governance.AuditResult {
	return governance.AuditResult{
		ComplianceIssues:    []string{IssueAuditFailed},
		RequiredDisclaimers: []string{},
		ModerationFlags:     []string{IssueAuditFailed},
		ModerationRisk:      governance.RiskHigh,
		Status:              governance.StatusNonCompliant,
		Recommendations:     []string{RecommendFailed},
		Confidence:          0,
		Review:              a.flag(req, governance.StatusNonCompliant, "audit could not be completed"),
	}
}

func (a *Auditor) flag(req *governance.Request, status governance.ComplianceStatus, reason string) *governance.ReviewFlag {
	var priority governance.Priority
	switch status {
	case governance.StatusNonCompliant:
		priority = governance.PriorityHigh
	case governance.StatusNeedsReview:
		priority = governance.PriorityMedium
	default:
		return nil
	}
	return &governance.ReviewFlag{
		ID:        "flag_" + uuid.NewString(),
		Stage:     StageName,
		RequestID: req.ID,
		UserID:    req.UserID,
		Priority:  priority,
		Status:    governance.ReviewStatusPending,
		Reason:    reason,
		CreatedAt: a.now().UTC(),
	}
}

func (a *Auditor) compiled(pack *knowledge.Pack) *compiledTables {
	if t := a.tables.Load(); t != nil && t.pack == pack {
		return t
	}
	at := &pack.Auditing
	t := &compiledTables{
		pack:       pack,
		evidence:   detect.NewTermSet(at.Evidence),
		bias:       detect.NewTermSet(at.Bias),
		inclusive:  detect.NewTermSet(at.Inclusive),
		disclosure: detect.NewTermSet(at.Disclosure),
		pii:        detect.NewTermSet(at.PIITerms),
		privacy:    detect.NewTermSet(at.PrivacyTerms),
	}
	for i, dim := range qualityDimensions {
		t.quality[i] = detect.NewTermSet(at.Quality[dim])
	}
	for _, rule := range at.Domains {
		t.domains = append(t.domains, domainRule{
			domain:      rule.Domain,
			triggers:    detect.NewTermSet(rule.Triggers),
			disclaimers: detect.NewTermSet(rule.Disclaimers),
		})
	}
	for _, key := range at.ModerationKeys {
		t.moderation = append(t.moderation, namedSet{name: key, terms: detect.NewTermSet(at.Moderation[key])})
	}
	a.tables.Store(t)
	return t
}
