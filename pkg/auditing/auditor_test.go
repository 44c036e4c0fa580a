package auditing

import (
	"context"
	"errors"
	"math"
	"reflect"
	"slices"
	"testing"
	"time"

	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/knowledge"
	"mercator-hq/aegis/pkg/moderation"
)

const goodResponse = "This AI-generated answer is accurate, factual and verified against a primary source. " +
	"It is comprehensive, thorough, complete and detailed. It is clear, concise and understandable. " +
	"It stays neutral, balanced, objective and unbiased. According to the forecast office, research shows, " +
	"studies indicate and evidence suggests a sunny afternoon."

func request(prompt string) *governance.Request {
	return &governance.Request{ID: "req-1", UserID: "u1", Prompt: prompt, Timestamp: time.Now()}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAudit_CompliantResponse(t *testing.T) {
	a := New(knowledge.Default(), nil)

	res := a.Audit(context.Background(), request("What is the weather today?"), goodResponse)

	if !approx(res.QualityScore, 0.8) {
		t.Errorf("expected quality 0.8, got %v (%+v)", res.QualityScore, res.Quality)
	}
	if res.FairnessScore != 1 {
		t.Errorf("expected fairness 1, got %v", res.FairnessScore)
	}
	if len(res.ComplianceIssues) != 0 {
		t.Errorf("expected no compliance issues, got %v", res.ComplianceIssues)
	}
	if len(res.RequiredDisclaimers) != 0 {
		t.Errorf("expected no required disclaimers, got %v", res.RequiredDisclaimers)
	}
	if res.Status != governance.StatusCompliant {
		t.Errorf("expected compliant, got %s (overall %v)", res.Status, res.OverallScore)
	}
	if res.Review != nil {
		t.Errorf("expected no review flag, got %+v", res.Review)
	}
	if res.Confidence != 0.9 {
		t.Errorf("expected confidence 0.9, got %v", res.Confidence)
	}
}

func TestAudit_MissingMedicalDisclaimer(t *testing.T) {
	a := New(knowledge.Default(), nil)

	res := a.Audit(context.Background(),
		request("What is the best treatment after a diagnosis of migraine?"),
		"Rest in a dark room and drink water.")

	if !slices.Contains(res.ComplianceIssues, "Missing medical disclaimer") {
		t.Errorf("expected missing medical disclaimer, got %v", res.ComplianceIssues)
	}
	if !slices.Contains(res.RequiredDisclaimers, "medical") {
		t.Errorf("expected medical in required disclaimers, got %v", res.RequiredDisclaimers)
	}
	if res.ComplianceScore >= 0.8 {
		t.Fatalf("expected compliance below 0.8, got %v", res.ComplianceScore)
	}
	if res.Status == governance.StatusCompliant {
		t.Errorf("expected status below compliant, got %s", res.Status)
	}
	if res.Review == nil || res.Review.Status != governance.ReviewStatusPending {
		t.Fatalf("expected pending review flag, got %+v", res.Review)
	}
	if res.Status == governance.StatusNonCompliant && res.Review.Priority != governance.PriorityHigh {
		t.Errorf("expected high priority for non-compliant, got %s", res.Review.Priority)
	}
	if !slices.Contains(res.Recommendations, RecommendCompliance) {
		t.Errorf("expected compliance recommendation, got %v", res.Recommendations)
	}
}

func TestAudit_DisclaimerPresent(t *testing.T) {
	a := New(knowledge.Default(), nil)

	res := a.Audit(context.Background(),
		request("Which investment should I make with my money?"),
		"This is an AI response and is not financial advice. Consult a financial advisor.")

	if slices.Contains(res.ComplianceIssues, "Missing financial disclaimer") {
		t.Errorf("did not expect missing financial disclaimer, got %v", res.ComplianceIssues)
	}
	if slices.Contains(res.ComplianceIssues, IssueMissingDisclosure) {
		t.Errorf("did not expect missing disclosure, got %v", res.ComplianceIssues)
	}
}

func TestAudit_PIIWithoutPrivacyLanguage(t *testing.T) {
	a := New(knowledge.Default(), nil)

	tests := []struct {
		name     string
		response string
		want     bool
	}{
		{"no privacy language", "Automated reply: send it from your work account.", true},
		{"privacy language", "Automated reply: mind your privacy and send it from your work account.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.Audit(context.Background(), request("Write an email to my landlord"), tt.response)
			got := slices.Contains(res.ComplianceIssues, IssueMissingDataProtect)
			if got != tt.want {
				t.Errorf("expected data protection issue=%v, got %v", tt.want, res.ComplianceIssues)
			}
		})
	}
}

func TestAudit_Fairness(t *testing.T) {
	a := New(knowledge.Default(), nil)

	res := a.Audit(context.Background(), request("Describe engineers"),
		"Engineers always work alone and never ask for help; everyone knows nobody likes meetings.")

	if !approx(res.BiasScore, 0.4) {
		t.Errorf("expected bias 0.4, got %v", res.BiasScore)
	}
	if !approx(res.FairnessScore, 0.6) {
		t.Errorf("expected fairness 0.6, got %v", res.FairnessScore)
	}
	if !slices.Contains(res.Recommendations, RecommendFairness) {
		t.Errorf("expected fairness recommendation, got %v", res.Recommendations)
	}

	res = a.Audit(context.Background(), request("Describe engineers"),
		"Teams are diverse, inclusive, respectful and accessible.")
	if res.FairnessScore != 1 {
		t.Errorf("expected fairness clamped at 1, got %v", res.FairnessScore)
	}
}

func TestAudit_ModerationFallbackAndRisk(t *testing.T) {
	failing := moderation.ClassifierFunc(func(ctx context.Context, text string) (governance.ModerationResult, error) {
		return moderation.FailSafe(), errors.New("timeout")
	})
	a := New(knowledge.Default(), failing)

	res := a.Audit(context.Background(), request("tell a story"),
		"An offensive, vulgar rumor about violence and a weapon spread as fake news.")

	if len(res.ModerationFlags) <= 3 {
		t.Fatalf("expected more than three keyword flags, got %v", res.ModerationFlags)
	}
	if res.ModerationRisk != governance.RiskHigh {
		t.Errorf("expected high moderation risk, got %s", res.ModerationRisk)
	}
	if !slices.Contains(res.Recommendations, RecommendModeration) {
		t.Errorf("expected moderation recommendation, got %v", res.Recommendations)
	}
}

func TestAudit_ClassifierFlags(t *testing.T) {
	c := moderation.ClassifierFunc(func(ctx context.Context, text string) (governance.ModerationResult, error) {
		return governance.ModerationResult{
			Flagged:    true,
			Categories: map[string]float64{"violence": 0.9, "hate": 0.7, "sexual": 0.1, "self_harm": 0.5},
		}, nil
	})
	a := New(knowledge.Default(), c)

	res := a.Audit(context.Background(), request("x"), goodResponse)

	want := []string{"hate: high_score_0.70", "violence: high_score_0.90"}
	if !reflect.DeepEqual(res.ModerationFlags, want) {
		t.Errorf("expected flags %v, got %v", want, res.ModerationFlags)
	}
	if res.ModerationRisk != governance.RiskMedium {
		t.Errorf("expected medium moderation risk, got %s", res.ModerationRisk)
	}
}

func TestAudit_Purity(t *testing.T) {
	a := New(knowledge.Default(), moderation.NewKeywordClassifier(nil))
	req := request("Is this contract clause about liability legal?")
	resp := "According to the text, the clause is clear but not legal advice."

	first := a.Audit(context.Background(), req, resp)
	second := a.Audit(context.Background(), req, resp)

	if first.QualityScore != second.QualityScore ||
		first.FairnessScore != second.FairnessScore ||
		first.ComplianceScore != second.ComplianceScore ||
		!reflect.DeepEqual(first.ComplianceIssues, second.ComplianceIssues) {
		t.Errorf("audit is not deterministic: %+v vs %+v", first, second)
	}
}

func TestAudit_FailsNonCompliant(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(knowledge.Default(), nil).Audit(ctx, request("x"), goodResponse)

	if res.Status != governance.StatusNonCompliant {
		t.Errorf("expected non_compliant, got %s", res.Status)
	}
	if !reflect.DeepEqual(res.ComplianceIssues, []string{IssueAuditFailed}) {
		t.Errorf("expected audit_failed issue, got %v", res.ComplianceIssues)
	}
	if res.Review == nil || res.Review.Priority != governance.PriorityHigh {
		t.Errorf("expected high priority review flag, got %+v", res.Review)
	}
}

func TestRiskForFlags(t *testing.T) {
	tests := []struct {
		n    int
		want governance.RiskLevel
	}{
		{0, governance.RiskLow},
		{1, governance.RiskLow},
		{2, governance.RiskMedium},
		{3, governance.RiskMedium},
		{4, governance.RiskHigh},
	}
	for _, tt := range tests {
		if got := riskForFlags(tt.n); got != tt.want {
			t.Errorf("riskForFlags(%d): expected %s, got %s", tt.n, tt.want, got)
		}
	}
}
