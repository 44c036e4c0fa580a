package knowledge

import "mercator-hq/aegis/pkg/governance"

// Pack is a complete, versioned set of governance tables.
type Pack struct {
	// Version is the semantic version of the pack schema and content.
	Version string `yaml:"version"`

	// Name identifies the pack in logs and audit records.
	Name string `yaml:"name"`

	Screening ScreeningTables `yaml:"screening"`
	Policy    PolicyTables    `yaml:"policy"`
	Auditing  AuditingTables  `yaml:"auditing"`
	Advisory  AdvisoryTables  `yaml:"advisory"`
	Retention RetentionTables `yaml:"retention"`

	windows *WindowEvaluator
}

// Current returns the pack itself so a static Pack satisfies Provider.
func (p *Pack) Current() *Pack {
	return p
}

// Windows returns the compiled window evaluator.
func (p *Pack) Windows() *WindowEvaluator {
	return p.windows
}

// Provider hands out the active pack. Stages resolve the pack once per
// request so a reload never changes tables mid-request.
type Provider interface {
	Current() *Pack
}

// ScreeningTables drive the risk screener.
type ScreeningTables struct {
	// Allowlist contains benign phrases that short-circuit screening.
	Allowlist []string `yaml:"allowlist"`

	// Categories maps a risk category to its keyword list. Category order is
	// given by CategoryOrder.
	Categories    map[string][]string `yaml:"categories"`
	CategoryOrder []string            `yaml:"category_order"`

	// PIIPatterns maps a PII type to a regular expression.
	PIIPatterns map[string]string `yaml:"pii_patterns"`
	PIIOrder    []string          `yaml:"pii_order"`

	// Compliance maps a framework label (GDPR, HIPAA, SOX) to indicator terms.
	Compliance      map[string][]string `yaml:"compliance"`
	ComplianceOrder []string            `yaml:"compliance_order"`

	Weights ScreeningWeights `yaml:"weights"`
}

// ScreeningWeights are the additive score contributions.
type ScreeningWeights struct {
	Keyword            float64 `yaml:"keyword"`
	PIIMatch           float64 `yaml:"pii_match"`
	ComplianceIssue    float64 `yaml:"compliance_issue"`
	ModerationFallback float64 `yaml:"moderation_fallback"`
	AllowlistScore     float64 `yaml:"allowlist_score"`
}

// PolicyTables drive the policy engine.
type PolicyTables struct {
	// AlwaysFamilies apply to every request.
	AlwaysFamilies []string `yaml:"always_families"`

	// Families maps a family name to its controls.
	Families map[string]Family `yaml:"families"`

	// SensitiveDataTypes select the data_privacy family.
	SensitiveDataTypes []string `yaml:"sensitive_data_types"`

	// Industries maps an industry tag to frameworks.
	Industries map[string][]string `yaml:"industries"`

	// Flags maps a truthy context flag to frameworks.
	Flags map[string][]string `yaml:"flags"`

	Roles       map[string]Role `yaml:"roles"`
	DefaultRole string          `yaml:"default_role"`

	Windows []Window `yaml:"windows"`

	// ControlLevels orders control labels from weakest to strongest.
	ControlLevels []string `yaml:"control_levels"`

	// Fallback are the rules returned when the engine fails.
	Fallback governance.EnforcementRules `yaml:"fallback"`
}

// Family is a named bundle of related controls.
type Family struct {
	Frameworks []string          `yaml:"frameworks"`
	Controls   map[string]string `yaml:"controls"`
	Rules      RuleTightening    `yaml:"rules"`
}

// Role is one row of the role permission table.
type Role struct {
	Permissions     []string `yaml:"permissions"`
	DataAccess      string   `yaml:"data_access"`
	OverrideAllowed bool     `yaml:"override_allowed"`
	AuditAccess     string   `yaml:"audit_access"`
	MFARequired     bool     `yaml:"mfa_required"`
	SessionTimeout  int      `yaml:"session_timeout"`
}

// Window is a named time-based risk window.
type Window struct {
	Name     string            `yaml:"name"`
	When     string            `yaml:"when"`
	Controls map[string]string `yaml:"controls"`
	Rules    RuleTightening    `yaml:"rules"`
}

// RuleTightening lists the rule changes a family or window applies. Values can
// only make rules stricter.
type RuleTightening struct {
	AuditRequired      bool `yaml:"audit_required"`
	MFARequired        bool `yaml:"mfa_required"`
	EncryptionRequired bool `yaml:"encryption_required"`
	HumanReview        bool `yaml:"human_review"`
	SessionTimeout     int  `yaml:"session_timeout"`
}

// AuditingTables drive the content auditor.
type AuditingTables struct {
	Quality        map[string][]string `yaml:"quality"`
	Evidence       []string            `yaml:"evidence"`
	Bias           []string            `yaml:"bias"`
	Inclusive      []string            `yaml:"inclusive"`
	Disclosure     []string            `yaml:"disclosure"`
	Domains        []DisclaimerRule    `yaml:"domains"`
	PIITerms       []string            `yaml:"pii_terms"`
	PrivacyTerms   []string            `yaml:"privacy_terms"`
	Moderation     map[string][]string `yaml:"moderation"`
	ModerationKeys []string            `yaml:"moderation_order"`
	Weights        AuditWeights        `yaml:"weights"`
}

// DisclaimerRule requires one of Disclaimers in a response when the request
// contains one of Triggers.
type DisclaimerRule struct {
	Domain      string   `yaml:"domain"`
	Triggers    []string `yaml:"triggers"`
	Disclaimers []string `yaml:"disclaimers"`
}

// AuditWeights are the composite weights and penalties of the auditor.
type AuditWeights struct {
	Quality          float64 `yaml:"quality"`
	Fairness         float64 `yaml:"fairness"`
	Compliance       float64 `yaml:"compliance"`
	Moderation       float64 `yaml:"moderation"`
	IndicatorStep    float64 `yaml:"indicator_step"`
	EvidenceStep     float64 `yaml:"evidence_step"`
	BiasStep         float64 `yaml:"bias_step"`
	InclusiveStep    float64 `yaml:"inclusive_step"`
	IssuePenalty     float64 `yaml:"issue_penalty"`
	HighPenalty      float64 `yaml:"high_penalty"`
	MediumPenalty    float64 `yaml:"medium_penalty"`
	ClassifierCutoff float64 `yaml:"classifier_cutoff"`
}

// AdvisoryTables drive the advisory composer.
type AdvisoryTables struct {
	Generic   []string                                        `yaml:"generic"`
	Domains   []AdvisoryDomain                                `yaml:"domains"`
	Knowledge map[string]map[string]governance.KnowledgeEntry `yaml:"knowledge"`
	Education Education                                       `yaml:"education"`
	Fallback  []string                                        `yaml:"fallback"`

	// Answers are canned replies to governance questions, tried in order.
	Answers       []Answer `yaml:"answers"`
	DefaultAnswer Answer   `yaml:"default_answer"`
}

// Answer is a canned reply selected by keyword.
type Answer struct {
	Topic      string   `yaml:"topic" json:"topic"`
	Keywords   []string `yaml:"keywords" json:"-"`
	Text       string   `yaml:"text" json:"answer"`
	Confidence float64  `yaml:"confidence" json:"confidence"`
	Sources    []string `yaml:"sources" json:"sources"`
	Related    []string `yaml:"related" json:"related_topics"`
}

// AdvisoryDomain classifies request or response text into a guidance domain.
type AdvisoryDomain struct {
	Name string `yaml:"name"`
	// Keywords are matched against the prompt, or against prompt and response
	// when ScanResponse is set.
	Keywords     []string `yaml:"keywords"`
	ScanResponse bool     `yaml:"scan_response"`
	// RiskCategories select the domain when the screener triggered one of
	// them; OnPII selects it when the screener found PII.
	RiskCategories []string `yaml:"risk_categories"`
	OnPII          bool     `yaml:"on_pii"`
	// GuidanceType labels the guidance when this is the first matched domain
	// that sets one.
	GuidanceType string `yaml:"guidance_type"`
	// Areas name education frameworks attached when the domain matches.
	Areas           []string `yaml:"areas"`
	Recommendations []string `yaml:"recommendations"`
	Disclaimers     []string `yaml:"disclaimers"`
	Alternatives    []string `yaml:"alternatives"`
	// Topics reference Knowledge entries as "bundle.topic".
	Topics []string `yaml:"topics"`
}

// Education is the static educational material.
type Education struct {
	Frameworks    map[string]string   `yaml:"frameworks"`
	BestPractices map[string][]string `yaml:"best_practices"`
	Resources     map[string]string   `yaml:"resources"`
}

// RetentionTables drive retention computation in the audit recorder.
type RetentionTables struct {
	DefaultDays int                           `yaml:"default_days"`
	Frameworks  map[string]RetentionFramework `yaml:"frameworks"`
	Anomalies   AnomalyThresholds             `yaml:"anomalies"`
}

// RetentionFramework is the mandated horizon of a compliance framework and
// the hints that make it applicable.
type RetentionFramework struct {
	Days     int      `yaml:"days"`
	Triggers []string `yaml:"triggers"`
}

// AnomalyThresholds configure rule-based anomaly detection.
type AnomalyThresholds struct {
	MaxPromptLength int `yaml:"max_prompt_length"`
	MinDurationMs   int `yaml:"min_duration_ms"`
}

// KnowledgeRef is a resolved advisory topic.
type KnowledgeRef struct {
	Bundle string
	Topic  string
	Entry  governance.KnowledgeEntry
}
