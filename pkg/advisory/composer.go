package advisory

import (
	"log/slog"
	"slices"
	"sort"

	"mercator-hq/aegis/pkg/detect"
	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/knowledge"
)

// StageName identifies the composer in audit trails.
const StageName = "advisory"

// GuidanceGeneral is used when no domain sets a guidance type.
const GuidanceGeneral = "general"

// defaultFallback is used when even the pack is unavailable.
var defaultFallback = []string{"Review the request and consult with compliance team"}

// Composer builds advisory guidance.
type Composer struct {
	pack   knowledge.Provider
	logger *slog.Logger
}

// New creates a composer.
func New(pack knowledge.Provider) *Composer {
	return &Composer{
		pack:   pack,
		logger: slog.Default().With("component", "advisory"),
	}
}

// Input bundles everything the composer reads.
type Input struct {
	Prompt   string
	Response string
	Risk     governance.RiskAssessment
	Audit    governance.AuditResult
}

// Compose builds guidance for in. It never fails; an internal error yields
// the minimal general guidance.
func (c *Composer) Compose(in Input) (g governance.AdvisoryGuidance) {
	pack := c.pack.Current()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Advisory composition panicked, using general guidance", "panic", r)
			g = Fallback(pack)
		}
	}()
	if pack == nil {
		c.logger.Warn("No knowledge pack loaded, using general guidance")
		return Fallback(nil)
	}
	return compose(&pack.Advisory, in)
}

func compose(t *knowledge.AdvisoryTables, in Input) governance.AdvisoryGuidance {
	prompt := detect.Normalize(in.Prompt)
	response := detect.Normalize(in.Response)

	g := governance.AdvisoryGuidance{
		GuidanceType:        GuidanceGeneral,
		Recommendations:     []string{},
		RequiredDisclaimers: []string{},
		Alternatives:        []string{},
	}
	g.Recommendations = appendUnique(g.Recommendations, t.Generic...)

	var (
		domainRecs []string
		topics     = map[string]governance.KnowledgeEntry{}
		frameworks = map[string]string{}
		typed      bool
	)
	for _, d := range t.Domains {
		if !matches(d, prompt, response, in.Risk) {
			continue
		}
		g.Domains = append(g.Domains, d.Name)
		if d.GuidanceType != "" && !typed {
			g.GuidanceType = d.GuidanceType
			typed = true
		}
		domainRecs = appendUnique(domainRecs, d.Recommendations...)
		g.RequiredDisclaimers = appendUnique(g.RequiredDisclaimers, d.Disclaimers...)
		g.Alternatives = appendUnique(g.Alternatives, d.Alternatives...)

		for _, ref := range d.Topics {
			r, ok := t.Lookup(ref)
			if !ok {
				continue
			}
			topics[r.Bundle+"."+r.Topic] = r.Entry
			g.Alternatives = appendUnique(g.Alternatives, r.Entry.Alternatives...)
		}
		for _, area := range d.Areas {
			if desc, ok := t.Education.Frameworks[area]; ok {
				frameworks[area] = desc
			}
		}
	}

	// Domain tags from the auditor, e.g. "medical", follow the phrases.
	g.RequiredDisclaimers = appendUnique(g.RequiredDisclaimers, in.Audit.RequiredDisclaimers...)

	g.Recommendations = appendUnique(g.Recommendations, domainRecs...)
	g.Recommendations = appendUnique(g.Recommendations, g.Alternatives...)

	g.Education = governance.EducationalContent{
		BestPractices: copyPractices(t.Education.BestPractices),
		Resources:     copyStrings(t.Education.Resources),
	}
	if len(topics) > 0 {
		g.Education.Topics = topics
	}
	if len(frameworks) > 0 {
		g.Education.Frameworks = frameworks
	}
	return g
}

func matches(d knowledge.AdvisoryDomain, prompt, response string, risk governance.RiskAssessment) bool {
	set := detect.NewTermSet(d.Keywords)
	if set.Any(prompt) || (d.ScanResponse && set.Any(response)) {
		return true
	}
	if d.OnPII && len(risk.PII) > 0 {
		return true
	}
	for _, cat := range d.RiskCategories {
		if risk.HasCategory(cat) {
			return true
		}
	}
	return false
}

// Fallback is the minimal guidance returned on internal errors.
func Fallback(pack *knowledge.Pack) governance.AdvisoryGuidance {
	recs := defaultFallback
	if pack != nil && len(pack.Advisory.Fallback) > 0 {
		recs = pack.Advisory.Fallback
	}
	return governance.AdvisoryGuidance{
		GuidanceType:        GuidanceGeneral,
		Recommendations:     append([]string(nil), recs...),
		RequiredDisclaimers: []string{},
	}
}

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		if it != "" && !slices.Contains(dst, it) {
			dst = append(dst, it)
		}
	}
	return dst
}

func copyStrings(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyPractices(m map[string][]string) map[string][]string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string][]string, len(m))
	for _, k := range keys {
		out[k] = append([]string(nil), m[k]...)
	}
	return out
}
