package knowledge

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultPack []byte

// SupportedVersions is the range of pack versions this build understands.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

// Default returns the embedded default pack. It panics if the embedded pack
// is invalid, which can only happen with a broken build.
func Default() *Pack {
	p, err := Parse(defaultPack)
	if err != nil {
		panic(fmt.Sprintf("embedded knowledge pack is invalid: %v", err))
	}
	return p
}

// DefaultBytes returns the raw embedded pack, e.g. to seed a file on disk.
func DefaultBytes() []byte {
	out := make([]byte, len(defaultPack))
	copy(out, defaultPack)
	return out
}

// Load reads and validates a pack from a YAML file.
func Load(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge pack %q: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("knowledge pack %q: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a pack. The returned pack has its window
// predicates compiled and is safe for concurrent readers.
func Parse(data []byte) (*Pack, error) {
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge pack: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	windows, err := NewWindowEvaluator(p.Policy.Windows)
	if err != nil {
		return nil, err
	}
	p.windows = windows
	return &p, nil
}

// ValidationError lists every problem found in a pack.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("invalid knowledge pack: %s", e.Problems[0])
	}
	return fmt.Sprintf("invalid knowledge pack: %d problems, first: %s", len(e.Problems), e.Problems[0])
}

func (p *Pack) validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if p.Version == "" {
		add("version is required")
	} else {
		v, err := semver.NewVersion(p.Version)
		if err != nil {
			add("version %q is not a semantic version", p.Version)
		} else {
			c, _ := semver.NewConstraint(SupportedVersions)
			if !c.Check(v) {
				add("version %s is outside the supported range %q", v, SupportedVersions)
			}
		}
	}

	s := &p.Screening
	for _, name := range s.CategoryOrder {
		if len(s.Categories[name]) == 0 {
			add("screening category %q has no keywords", name)
		}
	}
	for _, name := range s.PIIOrder {
		expr, ok := s.PIIPatterns[name]
		if !ok {
			add("pii pattern %q is not defined", name)
			continue
		}
		if _, err := regexp.Compile(expr); err != nil {
			add("pii pattern %q does not compile: %v", name, err)
		}
	}
	for _, fw := range s.ComplianceOrder {
		if len(s.Compliance[fw]) == 0 {
			add("compliance framework %q has no indicator terms", fw)
		}
	}
	if s.Weights.Keyword <= 0 || s.Weights.PIIMatch <= 0 {
		add("screening weights must be positive")
	}

	pol := &p.Policy
	if _, ok := pol.Roles[pol.DefaultRole]; !ok {
		add("default role %q is not defined", pol.DefaultRole)
	}
	for name, r := range pol.Roles {
		if r.OverrideAllowed && name != "admin" {
			add("role %q may not carry override_allowed", name)
		}
	}
	for _, fam := range pol.AlwaysFamilies {
		if _, ok := pol.Families[fam]; !ok {
			add("always-applicable family %q is not defined", fam)
		}
	}
	if pol.Fallback.OverrideAllowed {
		add("fallback rules may not allow overrides")
	}

	a := &p.Auditing
	w := a.Weights
	if sum := w.Quality + w.Fairness + w.Compliance + w.Moderation; sum < 0.999 || sum > 1.001 {
		add("auditing weights must sum to 1, got %.3f", sum)
	}
	for _, rule := range a.Domains {
		if len(rule.Triggers) == 0 || len(rule.Disclaimers) == 0 {
			add("disclaimer rule %q needs triggers and disclaimers", rule.Domain)
		}
	}
	for _, key := range a.ModerationKeys {
		if len(a.Moderation[key]) == 0 {
			add("moderation category %q has no keywords", key)
		}
	}

	for _, d := range p.Advisory.Domains {
		for _, ref := range d.Topics {
			if _, ok := p.Advisory.Lookup(ref); !ok {
				add("advisory domain %q references unknown topic %q", d.Name, ref)
			}
		}
	}

	if p.Retention.DefaultDays <= 0 {
		add("retention default_days must be positive")
	}
	for name, fw := range p.Retention.Frameworks {
		if fw.Days <= 0 {
			add("retention framework %q must have positive days", name)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Lookup resolves a "bundle.topic" reference.
func (t *AdvisoryTables) Lookup(ref string) (KnowledgeRef, bool) {
	bundle, topic, ok := strings.Cut(ref, ".")
	if !ok {
		return KnowledgeRef{}, false
	}
	e, found := t.Knowledge[bundle][topic]
	if !found {
		return KnowledgeRef{}, false
	}
	return KnowledgeRef{Bundle: bundle, Topic: topic, Entry: e}, true
}
