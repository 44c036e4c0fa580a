package detect

import (
	"fmt"
	"regexp"
)

// PIIDetector finds personally identifiable information with regular
// expressions. Patterns run against the raw, non-normalized text.
type PIIDetector struct {
	order    []string
	patterns map[string]*regexp.Regexp
}

// NewPIIDetector compiles patterns. order fixes the reporting order; every
// name in order must have a pattern.
func NewPIIDetector(order []string, patterns map[string]string) (*PIIDetector, error) {
	d := &PIIDetector{
		order:    make([]string, 0, len(order)),
		patterns: make(map[string]*regexp.Regexp, len(order)),
	}
	for _, name := range order {
		expr, ok := patterns[name]
		if !ok {
			return nil, fmt.Errorf("pii type %q has no pattern", name)
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("pii type %q: %w", name, err)
		}
		d.order = append(d.order, name)
		d.patterns[name] = re
	}
	return d, nil
}

// Scan returns a PII type to match count map containing only types that
// matched at least once.
func (d *PIIDetector) Scan(text string) map[string]int {
	found := make(map[string]int)
	if text == "" {
		return found
	}
	for _, name := range d.order {
		if n := len(d.patterns[name].FindAllStringIndex(text, -1)); n > 0 {
			found[name] = n
		}
	}
	return found
}

// Types returns the PII types in reporting order.
func (d *PIIDetector) Types() []string {
	return append([]string(nil), d.order...)
}

// Total sums the counts of a Scan result.
func Total(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}
