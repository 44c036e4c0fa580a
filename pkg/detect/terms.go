package detect

import "strings"

// TermSet is an immutable list of keywords matched as substrings of
// normalized text.
type TermSet struct {
	terms []string
}

// NewTermSet normalizes and deduplicates terms, preserving order.
func NewTermSet(terms []string) *TermSet {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		n := normalizeTerm(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return &TermSet{terms: out}
}

// Len returns the number of distinct terms.
func (s *TermSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.terms)
}

// Terms returns a copy of the normalized terms.
func (s *TermSet) Terms() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.terms...)
}

// Find returns the terms present in text, in table order. text must already
// be normalized with Normalize.
func (s *TermSet) Find(text string) []string {
	if s == nil || text == "" {
		return nil
	}
	var found []string
	for _, t := range s.terms {
		if ContainsTerm(text, t) {
			found = append(found, t)
		}
	}
	return found
}

// Count returns the number of distinct terms present in text.
func (s *TermSet) Count(text string) int {
	return len(s.Find(text))
}

// Any reports whether at least one term is present in text.
func (s *TermSet) Any(text string) bool {
	if s == nil || text == "" {
		return false
	}
	for _, t := range s.terms {
		if ContainsTerm(text, t) {
			return true
		}
	}
	return false
}

// ContainsTerm reports whether term occurs anywhere in text, so "hack" is
// found in "hacking" and "health" in "healthcare". Both arguments must be
// normalized.
func ContainsTerm(text, term string) bool {
	return term != "" && strings.Contains(text, term)
}

// ContainsPhrase is ContainsTerm for a phrase that has not been normalized
// yet, such as an allowlist entry.
func ContainsPhrase(text, phrase string) bool {
	p := normalizeTerm(phrase)
	return p != "" && strings.Contains(text, p)
}
