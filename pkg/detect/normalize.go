package detect

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds text into the form keyword matching operates on. Full-width
// and compatibility characters collapse to their canonical form and case is
// folded, so "ＨＡＣＫ" and "Hack" both normalize to "hack".
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	// A Caser is stateful and must not be shared between goroutines.
	return cases.Fold().String(norm.NFKC.String(s))
}

// normalizeTerm prepares a table term and collapses inner whitespace.
func normalizeTerm(term string) string {
	return strings.Join(strings.Fields(Normalize(term)), " ")
}
