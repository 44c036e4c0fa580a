package moderation

import (
	"context"

	"mercator-hq/aegis/pkg/detect"
	"mercator-hq/aegis/pkg/governance"
)

// SourceKeyword identifies results of the in-process classifier.
const SourceKeyword = "keyword"

// DefaultKeywordTable is the built-in term table of the keyword classifier.
var DefaultKeywordTable = map[string][]string{
	CategoryHate:     {"hate speech", "racist", "racial slur", "subhuman", "ethnic cleansing"},
	CategoryViolence: {"kill", "murder", "shoot", "stab", "bomb", "massacre", "torture"},
	CategorySexual:   {"explicit sex", "porn", "nude", "sexual content"},
	CategorySelfHarm: {"suicide", "self-harm", "kill myself", "cut myself", "end my life"},
}

// KeywordClassifier scores each category by the number of matched terms.
// Each match contributes Step, a category at or above Threshold flags the
// text.
type KeywordClassifier struct {
	sets      map[string]*detect.TermSet
	Step      float64
	Threshold float64
}

// NewKeywordClassifier builds a classifier from a category to terms table.
// A nil table selects DefaultKeywordTable.
func NewKeywordClassifier(table map[string][]string) *KeywordClassifier {
	if table == nil {
		table = DefaultKeywordTable
	}
	sets := make(map[string]*detect.TermSet, len(table))
	for cat, terms := range table {
		sets[cat] = detect.NewTermSet(terms)
	}
	return &KeywordClassifier{sets: sets, Step: 0.5, Threshold: 0.5}
}

// Moderate implements Classifier. It never fails unless ctx is already done.
func (k *KeywordClassifier) Moderate(ctx context.Context, text string) (governance.ModerationResult, error) {
	if err := ctx.Err(); err != nil {
		return governance.ModerationResult{}, err
	}

	norm := detect.Normalize(text)
	res := governance.ModerationResult{
		Categories: make(map[string]float64, len(k.sets)),
		Confidence: 0.6,
		Source:     SourceKeyword,
	}
	for cat, set := range k.sets {
		score := governance.Clamp(float64(set.Count(norm)) * k.Step)
		res.Categories[cat] = score
		if score >= k.Threshold {
			res.Flagged = true
		}
	}
	return res, nil
}
