package advisory

import (
	"mercator-hq/aegis/pkg/detect"
	"mercator-hq/aegis/pkg/knowledge"
)

// Answer returns the canned reply for a governance question. Topics are
// tried in table order; the default answer covers everything else.
func (c *Composer) Answer(question string) knowledge.Answer {
	pack := c.pack.Current()
	if pack == nil {
		return knowledge.Answer{
			Topic:      GuidanceGeneral,
			Text:       "I cannot provide specific advice on this topic. Please consult with your compliance team.",
			Confidence: 0.5,
			Sources:    []string{},
		}
	}

	q := detect.Normalize(question)
	for _, a := range pack.Advisory.Answers {
		if detect.NewTermSet(a.Keywords).Any(q) {
			return a
		}
	}
	return pack.Advisory.DefaultAnswer
}
