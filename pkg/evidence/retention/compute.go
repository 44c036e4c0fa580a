package retention

import (
	"sort"
	"time"

	"mercator-hq/aegis/pkg/detect"
	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/knowledge"
)

// DefaultDays applies when no pack is loaded or no framework matches.
const DefaultDays = 365

// Decision is the retention outcome for one record.
type Decision struct {
	Frameworks []string
	Days       int
	End        time.Time
}

// Compute matches hints against each framework's triggers and returns the
// longest mandated horizon. The end is always at + Days.
func Compute(tables *knowledge.RetentionTables, hints []string, at time.Time) Decision {
	days := DefaultDays
	if tables != nil && tables.DefaultDays > 0 {
		days = tables.DefaultDays
	}

	var matched []string
	if tables != nil {
		normalized := make([]string, 0, len(hints))
		for _, h := range hints {
			if h != "" {
				normalized = append(normalized, detect.Normalize(h))
			}
		}
		for name, fw := range tables.Frameworks {
			if !triggered(fw.Triggers, normalized) {
				continue
			}
			matched = append(matched, name)
		}
		sort.Strings(matched)

		if len(matched) > 0 {
			days = 0
			for _, name := range matched {
				days = max(days, tables.Frameworks[name].Days)
			}
		}
	}

	if matched == nil {
		matched = []string{}
	}
	return Decision{
		Frameworks: matched,
		Days:       days,
		End:        at.AddDate(0, 0, days),
	}
}

func triggered(triggers, hints []string) bool {
	set := detect.NewTermSet(triggers)
	for _, h := range hints {
		if set.Any(h) {
			return true
		}
	}
	return false
}

// Hints collects the retention-relevant strings of a request: context keys
// with truthy values, string context values, screener compliance issues and
// categories, and policy frameworks.
func Hints(req *governance.Request, risk *governance.RiskAssessment, policy *governance.PolicyDecision) []string {
	var hints []string
	if req != nil {
		keys := make([]string, 0, len(req.Context))
		for k := range req.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if req.ContextBool(k) {
				hints = append(hints, k)
				continue
			}
			switch v := req.Context[k].(type) {
			case string:
				hints = append(hints, v)
			case []any:
				for _, item := range v {
					if s, ok := item.(string); ok {
						hints = append(hints, s)
					}
				}
			}
		}
	}
	if risk != nil {
		hints = append(hints, risk.ComplianceIssues...)
		for _, c := range risk.Categories {
			hints = append(hints, c.Terms...)
		}
	}
	if policy != nil {
		hints = append(hints, policy.Frameworks...)
	}
	return hints
}
