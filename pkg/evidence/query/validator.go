package query

import (
	"fmt"

	"mercator-hq/aegis/pkg/evidence"
	"mercator-hq/aegis/pkg/governance"
)

const (
	// DefaultLimit is the default number of records to return if not specified.
	DefaultLimit = 100

	// MaxLimit is the maximum number of records that can be returned in a single query.
	MaxLimit = 10000
)

// ValidSortFields contains the fields that can be used for sorting.
var ValidSortFields = map[string]bool{
	"timestamp":     true,
	"recorded_at":   true,
	"risk_score":    true,
	"retention_end": true,
}

// ValidSortOrders contains the valid sort orders.
var ValidSortOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

var validLevels = map[string]bool{
	string(governance.RiskLow):    true,
	string(governance.RiskMedium): true,
	string(governance.RiskHigh):   true,
}

var validStatuses = map[string]bool{
	string(governance.StatusCompliant):    true,
	string(governance.StatusNeedsReview):  true,
	string(governance.StatusNonCompliant): true,
	string(governance.StatusBlocked):      true,
}

// Validator checks queries against configured page limits. The zero value
// uses DefaultLimit and MaxLimit.
type Validator struct {
	DefaultLimit int
	MaxLimit     int
}

// Validate validates a query using the package limits.
func Validate(q *evidence.Query) error {
	return Validator{}.Validate(q)
}

// ApplyDefaults applies the package defaults to a query.
func ApplyDefaults(q *evidence.Query) {
	Validator{}.ApplyDefaults(q)
}

func (v Validator) limits() (def, max int) {
	def, max = v.DefaultLimit, v.MaxLimit
	if max <= 0 {
		max = MaxLimit
	}
	if def <= 0 {
		def = DefaultLimit
	}
	if def > max {
		def = max
	}
	return def, max
}

// Validate returns an error if any parameter of q is invalid.
func (v Validator) Validate(q *evidence.Query) error {
	_, maxLimit := v.limits()
	if q.Limit < 0 {
		return evidence.NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > maxLimit {
		return evidence.NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", maxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return evidence.NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}

	if q.SortBy != "" && !ValidSortFields[q.SortBy] {
		return evidence.NewQueryError(q, fmt.Errorf("invalid sort field: %s", q.SortBy))
	}
	if q.SortOrder != "" && !ValidSortOrders[q.SortOrder] {
		return evidence.NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}

	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return evidence.NewQueryError(q, fmt.Errorf("start_time must be before end_time"))
	}

	if q.RiskLevel != "" && !validLevels[q.RiskLevel] {
		return evidence.NewQueryError(q, fmt.Errorf("invalid risk level: %s (must be 'low', 'medium', or 'high')", q.RiskLevel))
	}
	if q.ComplianceStatus != "" && !validStatuses[q.ComplianceStatus] {
		return evidence.NewQueryError(q, fmt.Errorf("invalid compliance status: %s", q.ComplianceStatus))
	}

	return nil
}

// ApplyDefaults fills the limit and sort order when unset.
func (v Validator) ApplyDefaults(q *evidence.Query) {
	if q.Limit == 0 {
		q.Limit, _ = v.limits()
	}
	if q.SortBy == "" {
		q.SortBy = "timestamp"
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}
