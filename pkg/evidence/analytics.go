package evidence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"mercator-hq/aegis/pkg/governance"
)

// TopUserLimit bounds the user activity list in Analytics.
const TopUserLimit = 5

// UserActivity counts the interactions of one user.
type UserActivity struct {
	UserID       string `json:"user_id"`
	Interactions int64  `json:"interactions"`
}

// Analytics aggregates audit records over a time window.
type Analytics struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`

	TotalInteractions int64            `json:"total_interactions"`
	ComplianceRate    float64          `json:"compliance_rate"`
	RiskDistribution  map[string]int64 `json:"risk_distribution"`
	StatusCounts      map[string]int64 `json:"compliance_status_counts"`
	AnomalyCounts     map[string]int64 `json:"anomaly_counts"`
	AnomalyDetections int64            `json:"anomaly_detections"`
	PolicyViolations  int64            `json:"policy_violations"`
	Blocked           int64            `json:"blocked"`

	AverageResponseTimeMs float64 `json:"average_response_time_ms"`

	TopUsers []UserActivity `json:"top_user_activities"`

	// FrameworkCompliance is the compliant share of records tagged with each
	// framework.
	FrameworkCompliance map[string]float64 `json:"compliance_frameworks"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Analyze streams the records with start <= Timestamp <= end and aggregates
// them. Counts for all risk levels and statuses are present even when zero.
func Analyze(ctx context.Context, storage Storage, start, end time.Time) (*Analytics, error) {
	if end.Before(start) {
		return nil, governance.NewValidationError("end_time", "end must not be before start")
	}

	a := &Analytics{
		Start: start.UTC(),
		End:   end.UTC(),
		RiskDistribution: map[string]int64{
			string(governance.RiskLow):    0,
			string(governance.RiskMedium): 0,
			string(governance.RiskHigh):   0,
		},
		StatusCounts: map[string]int64{
			string(governance.StatusCompliant):    0,
			string(governance.StatusNeedsReview):  0,
			string(governance.StatusNonCompliant): 0,
			string(governance.StatusBlocked):      0,
		},
		AnomalyCounts:       map[string]int64{},
		TopUsers:            []UserActivity{},
		FrameworkCompliance: map[string]float64{},
	}

	records, errCh, err := storage.QueryStream(ctx, &Query{StartTime: &a.Start, EndTime: &a.End})
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}

	var totalDuration int64
	users := map[string]int64{}
	fwTotal := map[string]int64{}
	fwCompliant := map[string]int64{}

	for r := range records {
		a.TotalInteractions++
		a.RiskDistribution[string(r.RiskLevel)]++
		a.StatusCounts[string(r.ComplianceStatus)]++
		totalDuration += r.DurationMs
		users[r.UserID]++

		if r.AnomalyDetected {
			a.AnomalyDetections++
		}
		for _, an := range r.Anomalies {
			a.AnomalyCounts[an]++
			if an == AnomalyPolicyViolation {
				a.PolicyViolations++
			}
		}
		if r.Blocked {
			a.Blocked++
		}

		compliant := r.ComplianceStatus == governance.StatusCompliant
		for _, fw := range r.Frameworks {
			fwTotal[fw]++
			if compliant {
				fwCompliant[fw]++
			}
		}
	}
	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("failed to stream audit records: %w", err)
	}

	if a.TotalInteractions > 0 {
		a.ComplianceRate = float64(a.StatusCounts[string(governance.StatusCompliant)]) / float64(a.TotalInteractions)
		a.AverageResponseTimeMs = float64(totalDuration) / float64(a.TotalInteractions)
	}
	for fw, n := range fwTotal {
		a.FrameworkCompliance[fw] = float64(fwCompliant[fw]) / float64(n)
	}

	for id, n := range users {
		a.TopUsers = append(a.TopUsers, UserActivity{UserID: id, Interactions: n})
	}
	sort.Slice(a.TopUsers, func(i, j int) bool {
		if a.TopUsers[i].Interactions != a.TopUsers[j].Interactions {
			return a.TopUsers[i].Interactions > a.TopUsers[j].Interactions
		}
		return a.TopUsers[i].UserID < a.TopUsers[j].UserID
	})
	if len(a.TopUsers) > TopUserLimit {
		a.TopUsers = a.TopUsers[:TopUserLimit]
	}

	a.GeneratedAt = time.Now().UTC()
	return a, nil
}
