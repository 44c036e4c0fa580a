package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/aegis/pkg/config"
)

// DecisionMetrics tracks governance outcomes.
//
// Metrics:
//   - aegis_decisions_total{risk_level,status,blocked}
//   - aegis_request_duration_seconds{blocked}
//   - aegis_risk_score
//   - aegis_risk_categories_total{category}
//   - aegis_review_flags_total{stage,priority}
//   - aegis_framework_applications_total{framework}
//   - aegis_policy_fallbacks_total
//   - aegis_persistence_failures_total
type DecisionMetrics struct {
	decisions      *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	riskScore      prometheus.Histogram
	categories     *prometheus.CounterVec
	reviewFlags    *prometheus.CounterVec
	frameworks     *prometheus.CounterVec
	fallbacks      prometheus.Counter
	persistFailure prometheus.Counter
}

// NewDecisionMetrics creates and registers decision metrics.
func NewDecisionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DecisionMetrics {
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}
	}

	dm := &DecisionMetrics{
		decisions: prometheus.NewCounterVec(
			opts("decisions_total", "Governance decisions by risk level and compliance status"),
			[]string{"risk_level", "status", "blocked"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "End-to-end governance run duration in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"blocked"},
		),
		riskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "risk_score",
			Help:      "Distribution of screener risk scores",
			Buckets:   cfg.RiskScoreBuckets,
		}),
		categories: prometheus.NewCounterVec(
			opts("risk_categories_total", "Risk categories triggered by the screener"),
			[]string{"category"},
		),
		reviewFlags: prometheus.NewCounterVec(
			opts("review_flags_total", "Review flags raised by stage and priority"),
			[]string{"stage", "priority"},
		),
		frameworks: prometheus.NewCounterVec(
			opts("framework_applications_total", "Compliance frameworks applied by the policy engine"),
			[]string{"framework"},
		),
		fallbacks:      prometheus.NewCounter(opts("policy_fallbacks_total", "Policy decisions that fell back to the restrictive default")),
		persistFailure: prometheus.NewCounter(opts("persistence_failures_total", "Governance runs whose audit record was not stored")),
	}

	registry.MustRegister(
		dm.decisions,
		dm.duration,
		dm.riskScore,
		dm.categories,
		dm.reviewFlags,
		dm.frameworks,
		dm.fallbacks,
		dm.persistFailure,
	)
	return dm
}

// RecordDecision records a completed run.
func (dm *DecisionMetrics) RecordDecision(level, status string, blocked bool, d time.Duration) {
	b := strconv.FormatBool(blocked)
	dm.decisions.WithLabelValues(level, status, b).Inc()
	if d > 0 {
		dm.duration.WithLabelValues(b).Observe(d.Seconds())
	}
}

// RecordRisk records a risk score.
func (dm *DecisionMetrics) RecordRisk(score float64) {
	dm.riskScore.Observe(score)
}

// RecordCategory records a triggered risk category.
func (dm *DecisionMetrics) RecordCategory(category string) {
	dm.categories.WithLabelValues(category).Inc()
}

// RecordReviewFlag records a raised review flag.
func (dm *DecisionMetrics) RecordReviewFlag(stage, priority string) {
	dm.reviewFlags.WithLabelValues(stage, priority).Inc()
}

// RecordFramework records an applied compliance framework.
func (dm *DecisionMetrics) RecordFramework(framework string) {
	dm.frameworks.WithLabelValues(framework).Inc()
}

// RecordPolicyFallback records a fallback policy decision.
func (dm *DecisionMetrics) RecordPolicyFallback() {
	dm.fallbacks.Inc()
}

// RecordPersistenceFailure records an audit record that was not stored.
func (dm *DecisionMetrics) RecordPersistenceFailure() {
	dm.persistFailure.Inc()
}
