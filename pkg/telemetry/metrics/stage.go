package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/aegis/pkg/config"
)

// StageMetrics tracks pipeline stages.
//
// Metrics:
//   - aegis_stage_duration_seconds{stage,outcome}
//   - aegis_stage_total{stage,outcome}
type StageMetrics struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
}

// NewStageMetrics creates and registers stage metrics.
func NewStageMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StageMetrics {
	sm := &StageMetrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stage_duration_seconds",
				Help:      "Duration of governance pipeline stages in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"stage", "outcome"},
		),
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stage_total",
				Help:      "Governance pipeline stage executions by outcome",
			},
			[]string{"stage", "outcome"},
		),
	}
	registry.MustRegister(sm.duration, sm.total)
	return sm
}

// Record records one stage execution.
func (sm *StageMetrics) Record(stage, outcome string, d time.Duration) {
	sm.duration.WithLabelValues(stage, outcome).Observe(d.Seconds())
	sm.total.WithLabelValues(stage, outcome).Inc()
}
