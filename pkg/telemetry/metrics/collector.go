package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/aegis/pkg/config"
	"mercator-hq/aegis/pkg/pipeline"
)

// Collector owns every Prometheus metric the service exports. It implements
// pipeline.Observer so the governance pipeline can report into it directly.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	stages    *StageMetrics
	decisions *DecisionMetrics
	http      *HTTPMetrics

	// frameworks bounds the framework label, which comes from the
	// knowledge pack and can grow with it.
	frameworks *CardinalityLimiter
}

var _ pipeline.Observer = (*Collector)(nil)

// NewCollector creates a collector registering into registry, or into a
// fresh registry when nil. Go runtime and process collectors are included.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = prometheus.DefBuckets
	}
	if len(cfg.RiskScoreBuckets) == 0 {
		cfg.RiskScoreBuckets = prometheus.LinearBuckets(0.1, 0.1, 10)
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Collector{
		config:     cfg,
		registry:   registry,
		stages:     NewStageMetrics(cfg, registry),
		decisions:  NewDecisionMetrics(cfg, registry),
		http:       NewHTTPMetrics(cfg, registry),
		frameworks: NewCardinalityLimiter(100),
	}
}

// ObserveStage records one pipeline stage.
func (c *Collector) ObserveStage(stage, outcome string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.stages.Record(stage, outcome, duration)
}

// ObserveDecision records the final outcome of one governance run.
func (c *Collector) ObserveDecision(resp *pipeline.Response) {
	if !c.config.Enabled || resp == nil {
		return
	}

	risk := resp.RiskAssessment
	c.decisions.RecordDecision(string(risk.Level), string(resp.ComplianceStatus), resp.Blocked, resp.Duration)
	c.decisions.RecordRisk(risk.Score)
	for _, cat := range risk.Categories {
		c.decisions.RecordCategory(cat.Category)
	}
	for _, f := range resp.ReviewFlags {
		c.decisions.RecordReviewFlag(f.Stage, string(f.Priority))
	}
	if resp.Policy != nil {
		if resp.Policy.Fallback {
			c.decisions.RecordPolicyFallback()
		}
		for _, fw := range resp.Policy.Frameworks {
			if !c.frameworks.Allow(fw) {
				fw = "other"
			}
			c.decisions.RecordFramework(fw)
		}
	}
	if !resp.Summary.Stored {
		c.decisions.RecordPersistenceFailure()
	}
}

// EvidenceSource exposes recorder counters.
type EvidenceSource interface {
	Written() int64
	Failed() int64
}

// RegisterEvidence exports the recorder's write counters. The values are
// read at scrape time.
func (c *Collector) RegisterEvidence(src EvidenceSource) {
	c.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "audit_records_written_total",
			Help:      "Audit records persisted by the recorder",
		}, func() float64 { return float64(src.Written()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "audit_records_failed_total",
			Help:      "Audit records the recorder failed to persist",
		}, func() float64 { return float64(src.Failed()) }),
	)
}

// QueueSource exposes the pending review queue depth.
type QueueSource interface {
	Len() int
}

// RegisterReviewQueue exports the number of pending review flags.
func (c *Collector) RegisterReviewQueue(q QueueSource) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: c.config.Namespace,
		Subsystem: c.config.Subsystem,
		Name:      "review_queue_pending",
		Help:      "Review flags awaiting a reviewer",
	}, func() float64 { return float64(q.Len()) }))
}

// HTTP returns the HTTP server metrics.
func (c *Collector) HTTP() *HTTPMetrics {
	return c.http
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter caps the number of distinct values admitted for a
// label. Values past the cap should be folded into "other".
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting maxCardinality values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is, or can become, one of the admitted values.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	_, exists := cl.current[value]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the number of admitted values.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
