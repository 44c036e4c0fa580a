// Package metrics exports Prometheus metrics for the governance service.
//
// A Collector is handed to the pipeline as its Observer. Each stage reports
// its duration and outcome, and each finished run reports its risk level,
// compliance status and review flags:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RegisterEvidence(rec)
//	p := pipeline.New(stages, pcfg, pipeline.WithObserver(collector))
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// Route handlers are wrapped with HTTP().Instrument so that request counts
// and latencies are labeled by route pattern rather than raw path.
//
// Example exposition:
//
//	# TYPE aegis_decisions_total counter
//	aegis_decisions_total{blocked="true",risk_level="high",status="blocked"} 3
//
// Framework names come from the knowledge pack, so that label is capped by a
// CardinalityLimiter; overflow is counted under "other".
package metrics
