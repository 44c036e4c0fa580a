// Package telemetry groups the observability packages of the Aegis
// governance service.
//
// # Components
//
//   - logging: slog setup with redaction of prompts, secrets and PII
//   - metrics: Prometheus collectors for pipeline stages, decisions and HTTP
//   - tracing: OpenTelemetry spans exported over OTLP/gRPC
//   - health: liveness, readiness and version probes
//
// # Usage
//
//	cfg := config.MustGetConfig()
//	logger, err := logging.Setup(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//	    return err
//	}
//	defer logger.Shutdown()
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	p := pipeline.New(stages, pcfg,
//	    pipeline.WithObserver(collector),
//	    pipeline.WithTracer(tracer),
//	)
//
// # Privacy
//
// Raw prompts and responses never reach logs, metric labels or span
// attributes. Audit records carry SHA-256 hashes instead, and the log
// handler redacts emails, SSNs, card numbers and credential-looking keys
// that slip into attributes.
package telemetry
