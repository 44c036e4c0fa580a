// Package tracing sets up OpenTelemetry tracing for the governance service.
//
// New returns a Tracer that exports over OTLP/gRPC when enabled and a noop
// tracer otherwise. The pipeline opens a root span per request and one
// child span per stage:
//
//	governance.process
//	├── governance.risk_screening
//	├── governance.policy_enforcement
//	├── governance.generation
//	├── governance.output_audit
//	├── governance.advisory
//	└── governance.audit_logging
//
// Span attributes use the aegis.* namespace and carry identifiers, scores
// and statuses only. Prompt and response text never leave the process
// through traces.
//
// Incoming W3C traceparent headers are honored by Middleware, and the
// trace ID is echoed to callers in X-Trace-ID. Outbound calls to the
// moderation service and review flag messages carry the context onward
// through Inject and InjectToMap.
package tracing
