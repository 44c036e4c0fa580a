// Package logging configures the process-wide slog logger.
//
// Every component logs through slog.Default().With("component", ...). Setup
// replaces the default with a handler chain that adds request correlation
// fields from the context, redacts PII, and optionally buffers writes:
//
//	logger, err := logging.Setup(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//	    return err
//	}
//	defer logger.Shutdown()
//
// # Redaction
//
// With RedactPII enabled, prompt and response attributes are reduced to
// their length, credential-like keys are masked, and string values are
// scrubbed for emails, card numbers, SSNs, phone numbers, bearer tokens and
// API keys. Custom patterns from configuration run after the built-ins.
//
// # Context
//
// WithRequestID, WithSessionID and WithUserID store correlation fields that
// the *Context logging methods emit automatically, along with the trace and
// span IDs of any active OpenTelemetry span.
package logging
