package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Sampler names accepted in telemetry.tracing.sampler.
const (
	SamplerAlways      = "always"
	SamplerNever       = "never"
	SamplerRatio       = "ratio"
	SamplerParentBased = "parent_based"
)

// createSampler builds the sampler for strategy.
//
// ratio samples by trace ID hash, ignoring the caller's decision.
// parent_based follows an incoming traceparent's sampled flag and falls back
// to the ratio for new traces, which keeps a gateway in front of the service
// in control.
func createSampler(strategy string, ratio float64) (sdktrace.Sampler, error) {
	switch strategy {
	case SamplerAlways:
		return sdktrace.AlwaysSample(), nil
	case SamplerNever:
		return sdktrace.NeverSample(), nil
	case SamplerRatio, SamplerParentBased:
		if ratio < 0.0 || ratio > 1.0 {
			return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
		}
		base := sdktrace.TraceIDRatioBased(ratio)
		if strategy == SamplerParentBased {
			return sdktrace.ParentBased(base), nil
		}
		return base, nil
	default:
		return nil, fmt.Errorf("unknown sampler strategy: %s (valid: always, never, ratio, parent_based)", strategy)
	}
}
