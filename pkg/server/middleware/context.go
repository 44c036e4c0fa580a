package middleware

import (
	"context"
	"time"

	"mercator-hq/aegis/pkg/telemetry/logging"
)

type contextKey string

// StartTimeKey stores the request start time for latency calculation.
const StartTimeKey contextKey = "start_time"

// GetRequestID extracts the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	return logging.GetRequestID(ctx)
}

// GetStartTime extracts the request start time from the context.
// Returns zero time if not found.
func GetStartTime(ctx context.Context) time.Time {
	if startTime, ok := ctx.Value(StartTimeKey).(time.Time); ok {
		return startTime
	}
	return time.Time{}
}
