package review

import (
	"context"
	"errors"
	"log/slog"

	"mercator-hq/aegis/pkg/governance"
)

// Emitter delivers review flags.
type Emitter interface {
	Emit(ctx context.Context, flag governance.ReviewFlag) error
}

// LogEmitter writes each flag as a structured log record.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a log emitter.
func NewLogEmitter() *LogEmitter {
	return &LogEmitter{logger: slog.Default().With("component", "review")}
}

// Emit implements Emitter.
func (e *LogEmitter) Emit(ctx context.Context, flag governance.ReviewFlag) error {
	e.logger.InfoContext(ctx, "Review flag raised",
		"flag_id", flag.ID,
		"stage", flag.Stage,
		"request_id", flag.RequestID,
		"priority", flag.Priority,
		"reason", flag.Reason,
	)
	return nil
}

// MultiEmitter sends each flag to every emitter. One failing emitter does
// not stop the others.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates a fan-out emitter.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit implements Emitter. The returned error joins every failure.
func (m *MultiEmitter) Emit(ctx context.Context, flag governance.ReviewFlag) error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Emit(ctx, flag); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
