package moderation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mercator-hq/aegis/pkg/governance"
)

// Categories scored by every classifier.
const (
	CategoryHate     = "hate"
	CategoryViolence = "violence"
	CategorySexual   = "sexual"
	CategorySelfHarm = "self_harm"
)

// SourceFailSafe marks results forced to flagged after a failure.
const SourceFailSafe = "fail_safe"

// Classifier scores text for moderation categories.
type Classifier interface {
	Moderate(ctx context.Context, text string) (governance.ModerationResult, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, text string) (governance.ModerationResult, error)

// Moderate calls f.
func (f ClassifierFunc) Moderate(ctx context.Context, text string) (governance.ModerationResult, error) {
	return f(ctx, text)
}

// FailSafe is the result reported when classification did not complete.
func FailSafe() governance.ModerationResult {
	return governance.ModerationResult{
		Flagged:    true,
		Confidence: 0,
		Source:     SourceFailSafe,
	}
}

// Guard bounds every call of the wrapped classifier by a timeout. On any
// error it returns FailSafe together with an ExternalServiceError.
type Guard struct {
	next    Classifier
	timeout time.Duration
	logger  *slog.Logger
}

// NewGuard wraps next. A zero timeout leaves the caller's deadline in force.
func NewGuard(next Classifier, timeout time.Duration) *Guard {
	return &Guard{
		next:    next,
		timeout: timeout,
		logger:  slog.Default().With("component", "moderation"),
	}
}

// Moderate implements Classifier.
func (g *Guard) Moderate(ctx context.Context, text string) (governance.ModerationResult, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	type outcome struct {
		res governance.ModerationResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := g.next.Moderate(ctx, text)
		ch <- outcome{res, err}
	}()

	var out outcome
	select {
	case out = <-ch:
	case <-ctx.Done():
		out.err = ctx.Err()
	}

	if out.err != nil {
		if errors.Is(out.err, context.DeadlineExceeded) {
			out.err = errors.Join(governance.ErrTimeout, out.err)
		}
		g.logger.Warn("Moderation failed, treating content as flagged",
			"timeout", governance.IsTimeout(out.err),
			"error", out.err,
		)
		return FailSafe(), governance.NewExternalServiceError("moderation", "moderate", out.err)
	}
	return out.res, nil
}
