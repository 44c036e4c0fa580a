package knowledge

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// WindowEvaluator decides which risk windows are active at a given time.
// Predicates are compiled once; evaluation is safe for concurrent use.
type WindowEvaluator struct {
	windows  []Window
	programs []cel.Program
}

// NewWindowEvaluator compiles the predicate of every window.
func NewWindowEvaluator(windows []Window) (*WindowEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("year", cel.IntType),
		cel.Variable("month", cel.IntType),
		cel.Variable("day", cel.IntType),
		cel.Variable("weekday", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create window environment: %w", err)
	}

	ev := &WindowEvaluator{
		windows:  windows,
		programs: make([]cel.Program, len(windows)),
	}
	for i, w := range windows {
		if w.Name == "" {
			return nil, fmt.Errorf("window %d has no name", i)
		}
		ast, iss := env.Compile(w.When)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("window %q: invalid predicate: %w", w.Name, iss.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("window %q: predicate must be boolean, got %s", w.Name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", w.Name, err)
		}
		ev.programs[i] = prg
	}
	return ev, nil
}

// Active returns the windows whose predicate holds at t (evaluated in UTC),
// in table order.
func (ev *WindowEvaluator) Active(t time.Time) ([]Window, error) {
	if ev == nil {
		return nil, nil
	}
	t = t.UTC()
	vars := map[string]any{
		"year":    int64(t.Year()),
		"month":   int64(t.Month()),
		"day":     int64(t.Day()),
		"weekday": int64(t.Weekday()),
	}

	var active []Window
	for i, prg := range ev.programs {
		out, _, err := prg.Eval(vars)
		if err != nil {
			return nil, fmt.Errorf("window %q: evaluation failed: %w", ev.windows[i].Name, err)
		}
		on, ok := out.Value().(bool)
		if !ok {
			return nil, fmt.Errorf("window %q: predicate returned %T", ev.windows[i].Name, out.Value())
		}
		if on {
			active = append(active, ev.windows[i])
		}
	}
	return active, nil
}
