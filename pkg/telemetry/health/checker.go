package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// CheckFunc probes one dependency. It returns nil when the dependency is
// usable.
type CheckFunc func(ctx context.Context) error

// Status values reported by checks and by the aggregate.
const (
	StatusOK        = "ok"
	StatusReady     = "ready"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Status     string  `json:"status"`
	Message    string  `json:"message,omitempty"`
	Critical   bool    `json:"critical"`
	DurationMs float64 `json:"duration_ms"`
}

// HealthStatus is the aggregate reported by the probe endpoints.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ErrCheckTimeout is reported when a check does not return within the
// checker's timeout.
var ErrCheckTimeout = errors.New("health check timeout")

type registered struct {
	fn       CheckFunc
	critical bool
}

// Checker runs dependency checks for the readiness probe.
//
// A failing critical check (the audit store, the knowledge pack) makes the
// service unhealthy and fails readiness. A failing non-critical check (the
// review emitter, tracing export) only degrades it: the pipeline still
// decides and records, so traffic keeps flowing.
type Checker struct {
	mu           sync.RWMutex
	checks       map[string]registered
	checkTimeout time.Duration
	now          func() time.Time
}

// New creates a checker. A zero timeout means 5 seconds per check.
func New(checkTimeout time.Duration) *Checker {
	if checkTimeout == 0 {
		checkTimeout = 5 * time.Second
	}
	return &Checker{
		checks:       make(map[string]registered),
		checkTimeout: checkTimeout,
		now:          time.Now,
	}
}

// RegisterCheck registers a critical check, replacing any of the same name.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.register(name, check, true)
}

// RegisterOptionalCheck registers a check whose failure only degrades.
func (c *Checker) RegisterOptionalCheck(name string, check CheckFunc) {
	c.register(name, check, false)
}

func (c *Checker) register(name string, check CheckFunc, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registered{fn: check, critical: critical}
}

// Names returns the registered check names, sorted.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckLiveness reports that the process is serving. It runs no checks.
func (c *Checker) CheckLiveness(context.Context) HealthStatus {
	return HealthStatus{Status: StatusOK, Timestamp: c.now()}
}

// CheckReadiness runs every registered check concurrently.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]registered, len(c.checks))
	for name, r := range c.checks {
		checks[name] = r
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, r := range checks {
		wg.Add(1)
		go func(name string, r registered) {
			defer wg.Done()
			res := c.runCheck(ctx, r)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name, r)
	}
	wg.Wait()

	status := StatusReady
	for _, res := range results {
		if res.Status == StatusOK {
			continue
		}
		if res.Critical {
			status = StatusUnhealthy
			break
		}
		status = StatusDegraded
	}

	return HealthStatus{Status: status, Checks: results, Timestamp: c.now()}
}

func (c *Checker) runCheck(ctx context.Context, r registered) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.fn(checkCtx)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-checkCtx.Done():
		err = ErrCheckTimeout
	}

	res := CheckResult{
		Status:     StatusOK,
		Critical:   r.critical,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Message = err.Error()
	}
	return res
}
