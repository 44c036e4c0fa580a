// Package health serves liveness, readiness and version probes.
//
// Liveness never touches dependencies. Readiness runs the registered checks
// concurrently, each bounded by the checker timeout:
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("audit_store", func(ctx context.Context) error {
//	    _, err := store.Count(ctx, &evidence.Query{})
//	    return err
//	})
//	checker.RegisterOptionalCheck("review_emitter", pingPubSub)
//
// The aggregate is "ready" when every check passes, "degraded" when only
// optional checks fail, and "unhealthy" (503) when a critical check fails.
package health
