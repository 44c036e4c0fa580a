// Package retention decides how long an audit record must be kept and
// removes records once that horizon has passed.
//
// # Horizon
//
// Compute matches request hints (context values, screener compliance issues,
// policy frameworks) against the knowledge pack's framework triggers. The
// longest matching horizon wins; with no match the default of 365 days
// applies. The horizon always starts at the request timestamp.
//
//	d := retention.Compute(&pack.Retention, retention.Hints(req, risk, policy), req.Timestamp)
//	// d.Frameworks == ["gdpr", "sox"], d.Days == 2555
//
// # Pruning
//
// Pruner deletes records whose RetentionEnd is at or before now. Each record
// carries its own horizon, so there is no global age or count limit. With
// ArchiveBeforeDelete the expired records are first uploaded through an
// export sink; a failed upload aborts the prune.
//
//	pruner := retention.NewPruner(store, sink, &retention.Config{
//	    PruneSchedule:       "0 3 * * *",
//	    ArchiveBeforeDelete: true,
//	})
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
//
// The scheduler uses standard five-field cron expressions. An empty schedule
// leaves it idle; Prune can still be called directly.
package retention
