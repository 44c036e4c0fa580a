// Package evidence holds the append-only audit trail of the governance
// pipeline. Every processed request, including requests blocked by the
// screener, produces exactly one AuditRecord.
//
// # Architecture
//
// The evidence system consists of four layers:
//
//  1. Recorder - builds records, detects anomalies and computes retention
//  2. Storage - persists records (memory, SQLite, PostgreSQL)
//  3. Query - validates filters and pages through stored records
//  4. Retention and export - prune expired records, ship archives to file,
//     S3 or GCS sinks
//
// # Privacy
//
// Records never carry raw prompt or response text. The recorder stores
// SHA-256 hashes and lengths only, plus a canonical digest of the whole
// record computed over its RFC 8785 encoding so exported records can be
// verified independently.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
//	    Path: "data/audit.db",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	rec := recorder.New(store, pack, nil)
//	defer rec.Close()
//
//	summary := rec.Record(ctx, entry)
//
// # Querying
//
//	records, err := store.QueryBySession(ctx, "sess-123")
//	records, err = store.QueryRange(ctx, start, end)
//
// Failed writes are logged and surface only as an error-tagged summary id;
// they never alter the governance decision already returned to the caller.
package evidence
