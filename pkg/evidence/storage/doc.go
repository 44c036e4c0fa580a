// Package storage provides backends for audit records.
//
//   - Memory: in-process map, used by tests and the one-shot CLI
//   - SQLite: embedded database for single-node deployments; the pure Go
//     driver (modernc.org/sqlite) is the default, the cgo driver
//     (github.com/mattn/go-sqlite3) is selectable
//   - PostgreSQL: shared database for multi-node deployments (lib/pq)
//
// The SQL backends store a handful of indexed columns for filtering plus the
// full record as JSON. Timestamps are stored as Unix nanoseconds so range
// filters compare numerically on every driver.
//
// # Thread Safety
//
// All backends are safe for concurrent use. Records are append-only; the
// only mutation is retention pruning through Delete.
package storage
