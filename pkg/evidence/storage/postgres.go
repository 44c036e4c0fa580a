package storage

import (
	"context"
	"database/sql"
	"log/slog"

	_ "github.com/lib/pq"

	"mercator-hq/aegis/pkg/evidence"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS audit_records (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL,
    session_id TEXT,
    user_id TEXT,
    risk_level TEXT NOT NULL,
    compliance_status TEXT NOT NULL,
    anomaly_detected BOOLEAN NOT NULL,
    risk_score DOUBLE PRECISION NOT NULL,
    timestamp_ns BIGINT NOT NULL,
    retention_end_ns BIGINT NOT NULL,
    recorded_ns BIGINT NOT NULL,
    record JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_records(timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_records(session_id);
CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_records(user_id);
CREATE INDEX IF NOT EXISTS idx_audit_retention_end ON audit_records(retention_end_ns);
`

// PostgresStorage implements evidence.Storage using PostgreSQL.
type PostgresStorage struct {
	*sqlStore
}

// NewPostgresStorage wraps an open database handle. The schema is not
// created; call EnsureSchema or use OpenPostgres.
func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{
		sqlStore: &sqlStore{
			db:      db,
			dialect: postgresDialect,
			logger:  slog.Default().With("component", "evidence.storage.postgres"),
		},
	}
}

// OpenPostgres connects to dsn and creates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, evidence.NewStorageError("postgres", "open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, evidence.NewStorageError("postgres", "ping", err)
	}

	s := NewPostgresStorage(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("PostgreSQL storage initialized")
	return s, nil
}

// EnsureSchema creates the audit table and indexes if missing.
func (s *PostgresStorage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return evidence.NewStorageError("postgres", "create_schema", err)
	}
	return nil
}
