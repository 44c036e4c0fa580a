package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/aegis/pkg/evidence"
)

// SQLite driver names.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverCGO     = "sqlite3" // github.com/mattn/go-sqlite3
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the database/sql driver. Default: DriverModernc
	Driver string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		Driver:       DriverModernc,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_records (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL,
    session_id TEXT,
    user_id TEXT,
    risk_level TEXT NOT NULL,
    compliance_status TEXT NOT NULL,
    anomaly_detected BOOLEAN NOT NULL,
    risk_score REAL NOT NULL,
    timestamp_ns INTEGER NOT NULL,
    retention_end_ns INTEGER NOT NULL,
    recorded_ns INTEGER NOT NULL,
    record TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_records(timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_records(session_id);
CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_records(user_id);
CREATE INDEX IF NOT EXISTS idx_audit_retention_end ON audit_records(retention_end_ns);
`

const sqliteInsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

const getSchemaVersion = `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;`

// SQLiteStorage implements evidence.Storage using SQLite.
type SQLiteStorage struct {
	*sqlStore
	config *SQLiteConfig
}

// NewSQLiteStorage opens the database, enables WAL mode if configured and
// creates the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	defaults := DefaultSQLiteConfig()
	if config == nil {
		config = defaults
	}
	if config.Driver == "" {
		config.Driver = defaults.Driver
	}
	if config.Driver != DriverModernc && config.Driver != DriverCGO {
		return nil, evidence.NewStorageError("sqlite", "open", fmt.Errorf("unknown driver %q", config.Driver))
	}

	logger := slog.Default().With("component", "evidence.storage.sqlite")

	db, err := sql.Open(config.Driver, config.Path)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "open", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	s := &SQLiteStorage{
		sqlStore: &sqlStore{db: db, dialect: sqliteDialect, logger: logger},
		config:   config,
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return evidence.NewStorageError("sqlite", "enable_wal", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return evidence.NewStorageError("sqlite", "set_busy_timeout", err)
	}
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return evidence.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(sqliteInsertSchemaVersion, SchemaVersion); err != nil {
		return evidence.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(getSchemaVersion).Scan(&version); err != nil {
		return evidence.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return evidence.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}
