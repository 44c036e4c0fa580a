package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mercator-hq/aegis/pkg/evidence"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	backend string
	// bind returns the placeholder for the n-th (1-based) argument.
	bind func(n int) string
	// unlimited is the LIMIT value meaning "no limit".
	unlimited string
}

var sqliteDialect = dialect{
	backend:   "sqlite",
	bind:      func(int) string { return "?" },
	unlimited: "-1",
}

var postgresDialect = dialect{
	backend:   "postgres",
	bind:      func(n int) string { return fmt.Sprintf("$%d", n) },
	unlimited: "ALL",
}

// sortColumns maps query sort fields to columns.
var sortColumns = map[string]string{
	"timestamp":     "timestamp_ns",
	"recorded_at":   "recorded_ns",
	"risk_score":    "risk_score",
	"retention_end": "retention_end_ns",
}

const insertColumns = "id, request_id, session_id, user_id, risk_level, compliance_status, anomaly_detected, risk_score, timestamp_ns, retention_end_ns, recorded_ns, record"

// sqlStore implements evidence.Storage on database/sql.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
}

func (s *sqlStore) Store(ctx context.Context, record *evidence.AuditRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return evidence.NewStorageError(s.dialect.backend, "marshal", err)
	}

	placeholders := make([]string, 12)
	for i := range placeholders {
		placeholders[i] = s.dialect.bind(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO audit_records (%s) VALUES (%s)", insertColumns, strings.Join(placeholders, ", "))

	_, err = s.db.ExecContext(ctx, query,
		record.ID, record.RequestID, record.SessionID, record.UserID,
		string(record.RiskLevel), string(record.ComplianceStatus), record.AnomalyDetected, record.RiskScore,
		record.Timestamp.UnixNano(), record.RetentionEnd.UnixNano(), record.RecordedAt.UnixNano(),
		string(payload),
	)
	if err != nil {
		return evidence.NewStorageError(s.dialect.backend, "store", err)
	}
	return nil
}

func (s *sqlStore) QueryBySession(ctx context.Context, sessionID string) ([]*evidence.AuditRecord, error) {
	return s.Query(ctx, &evidence.Query{SessionID: sessionID, SortBy: "timestamp", SortOrder: "asc"})
}

func (s *sqlStore) QueryRange(ctx context.Context, start, end time.Time) ([]*evidence.AuditRecord, error) {
	return s.Query(ctx, &evidence.Query{StartTime: &start, EndTime: &end, SortBy: "timestamp", SortOrder: "asc"})
}

func (s *sqlStore) Query(ctx context.Context, query *evidence.Query) ([]*evidence.AuditRecord, error) {
	sqlQuery, args := s.selectQuery(query)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, evidence.NewStorageError(s.dialect.backend, "query", err)
	}
	defer rows.Close()

	records := []*evidence.AuditRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, evidence.NewStorageError(s.dialect.backend, "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, evidence.NewStorageError(s.dialect.backend, "query", err)
	}
	return records, nil
}

func (s *sqlStore) QueryStream(ctx context.Context, query *evidence.Query) (<-chan *evidence.AuditRecord, <-chan error, error) {
	recordsCh := make(chan *evidence.AuditRecord, 100)
	errCh := make(chan error, 1)
	sqlQuery, args := s.selectQuery(query)

	go func() {
		defer close(recordsCh)
		defer close(errCh)

		rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			errCh <- evidence.NewStorageError(s.dialect.backend, "query_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			record, err := scanRecord(rows)
			if err != nil {
				errCh <- evidence.NewStorageError(s.dialect.backend, "scan", err)
				return
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- record:
			}
		}
		if err := rows.Err(); err != nil {
			errCh <- evidence.NewStorageError(s.dialect.backend, "query_stream", err)
		}
	}()

	return recordsCh, errCh, nil
}

func (s *sqlStore) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	where, args := s.buildWhereClause(query)
	sqlQuery := "SELECT COUNT(*) FROM audit_records" + where

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, evidence.NewStorageError(s.dialect.backend, "count", err)
	}
	return count, nil
}

func (s *sqlStore) Delete(ctx context.Context, query *evidence.Query) (int64, error) {
	where, args := s.buildWhereClause(query)
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_records"+where, args...)
	if err != nil {
		return 0, evidence.NewStorageError(s.dialect.backend, "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, evidence.NewStorageError(s.dialect.backend, "delete", err)
	}
	return count, nil
}

func (s *sqlStore) Close() error {
	if err := s.db.Close(); err != nil {
		return evidence.NewStorageError(s.dialect.backend, "close", err)
	}
	s.logger.Info("Audit storage closed")
	return nil
}

func (s *sqlStore) selectQuery(query *evidence.Query) (string, []any) {
	where, args := s.buildWhereClause(query)
	sqlQuery := "SELECT record FROM audit_records" + where

	column, ok := sortColumns[query.SortBy]
	if !ok {
		column = "timestamp_ns"
	}
	order := "DESC"
	if strings.EqualFold(query.SortOrder, "asc") {
		order = "ASC"
	}
	sqlQuery += fmt.Sprintf(" ORDER BY %s %s, id %s", column, order, order)

	switch {
	case query.Limit > 0:
		sqlQuery += fmt.Sprintf(" LIMIT %d", query.Limit)
	case query.Offset > 0:
		sqlQuery += " LIMIT " + s.dialect.unlimited
	}
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}
	return sqlQuery, args
}

// buildWhereClause returns " WHERE ..." (or "") and its arguments.
func (s *sqlStore) buildWhereClause(query *evidence.Query) (string, []any) {
	var conditions []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, s.dialect.bind(len(args))))
	}

	if query.StartTime != nil {
		add("timestamp_ns >= %s", query.StartTime.UnixNano())
	}
	if query.EndTime != nil {
		add("timestamp_ns <= %s", query.EndTime.UnixNano())
	}
	if query.ExpiredBefore != nil {
		add("retention_end_ns <= %s", query.ExpiredBefore.UnixNano())
	}
	if query.SessionID != "" {
		add("session_id = %s", query.SessionID)
	}
	if query.UserID != "" {
		add("user_id = %s", query.UserID)
	}
	if query.RiskLevel != "" {
		add("risk_level = %s", query.RiskLevel)
	}
	if query.ComplianceStatus != "" {
		add("compliance_status = %s", query.ComplianceStatus)
	}
	if query.AnomalousOnly {
		add("anomaly_detected = %s", true)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanRecord(rows *sql.Rows) (*evidence.AuditRecord, error) {
	var payload []byte
	if err := rows.Scan(&payload); err != nil {
		return nil, err
	}
	var record evidence.AuditRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("corrupt record payload: %w", err)
	}
	return &record, nil
}
