package storage

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/aegis/pkg/evidence"
)

func TestPostgresStorage_Store(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStorage(db)
	record := newRecord("audit_1", "sess-1", 0)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_records ("+insertColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)")).
		WithArgs("audit_1", "req-audit_1", "sess-1", "user-sess-1", "low", "compliant", false, 0.2,
			record.Timestamp.UnixNano(), record.RetentionEnd.UnixNano(), record.RecordedAt.UnixNano(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, store.Store(context.Background(), record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_StoreError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_records")).
		WillReturnError(errors.New("connection reset"))

	err = NewPostgresStorage(db).Store(context.Background(), newRecord("audit_2", "s", 0))

	var serr *evidence.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "postgres", serr.Backend)
	assert.Equal(t, "store", serr.Operation)
}

func TestPostgresStorage_QueryBySession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	first, _ := json.Marshal(newRecord("a", "sess-9", 0))
	second, _ := json.Marshal(newRecord("b", "sess-9", time.Minute))
	rows := sqlmock.NewRows([]string{"record"}).AddRow(first).AddRow(second)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT record FROM audit_records WHERE session_id = $1 ORDER BY timestamp_ns ASC, id ASC")).
		WithArgs("sess-9").
		WillReturnRows(rows)

	records, err := NewPostgresStorage(db).QueryBySession(context.Background(), "sess-9")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, "b", records[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_QueryRangeAndCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStorage(db)
	start, end := base, base.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT record FROM audit_records WHERE timestamp_ns >= $1 AND timestamp_ns <= $2 ORDER BY timestamp_ns ASC")).
		WithArgs(start.UnixNano(), end.UnixNano()).
		WillReturnRows(sqlmock.NewRows([]string{"record"}))

	records, err := store.QueryRange(context.Background(), start, end)
	require.NoError(t, err)
	assert.Empty(t, records)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_records WHERE risk_level = $1 AND anomaly_detected = $2")).
		WithArgs("high", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := store.Count(context.Background(), &evidence.Query{RiskLevel: "high", AnomalousOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_OffsetWithoutLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY timestamp_ns DESC, id DESC LIMIT ALL OFFSET 20")).
		WillReturnRows(sqlmock.NewRows([]string{"record"}))

	_, err = NewPostgresStorage(db).Query(context.Background(), &evidence.Query{Offset: 20})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_DeleteExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := base
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_records WHERE retention_end_ns <= $1")).
		WithArgs(cutoff.UnixNano()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	deleted, err := NewPostgresStorage(db).Delete(context.Background(), &evidence.Query{ExpiredBefore: &cutoff})
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}

func TestPostgresStorage_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS audit_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewPostgresStorage(db).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
