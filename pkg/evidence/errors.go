package evidence

import (
	"errors"
	"fmt"
)

// ErrDuplicateRecord is returned when a record id is stored twice. Audit
// records are append-only, so a second write is always a caller bug.
var ErrDuplicateRecord = errors.New("audit record already exists")

// StorageError wraps a failure of an audit storage backend.
type StorageError struct {
	Backend   string // "memory", "sqlite", "postgres"
	Operation string // "store", "query", "count", "delete", ...
	Cause     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s storage: %s failed: %v", e.Backend, e.Operation, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// NewStorageError creates a StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// QueryError reports a query that was rejected or failed to run.
type QueryError struct {
	Query *Query
	Cause error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("audit query: %v", e.Cause)
}

func (e *QueryError) Unwrap() error { return e.Cause }

// NewQueryError creates a QueryError.
func NewQueryError(query *Query, cause error) *QueryError {
	return &QueryError{Query: query, Cause: cause}
}

// RecorderError reports a record that could not be built or persisted. The
// governance decision it describes is unaffected.
type RecorderError struct {
	RecordID string
	Cause    error
}

func (e *RecorderError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("audit recorder: %v", e.Cause)
	}
	return fmt.Sprintf("audit recorder: record %s: %v", e.RecordID, e.Cause)
}

func (e *RecorderError) Unwrap() error { return e.Cause }

// NewRecorderError creates a RecorderError.
func NewRecorderError(recordID string, cause error) *RecorderError {
	return &RecorderError{RecordID: recordID, Cause: cause}
}

// RetentionError reports a failed prune. Days is the horizon that was being
// enforced, 0 when records were selected by their own retention_end.
type RetentionError struct {
	Days  int
	Cause error
}

func (e *RetentionError) Error() string {
	if e.Days == 0 {
		return fmt.Sprintf("retention: %v", e.Cause)
	}
	return fmt.Sprintf("retention (%d days): %v", e.Days, e.Cause)
}

func (e *RetentionError) Unwrap() error { return e.Cause }

// NewRetentionError creates a RetentionError.
func NewRetentionError(days int, cause error) *RetentionError {
	return &RetentionError{Days: days, Cause: cause}
}

// ExportError reports a failure to encode records.
type ExportError struct {
	Format  string // "json", "csv"
	Records int
	Cause   error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("%s export of %d records: %v", e.Format, e.Records, e.Cause)
}

func (e *ExportError) Unwrap() error { return e.Cause }

// NewExportError creates an ExportError.
func NewExportError(format string, records int, cause error) *ExportError {
	return &ExportError{Format: format, Records: records, Cause: cause}
}

// SinkError reports a failure to deliver an export to its destination.
type SinkError struct {
	Sink     string // "file", "s3", "gcs"
	Location string
	Cause    error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("%s sink: write %s: %v", e.Sink, e.Location, e.Cause)
}

func (e *SinkError) Unwrap() error { return e.Cause }

// NewSinkError creates a SinkError.
func NewSinkError(sink, location string, cause error) *SinkError {
	return &SinkError{Sink: sink, Location: location, Cause: cause}
}
