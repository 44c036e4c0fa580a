package evidence

import (
	"context"
	"io"
	"time"

	"mercator-hq/aegis/pkg/governance"
)

// Anomaly names reported by the recorder.
const (
	AnomalyHighRisk        = "high_risk_request"
	AnomalyPolicyViolation = "policy_violation"
	AnomalyLargeRequest    = "large_request"
	AnomalyRapidRequest    = "rapid_request"
)

// AuditRecord is the immutable audit trail of one governance request. Raw
// prompt and response text are never stored.
type AuditRecord struct {
	// Identity
	ID        string `json:"id"`         // audit_YYYYMMDD_HHMMSS_<8hex>
	RequestID string `json:"request_id"` // From the pipeline
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`

	// Timestamps
	Timestamp  time.Time `json:"timestamp"`   // When the request was received
	RecordedAt time.Time `json:"recorded_at"` // When the record was built
	DurationMs int64     `json:"duration_ms"` // Pipeline processing time

	// Content fingerprints
	PromptHash     string `json:"prompt_hash"`
	PromptLength   int    `json:"prompt_length"`
	ResponseHash   string `json:"response_hash,omitempty"`
	ResponseLength int    `json:"response_length"`

	// Outcome
	Blocked          bool                        `json:"blocked"`
	RiskScore        float64                     `json:"risk_score"`
	RiskLevel        governance.RiskLevel        `json:"risk_level"`
	Action           governance.Action           `json:"action"`
	ComplianceStatus governance.ComplianceStatus `json:"compliance_status"`

	// Stage artifacts. Policy, audit and advisory are nil for blocked requests.
	Risk     governance.RiskAssessment    `json:"risk_assessment"`
	Policy   *governance.PolicyDecision   `json:"policy_decision,omitempty"`
	Audit    *governance.AuditResult      `json:"audit_result,omitempty"`
	Advisory *governance.AdvisoryGuidance `json:"advisory_guidance,omitempty"`

	// Compliance
	Frameworks      []string  `json:"frameworks"`
	Anomalies       []string  `json:"anomalies"`
	AnomalyDetected bool      `json:"anomaly_detected"`
	RetentionDays   int       `json:"retention_days"`
	RetentionEnd    time.Time `json:"retention_end"`

	// PackVersion is the knowledge pack version that produced the decision.
	PackVersion string `json:"pack_version"`

	// Digest is the SHA-256 of the record's canonical JSON with Digest empty.
	Digest string `json:"digest"`
}

// Summary is returned to the caller after recording.
type Summary struct {
	ID               string                      `json:"audit_id"`
	AnomalyDetected  bool                        `json:"anomaly_detected"`
	Anomalies        []string                    `json:"anomalies"`
	ComplianceStatus governance.ComplianceStatus `json:"compliance_status"`
	Frameworks       []string                    `json:"frameworks"`
	RetentionDays    int                         `json:"retention_period_days"`
	RetentionEnd     time.Time                   `json:"retention_end"`
	StorageLocation  string                      `json:"storage_location"`
	Stored           bool                        `json:"stored"`
}

// Query defines filter parameters for querying audit records.
type Query struct {
	// Time range over Timestamp
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Filters
	SessionID        string `json:"session_id,omitempty"`
	UserID           string `json:"user_id,omitempty"`
	RiskLevel        string `json:"risk_level,omitempty"`
	ComplianceStatus string `json:"compliance_status,omitempty"`
	AnomalousOnly    bool   `json:"anomalous_only,omitempty"`

	// ExpiredBefore selects records whose retention ended at or before it.
	ExpiredBefore *time.Time `json:"expired_before,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Sorting
	SortBy    string `json:"sort_by,omitempty"`    // "timestamp", "risk_score", "retention_end"
	SortOrder string `json:"sort_order,omitempty"` // "asc", "desc"
}

// Storage defines the interface for audit storage backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists a record. Records are append-only; storing an existing
	// id is an error.
	Store(ctx context.Context, record *AuditRecord) error

	// QueryBySession returns all records of a session, oldest first.
	QueryBySession(ctx context.Context, sessionID string) ([]*AuditRecord, error)

	// QueryRange returns all records with start <= Timestamp <= end, oldest
	// first.
	QueryRange(ctx context.Context, start, end time.Time) ([]*AuditRecord, error)

	// Query retrieves records matching the filters. Returns an empty slice
	// if nothing matches.
	Query(ctx context.Context, query *Query) ([]*AuditRecord, error)

	// QueryStream streams matching records. Both channels are closed when
	// the query completes; errCh carries at most one error.
	QueryStream(ctx context.Context, query *Query) (<-chan *AuditRecord, <-chan error, error)

	// Count returns the number of matching records.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes matching records. Used for retention enforcement only.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Exporter writes records in a specific format.
type Exporter interface {
	Export(ctx context.Context, records []*AuditRecord, w io.Writer) error
}
