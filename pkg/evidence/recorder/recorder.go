package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/aegis/pkg/evidence"
	"mercator-hq/aegis/pkg/evidence/retention"
	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/knowledge"
)

// StageName identifies the recorder in audit trails.
const StageName = "audit_logging"

// Default anomaly thresholds, used when no pack is loaded.
const (
	DefaultMaxPromptLength = 1000
	DefaultMinDuration     = 50 * time.Millisecond
)

// Config contains configuration for the audit recorder.
type Config struct {
	// Async enqueues records for a background writer instead of writing
	// them inline.
	Async bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds a single storage write and the wait for buffer
	// space. Default: 5 seconds
	WriteTimeout time.Duration

	// StorageLocation is reported in summaries, e.g. "sqlite" or "postgres".
	StorageLocation string
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Async:           true,
		AsyncBuffer:     1000,
		WriteTimeout:    5 * time.Second,
		StorageLocation: "memory",
	}
}

// Entry carries everything the pipeline produced for one request. Policy,
// Audit and Advisory are nil when the screener blocked the request.
type Entry struct {
	Request  governance.Request
	Risk     governance.RiskAssessment
	Policy   *governance.PolicyDecision
	Audit    *governance.AuditResult
	Advisory *governance.AdvisoryGuidance
	Response string
	Blocked  bool
	Duration time.Duration
}

// Recorder turns pipeline outcomes into audit records.
type Recorder struct {
	storage    evidence.Storage
	pack       knowledge.Provider
	config     *Config
	recordChan chan *evidence.AuditRecord
	wg         sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
	now        func() time.Time

	written atomic.Int64
	failed  atomic.Int64
}

// New creates a recorder. In async mode a background worker is started;
// call Close to drain it.
func New(storage evidence.Storage, pack knowledge.Provider, config *Config) *Recorder {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = defaults.AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.StorageLocation == "" {
		config.StorageLocation = defaults.StorageLocation
	}

	r := &Recorder{
		storage: storage,
		pack:    pack,
		config:  config,
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "evidence.recorder"),
		now:     time.Now,
	}

	if config.Async {
		r.recordChan = make(chan *evidence.AuditRecord, config.AsyncBuffer)
		r.wg.Add(1)
		go r.worker()
	}

	r.logger.Info("Audit recorder initialized",
		"async", config.Async,
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
		"storage_location", config.StorageLocation,
	)
	return r
}

// Record builds and persists the audit record for e. It never fails: a
// persistence problem is logged and reported through an error-tagged id.
func (r *Recorder) Record(ctx context.Context, e Entry) evidence.Summary {
	record := r.Build(e)

	if err := r.persist(ctx, record); err != nil {
		r.failed.Add(1)
		perr := governance.NewPersistenceError(record.ID, err)
		r.logger.Error("Failed to persist audit record",
			"record_id", record.ID,
			"request_id", record.RequestID,
			"error", perr,
		)
		summary := summarize(record, r.config.StorageLocation)
		summary.ID = ErrorID(record.RecordedAt)
		summary.Stored = false
		return summary
	}

	summary := summarize(record, r.config.StorageLocation)
	summary.Stored = true
	return summary
}

// Build assembles the audit record without persisting it.
func (r *Recorder) Build(e Entry) *evidence.AuditRecord {
	recordedAt := r.now().UTC()
	ts := e.Request.Timestamp.UTC()
	if e.Request.Timestamp.IsZero() {
		ts = recordedAt
	}

	var pack *knowledge.Pack
	if r.pack != nil {
		pack = r.pack.Current()
	}

	record := &evidence.AuditRecord{
		ID:             NewID(ts),
		RequestID:      e.Request.ID,
		SessionID:      e.Request.SessionID,
		UserID:         e.Request.UserID,
		Role:           e.Request.Role,
		Timestamp:      ts,
		RecordedAt:     recordedAt,
		DurationMs:     e.Duration.Milliseconds(),
		PromptHash:     HashString(e.Request.Prompt),
		PromptLength:   len([]rune(e.Request.Prompt)),
		ResponseHash:   HashString(e.Response),
		ResponseLength: len([]rune(e.Response)),
		Blocked:        e.Blocked,
		RiskScore:      e.Risk.Score,
		RiskLevel:      e.Risk.Level,
		Action:         e.Risk.Action,
		Risk:           e.Risk,
		Policy:         e.Policy,
		Audit:          e.Audit,
		Advisory:       e.Advisory,
	}
	if e.Policy != nil {
		record.Role = e.Policy.Role
	}
	record.ComplianceStatus = complianceStatus(e)

	record.Anomalies = DetectAnomalies(pack, record, e.Duration)
	record.AnomalyDetected = len(record.Anomalies) > 0

	var tables *knowledge.RetentionTables
	if pack != nil {
		tables = &pack.Retention
		record.PackVersion = pack.Version
	}
	decision := retention.Compute(tables, retention.Hints(&e.Request, &e.Risk, e.Policy), ts)
	record.Frameworks = decision.Frameworks
	record.RetentionDays = decision.Days
	record.RetentionEnd = decision.End

	digest, err := CanonicalDigest(record)
	if err != nil {
		r.logger.Warn("Failed to compute record digest", "record_id", record.ID, "error", err)
	}
	record.Digest = digest
	return record
}

// DetectAnomalies applies the rule-based anomaly checks to a record.
func DetectAnomalies(pack *knowledge.Pack, record *evidence.AuditRecord, duration time.Duration) []string {
	maxLen := DefaultMaxPromptLength
	minDuration := DefaultMinDuration
	if pack != nil {
		if v := pack.Retention.Anomalies.MaxPromptLength; v > 0 {
			maxLen = v
		}
		if v := pack.Retention.Anomalies.MinDurationMs; v > 0 {
			minDuration = time.Duration(v) * time.Millisecond
		}
	}

	anomalies := []string{}
	if record.RiskLevel == governance.RiskHigh {
		anomalies = append(anomalies, evidence.AnomalyHighRisk)
	}
	if record.ComplianceStatus == governance.StatusNonCompliant {
		anomalies = append(anomalies, evidence.AnomalyPolicyViolation)
	}
	if record.PromptLength > maxLen {
		anomalies = append(anomalies, evidence.AnomalyLargeRequest)
	}
	if duration < minDuration {
		anomalies = append(anomalies, evidence.AnomalyRapidRequest)
	}
	return anomalies
}

// NewID returns an id of the form audit_YYYYMMDD_HHMMSS_<8hex>.
func NewID(ts time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("audit_%s_%s", ts.UTC().Format("20060102_150405"), suffix)
}

// ErrorID returns the id reported when a record could not be persisted.
func ErrorID(ts time.Time) string {
	return "error_" + ts.UTC().Format("20060102_150405")
}

func complianceStatus(e Entry) governance.ComplianceStatus {
	switch {
	case e.Audit != nil:
		return e.Audit.Status
	case e.Blocked:
		return governance.StatusBlocked
	default:
		return governance.StatusNonCompliant
	}
}

func summarize(record *evidence.AuditRecord, location string) evidence.Summary {
	return evidence.Summary{
		ID:               record.ID,
		AnomalyDetected:  record.AnomalyDetected,
		Anomalies:        record.Anomalies,
		ComplianceStatus: record.ComplianceStatus,
		Frameworks:       record.Frameworks,
		RetentionDays:    record.RetentionDays,
		RetentionEnd:     record.RetentionEnd,
		StorageLocation:  location,
	}
}

// persist writes inline or enqueues, depending on configuration.
func (r *Recorder) persist(ctx context.Context, record *evidence.AuditRecord) error {
	if r.storage == nil {
		return fmt.Errorf("no storage configured")
	}
	if !r.config.Async {
		return r.write(ctx, record)
	}

	select {
	case <-r.done:
		return evidence.NewRecorderError(record.ID, context.Canceled)
	default:
	}

	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r.recordChan <- record:
		return nil
	case <-timer.C:
		r.logger.Error("Audit record channel full, dropping record",
			"record_id", record.ID,
			"channel_capacity", r.config.AsyncBuffer,
		)
		return evidence.NewRecorderError(record.ID, context.DeadlineExceeded)
	case <-r.done:
		return evidence.NewRecorderError(record.ID, context.Canceled)
	case <-ctx.Done():
		return evidence.NewRecorderError(record.ID, ctx.Err())
	}
}

func (r *Recorder) write(ctx context.Context, record *evidence.AuditRecord) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, record); err != nil {
		return err
	}
	r.written.Add(1)

	duration := time.Since(start)
	r.logger.Debug("Audit record written",
		"record_id", record.ID,
		"request_id", record.RequestID,
		"duration_ms", duration.Milliseconds(),
	)
	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("Slow audit write",
			"record_id", record.ID,
			"duration_ms", duration.Milliseconds(),
		)
	}
	return nil
}

// worker drains the channel until Close, then flushes what is left.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeAsync(record)
		case <-r.done:
			for {
				select {
				case record := <-r.recordChan:
					r.writeAsync(record)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeAsync(record *evidence.AuditRecord) {
	if err := r.write(context.Background(), record); err != nil {
		r.failed.Add(1)
		r.logger.Error("Failed to store audit record",
			"record_id", record.ID,
			"request_id", record.RequestID,
			"error", governance.NewPersistenceError(record.ID, err),
		)
	}
}

// Written returns the number of records stored successfully.
func (r *Recorder) Written() int64 {
	return r.written.Load()
}

// Failed returns the number of records that could not be stored.
func (r *Recorder) Failed() int64 {
	return r.failed.Load()
}

// Close stops accepting records and waits for queued writes.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.logger.Info("Audit recorder shut down",
			"written", r.written.Load(),
			"failed", r.failed.Load(),
		)
	})
	return nil
}
