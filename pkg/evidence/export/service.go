package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"mercator-hq/aegis/pkg/evidence"
	"mercator-hq/aegis/pkg/governance"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Export statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Request selects the records of one export.
type Request struct {
	Start time.Time
	End   time.Time

	// UserID restricts the export to one user's records when set.
	UserID string

	// RequestedBy is the principal asking for the export.
	RequestedBy string

	// Format is "json" (default) or "csv".
	Format string
}

// Result describes a finished export.
type Result struct {
	ExportID    string    `json:"export_id"`
	Start       time.Time `json:"start_date"`
	End         time.Time `json:"end_date"`
	UserID      string    `json:"user_id,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	Format      string    `json:"format"`
	Status      string    `json:"status"`
	Location    string    `json:"file_location"`
	RecordCount int       `json:"record_count"`
	Frameworks  []string  `json:"compliance_frameworks"`
	ExportedAt  time.Time `json:"exported_at"`
}

// Service queries audit records over a window, encodes them and uploads the
// result to a sink.
type Service struct {
	storage evidence.Storage
	sink    Sink
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates an export service.
func NewService(storage evidence.Storage, sink Sink) *Service {
	return &Service{
		storage: storage,
		sink:    sink,
		logger:  slog.Default().With("component", "evidence.export"),
		now:     time.Now,
	}
}

// NewExportID returns a fresh export identifier.
func NewExportID() string {
	return "export_" + uuid.NewString()
}

// Export runs one export. Validation problems are returned as
// *governance.ValidationError; storage and sink failures are wrapped.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	format := req.Format
	if format == "" {
		format = FormatJSON
	}

	var exporter evidence.Exporter
	contentType := "application/json"
	switch format {
	case FormatJSON:
		exporter = NewJSONExporter(false)
	case FormatCSV:
		exporter = NewCSVExporter(true)
		contentType = "text/csv"
	default:
		return nil, governance.NewValidationError("format", fmt.Sprintf("unsupported export format %q", req.Format))
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return nil, governance.NewValidationError("start_date", "start and end are required")
	}
	if req.End.Before(req.Start) {
		return nil, governance.NewValidationError("end_date", "end must not be before start")
	}

	start, end := req.Start.UTC(), req.End.UTC()
	records, err := s.storage.Query(ctx, &evidence.Query{
		StartTime: &start,
		EndTime:   &end,
		UserID:    req.UserID,
		SortBy:    "timestamp",
		SortOrder: "asc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}

	var buf bytes.Buffer
	if err := exporter.Export(ctx, records, &buf); err != nil {
		return nil, err
	}

	id := NewExportID()
	location, err := s.sink.Put(ctx, id+"."+format, buf.Bytes(), contentType)
	if err != nil {
		s.logger.Error("Export upload failed",
			"export_id", id,
			"sink", s.sink.Name(),
			"error", err,
		)
		return nil, err
	}

	result := &Result{
		ExportID:    id,
		Start:       start,
		End:         end,
		UserID:      req.UserID,
		RequestedBy: req.RequestedBy,
		Format:      format,
		Status:      StatusCompleted,
		Location:    location,
		RecordCount: len(records),
		Frameworks:  frameworksOf(records),
		ExportedAt:  s.now().UTC(),
	}

	s.logger.Info("Audit export completed",
		"export_id", id,
		"records", result.RecordCount,
		"location", location,
		"requested_by", req.RequestedBy,
	)
	return result, nil
}

func frameworksOf(records []*evidence.AuditRecord) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for _, fw := range r.Frameworks {
			seen[fw] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for fw := range seen {
		out = append(out, fw)
	}
	sort.Strings(out)
	return out
}
