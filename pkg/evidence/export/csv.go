package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"mercator-hq/aegis/pkg/evidence"
)

// CSVExporter exports audit records as CSV. Stage artifacts are flattened to
// their headline fields; the JSON export carries the full record.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
	}
}

// Header lists the CSV columns in order.
var Header = []string{
	"id", "request_id", "session_id", "user_id", "role",
	"timestamp", "duration_ms",
	"prompt_hash", "prompt_length", "response_hash", "response_length",
	"blocked", "risk_score", "risk_level", "action", "compliance_status",
	"frameworks", "anomalies", "retention_days", "retention_end",
	"pack_version", "digest",
}

// Export writes records to w in CSV format. List columns are joined with ";".
func (e *CSVExporter) Export(ctx context.Context, records []*evidence.AuditRecord, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(Header); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	for i, record := range records {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return evidence.NewExportError("csv", len(records), err)
			}
		}
		if err := writer.Write(recordToRow(record)); err != nil {
			return evidence.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return evidence.NewExportError("csv", len(records), err)
	}
	return nil
}

// ExportStream writes records from a channel, flushing every 100 rows.
func (e *CSVExporter) ExportStream(ctx context.Context, recordsCh <-chan *evidence.AuditRecord, w io.Writer) (int, error) {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(Header); err != nil {
			return 0, evidence.NewExportError("csv", 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return count, ctx.Err()

		case record, ok := <-recordsCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return count, evidence.NewExportError("csv", count, err)
				}
				return count, nil
			}

			if err := writer.Write(recordToRow(record)); err != nil {
				return count, evidence.NewExportError("csv", count, err)
			}
			count++

			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return count, evidence.NewExportError("csv", count, err)
				}
			}
		}
	}
}

func recordToRow(r *evidence.AuditRecord) []string {
	formatTime := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	}

	return []string{
		r.ID,
		r.RequestID,
		r.SessionID,
		r.UserID,
		r.Role,
		formatTime(r.Timestamp),
		strconv.FormatInt(r.DurationMs, 10),
		r.PromptHash,
		strconv.Itoa(r.PromptLength),
		r.ResponseHash,
		strconv.Itoa(r.ResponseLength),
		strconv.FormatBool(r.Blocked),
		strconv.FormatFloat(r.RiskScore, 'f', 4, 64),
		string(r.RiskLevel),
		string(r.Action),
		string(r.ComplianceStatus),
		strings.Join(r.Frameworks, ";"),
		strings.Join(r.Anomalies, ";"),
		strconv.Itoa(r.RetentionDays),
		formatTime(r.RetentionEnd),
		r.PackVersion,
		r.Digest,
	}
}
