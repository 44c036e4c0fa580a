package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/aegis/pkg/evidence"
)

// JSONExporter exports audit records as a JSON array.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{
		Pretty: pretty,
	}
}

// Export writes records to w as a JSON array. An empty input produces "[]".
func (e *JSONExporter) Export(ctx context.Context, records []*evidence.AuditRecord, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return evidence.NewExportError("json", len(records), err)
	}
	if records == nil {
		records = []*evidence.AuditRecord{}
	}

	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(records, "", "  ")
	} else {
		data, err = json.Marshal(records)
	}
	if err != nil {
		return evidence.NewExportError("json", len(records), err)
	}

	if _, err := w.Write(data); err != nil {
		return evidence.NewExportError("json", len(records), err)
	}
	return nil
}

// ExportStream writes records from a channel as a JSON array without holding
// the full result set in memory.
func (e *JSONExporter) ExportStream(ctx context.Context, recordsCh <-chan *evidence.AuditRecord, w io.Writer) (int, error) {
	if _, err := w.Write([]byte("[")); err != nil {
		return 0, evidence.NewExportError("json", 0, err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return count, ctx.Err()

		case record, ok := <-recordsCh:
			if !ok {
				if _, err := w.Write([]byte("]")); err != nil {
					return count, evidence.NewExportError("json", count, err)
				}
				return count, nil
			}

			if count > 0 {
				sep := ","
				if e.Pretty {
					sep = ",\n"
				}
				if _, err := io.WriteString(w, sep); err != nil {
					return count, evidence.NewExportError("json", count, err)
				}
			}

			data, err := e.serializeRecord(record)
			if err != nil {
				return count, evidence.NewExportError("json", count, err)
			}
			if _, err := w.Write(data); err != nil {
				return count, evidence.NewExportError("json", count, err)
			}
			count++
		}
	}
}

func (e *JSONExporter) serializeRecord(record *evidence.AuditRecord) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(record, "  ", "  ")
	}
	return json.Marshal(record)
}
