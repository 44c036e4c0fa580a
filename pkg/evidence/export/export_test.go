package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"mercator-hq/aegis/pkg/evidence"
	"mercator-hq/aegis/pkg/evidence/storage"
	"mercator-hq/aegis/pkg/governance"
)

var base = time.Date(2025, 5, 2, 14, 3, 9, 0, time.UTC)

func testRecord(id, user string, offset time.Duration, frameworks ...string) *evidence.AuditRecord {
	ts := base.Add(offset)
	if frameworks == nil {
		frameworks = []string{}
	}
	return &evidence.AuditRecord{
		ID:               id,
		RequestID:        "req-" + id,
		SessionID:        "sess-1",
		UserID:           user,
		Role:             "user",
		Timestamp:        ts,
		RecordedAt:       ts,
		DurationMs:       120,
		PromptHash:       "p-hash",
		PromptLength:     26,
		RiskScore:        0.1,
		RiskLevel:        governance.RiskLow,
		Action:           governance.ActionAllow,
		ComplianceStatus: governance.StatusCompliant,
		Frameworks:       frameworks,
		Anomalies:        []string{evidence.AnomalyLargeRequest, evidence.AnomalyRapidRequest},
		RetentionDays:    365,
		RetentionEnd:     ts.AddDate(0, 0, 365),
		PackVersion:      "1.3.0",
	}
}

func TestJSONExporter_Export(t *testing.T) {
	tests := []struct {
		name    string
		records []*evidence.AuditRecord
		want    int
	}{
		{"nil", nil, 0},
		{"single", []*evidence.AuditRecord{testRecord("a", "u1", 0)}, 1},
		{"multiple", []*evidence.AuditRecord{testRecord("a", "u1", 0), testRecord("b", "u1", time.Second)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewJSONExporter(true).Export(context.Background(), tt.records, &buf); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var decoded []*evidence.AuditRecord
			if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
				t.Fatalf("failed to decode JSON: %v", err)
			}
			if len(decoded) != tt.want {
				t.Errorf("expected %d records, got %d", tt.want, len(decoded))
			}
		})
	}
}

func TestJSONExporter_ExportStream(t *testing.T) {
	ch := make(chan *evidence.AuditRecord, 3)
	for i, id := range []string{"a", "b", "c"} {
		ch <- testRecord(id, "u1", time.Duration(i)*time.Second)
	}
	close(ch)

	var buf bytes.Buffer
	n, err := NewJSONExporter(false).ExportStream(context.Background(), ch, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 records written, got %d", n)
	}

	var decoded []*evidence.AuditRecord
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("stream output is not a JSON array: %v", err)
	}
	if decoded[2].ID != "c" {
		t.Errorf("expected last id c, got %s", decoded[2].ID)
	}
}

func TestJSONExporter_ExportStream_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewJSONExporter(false).ExportStream(ctx, make(chan *evidence.AuditRecord), io.Discard)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCSVExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	records := []*evidence.AuditRecord{testRecord("a", "u1", 0, "gdpr", "sox")}
	if err := NewCSVExporter(true).Export(context.Background(), records, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and 1 row, got %d rows", len(rows))
	}
	if len(rows[0]) != len(Header) || len(rows[1]) != len(Header) {
		t.Fatalf("expected %d columns, got %d and %d", len(Header), len(rows[0]), len(rows[1]))
	}

	col := func(name string) string {
		for i, h := range rows[0] {
			if h == name {
				return rows[1][i]
			}
		}
		t.Fatalf("missing column %s", name)
		return ""
	}
	checks := map[string]string{
		"id":             "a",
		"timestamp":      "2025-05-02T14:03:09Z",
		"frameworks":     "gdpr;sox",
		"anomalies":      "large_request;rapid_request",
		"risk_score":     "0.1000",
		"retention_days": "365",
		"blocked":        "false",
	}
	for name, want := range checks {
		if got := col(name); got != want {
			t.Errorf("column %s: expected %q, got %q", name, want, got)
		}
	}
}

func TestCSVExporter_ExportStream_NoHeader(t *testing.T) {
	ch := make(chan *evidence.AuditRecord, 250)
	for i := 0; i < 250; i++ {
		ch <- testRecord("r", "u1", time.Duration(i)*time.Second)
	}
	close(ch)

	var buf bytes.Buffer
	n, err := NewCSVExporter(false).ExportStream(context.Background(), ch, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 250 {
		t.Errorf("expected 250 rows, got %d", n)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 250 {
		t.Errorf("expected 250 lines, got %d", lines)
	}
}

func TestFileSink_Put(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}

	location, err := sink.Put(context.Background(), "exports/x.json", []byte("[]"), "application/json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(location, "file://") || !strings.HasSuffix(location, "/exports/x.json") {
		t.Errorf("unexpected location %q", location)
	}

	data, err := os.ReadFile(filepath.Join(dir, "exports", "x.json"))
	if err != nil {
		t.Fatalf("export not written: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("expected [], got %q", data)
	}

	if _, err := sink.Put(context.Background(), "../escape.json", []byte("{}"), "application/json"); err == nil {
		t.Error("expected error for key escaping the directory")
	}
}

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink_Put(t *testing.T) {
	fake := &fakeS3{}
	sink := &S3Sink{client: fake, bucket: "audit-logs-bucket", prefix: "/exports/"}

	location, err := sink.Put(context.Background(), "export_1.json", []byte(`[{"id":"a"}]`), "application/json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if location != "s3://audit-logs-bucket/exports/export_1.json" {
		t.Errorf("unexpected location %q", location)
	}
	if len(fake.inputs) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(fake.inputs))
	}
	in := fake.inputs[0]
	if *in.Bucket != "audit-logs-bucket" || *in.Key != "exports/export_1.json" || *in.ContentType != "application/json" {
		t.Errorf("unexpected put input bucket=%s key=%s type=%s", *in.Bucket, *in.Key, *in.ContentType)
	}
	if string(fake.bodies[0]) != `[{"id":"a"}]` {
		t.Errorf("unexpected body %q", fake.bodies[0])
	}
}

func TestS3Sink_PutError(t *testing.T) {
	sink := &S3Sink{client: &fakeS3{err: errors.New("access denied")}, bucket: "b"}

	_, err := sink.Put(context.Background(), "k.json", nil, "application/json")
	var sinkErr *evidence.SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("expected SinkError, got %v", err)
	}
	if sinkErr.Location != "s3://b/k.json" {
		t.Errorf("unexpected location %q", sinkErr.Location)
	}
}

func TestNewSink_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewSink(ctx, SinkConfig{Type: SinkTypeS3}); err == nil {
		t.Error("expected error for s3 without bucket")
	}
	if _, err := NewSink(ctx, SinkConfig{Type: SinkTypeGCS}); err == nil {
		t.Error("expected error for gcs without bucket")
	}
	if _, err := NewSink(ctx, SinkConfig{Type: "ftp"}); err == nil {
		t.Error("expected error for unknown sink")
	}
	sink, err := NewSink(ctx, SinkConfig{Directory: t.TempDir()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.Name() != "file" {
		t.Errorf("expected file sink, got %s", sink.Name())
	}
}

func TestService_Export(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	for _, r := range []*evidence.AuditRecord{
		testRecord("a", "u1", 0, "gdpr"),
		testRecord("b", "u2", time.Minute, "hipaa", "gdpr"),
		testRecord("c", "u1", 2*time.Minute),
		testRecord("late", "u1", 48*time.Hour, "sox"),
	} {
		if err := store.Store(ctx, r); err != nil {
			t.Fatalf("failed to store: %v", err)
		}
	}

	fake := &fakeS3{}
	svc := NewService(store, &S3Sink{client: fake, bucket: "audit-logs-bucket", prefix: "exports"})

	res, err := svc.Export(ctx, Request{
		Start:       base.Add(-time.Hour),
		End:         base.Add(time.Hour),
		RequestedBy: "admin-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !regexp.MustCompile(`^export_[0-9a-f-]{36}$`).MatchString(res.ExportID) {
		t.Errorf("unexpected export id %q", res.ExportID)
	}
	if want := "s3://audit-logs-bucket/exports/" + res.ExportID + ".json"; res.Location != want {
		t.Errorf("expected location %q, got %q", want, res.Location)
	}
	if res.RecordCount != 3 {
		t.Errorf("expected 3 records, got %d", res.RecordCount)
	}
	if strings.Join(res.Frameworks, ",") != "gdpr,hipaa" {
		t.Errorf("expected frameworks gdpr,hipaa, got %v", res.Frameworks)
	}
	if res.Status != StatusCompleted {
		t.Errorf("expected status completed, got %s", res.Status)
	}

	var uploaded []*evidence.AuditRecord
	if err := json.Unmarshal(fake.bodies[0], &uploaded); err != nil {
		t.Fatalf("uploaded body is not JSON: %v", err)
	}
	if uploaded[0].ID != "a" || uploaded[2].ID != "c" {
		t.Errorf("expected records oldest first, got %s..%s", uploaded[0].ID, uploaded[2].ID)
	}

	res, err = svc.Export(ctx, Request{Start: base.Add(-time.Hour), End: base.Add(time.Hour), UserID: "u2", Format: FormatCSV})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RecordCount != 1 || !strings.HasSuffix(res.Location, ".csv") {
		t.Errorf("expected 1 csv record, got %d at %s", res.RecordCount, res.Location)
	}
}

func TestService_ExportValidation(t *testing.T) {
	svc := NewService(storage.NewMemoryStorage(), &S3Sink{client: &fakeS3{}, bucket: "b"})

	tests := []struct {
		name string
		req  Request
	}{
		{"missing range", Request{}},
		{"inverted range", Request{Start: base, End: base.Add(-time.Second)}},
		{"bad format", Request{Start: base, End: base, Format: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Export(context.Background(), tt.req)
			var verr *governance.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}
