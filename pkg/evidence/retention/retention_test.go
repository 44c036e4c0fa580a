package retention

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"mercator-hq/aegis/pkg/evidence"
	"mercator-hq/aegis/pkg/evidence/storage"
	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/knowledge"
)

var at = time.Date(2025, 5, 2, 14, 3, 9, 0, time.UTC)

func TestCompute(t *testing.T) {
	tables := &knowledge.Default().Retention

	tests := []struct {
		name       string
		hints      []string
		frameworks []string
		days       int
	}{
		{"no hints", nil, []string{}, 365},
		{"personal data", []string{"personal"}, []string{"gdpr"}, 365},
		{"medical", []string{"Patient records"}, []string{"hipaa"}, 2190},
		{"longest wins", []string{"consent", "financial reporting", "diagnosis"}, []string{"gdpr", "hipaa", "sox"}, 2555},
		{"payment", []string{"payment_processing", "credit card"}, []string{"pci_dss"}, 365},
		{"compound word", []string{"healthcare"}, []string{"hipaa"}, 2190},
		{"unrelated", []string{"weather"}, []string{}, 365},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Compute(tables, tt.hints, at)
			if !reflect.DeepEqual(d.Frameworks, tt.frameworks) {
				t.Errorf("expected frameworks %v, got %v", tt.frameworks, d.Frameworks)
			}
			if d.Days != tt.days {
				t.Errorf("expected %d days, got %d", tt.days, d.Days)
			}
			if !d.End.Equal(at.AddDate(0, 0, tt.days)) {
				t.Errorf("expected end %v, got %v", at.AddDate(0, 0, tt.days), d.End)
			}
		})
	}
}

func TestCompute_NilTables(t *testing.T) {
	d := Compute(nil, []string{"hipaa"}, at)
	if d.Days != DefaultDays || len(d.Frameworks) != 0 {
		t.Errorf("expected default retention, got %+v", d)
	}
}

// Property: the horizon is the max of the matched frameworks and always
// starts at the request timestamp.
func TestComputeRetentionLaw(t *testing.T) {
	tables := &knowledge.Default().Retention
	triggers := []string{"gdpr", "hipaa", "sox", "pci", "weather", "medical", "finance", "nothing"}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("days is the max over matched frameworks", prop.ForAll(
		func(hints []string, offsetHours int) bool {
			ts := at.Add(time.Duration(offsetHours) * time.Hour)
			d := Compute(tables, hints, ts)

			want := tables.DefaultDays
			if len(d.Frameworks) > 0 {
				want = 0
				for _, fw := range d.Frameworks {
					want = max(want, tables.Frameworks[fw].Days)
				}
			}
			return d.Days == want && d.End.Equal(ts.AddDate(0, 0, want))
		},
		gen.SliceOf(gen.IntRange(0, 7)).Map(func(idx []int) []string {
			out := make([]string, len(idx))
			for i, n := range idx {
				out[i] = triggers[n]
			}
			return out
		}),
		gen.IntRange(-10000, 10000),
	))

	properties.TestingRun(t)
}

func TestHints(t *testing.T) {
	req := &governance.Request{Context: map[string]any{
		"payment_processing": true,
		"industry":           "Healthcare",
		"tags":               []any{"consent", 3},
		"disabled":           false,
	}}
	risk := &governance.RiskAssessment{
		ComplianceIssues: []string{"Potential GDPR violation: email"},
		Categories:       []governance.CategoryMatch{{Category: "privacy", Terms: []string{"personal data"}}},
	}
	policy := &governance.PolicyDecision{Frameworks: []string{"SOX"}}

	got := strings.Join(Hints(req, risk, policy), "|")
	want := "Healthcare|payment_processing|consent|Potential GDPR violation: email|personal data|SOX"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if len(Hints(nil, nil, nil)) != 0 {
		t.Error("expected no hints for nil inputs")
	}
}

func seed(t *testing.T, store evidence.Storage, id string, end time.Time) {
	t.Helper()
	err := store.Store(context.Background(), &evidence.AuditRecord{
		ID:           id,
		Timestamp:    end.AddDate(0, 0, -365),
		RetentionEnd: end,
		Frameworks:   []string{},
		Anomalies:    []string{},
	})
	if err != nil {
		t.Fatalf("failed to store %s: %v", id, err)
	}
}

type memorySink struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.keys = append(s.keys, key)
	s.bodies = append(s.bodies, body)
	return "memory://" + key, nil
}

func TestPruner_DeletesOnlyExpired(t *testing.T) {
	store := storage.NewMemoryStorage()
	seed(t, store, "expired-1", at.Add(-48*time.Hour))
	seed(t, store, "expired-2", at)
	seed(t, store, "kept", at.Add(time.Second))

	p := NewPruner(store, nil, &Config{})
	p.now = func() time.Time { return at }

	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}
	if store.Size() != 1 {
		t.Errorf("expected 1 record left, got %d", store.Size())
	}

	deleted, err = p.Prune(context.Background())
	if err != nil || deleted != 0 {
		t.Errorf("expected idempotent second prune, got %d, %v", deleted, err)
	}
}

func TestPruner_ArchiveBeforeDelete(t *testing.T) {
	store := storage.NewMemoryStorage()
	seed(t, store, "expired", at.Add(-time.Hour))
	seed(t, store, "kept", at.Add(time.Hour))

	sink := &memorySink{}
	p := NewPruner(store, sink, &Config{ArchiveBeforeDelete: true})
	p.now = func() time.Time { return at }

	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
	if len(sink.keys) != 1 || sink.keys[0] != "archive/expired-20250502-140309.json" {
		t.Fatalf("unexpected archive keys %v", sink.keys)
	}
	if !strings.Contains(string(sink.bodies[0]), `"id": "expired"`) || strings.Contains(string(sink.bodies[0]), `"kept"`) {
		t.Errorf("archive should contain only the expired record: %s", sink.bodies[0])
	}
}

func TestPruner_ArchiveFailureKeepsRecords(t *testing.T) {
	store := storage.NewMemoryStorage()
	seed(t, store, "expired", at.Add(-time.Hour))

	p := NewPruner(store, &memorySink{err: errors.New("bucket unavailable")}, &Config{ArchiveBeforeDelete: true})
	p.now = func() time.Time { return at }

	_, err := p.Prune(context.Background())
	var retErr *evidence.RetentionError
	if !errors.As(err, &retErr) {
		t.Fatalf("expected RetentionError, got %v", err)
	}
	if store.Size() != 1 {
		t.Error("records must not be deleted when archiving fails")
	}

	p = NewPruner(store, nil, &Config{ArchiveBeforeDelete: true})
	if _, err := p.Prune(context.Background()); err == nil {
		t.Error("expected error when archiving without a sink")
	}
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{"daily", "0 3 * * *", true, false},
		{"hourly", "0 * * * *", true, false},
		{"empty schedule", "", false, false},
		{"invalid", "invalid cron", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPruner(storage.NewMemoryStorage(), nil, &Config{PruneSchedule: tt.schedule})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := p.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Errorf("expected error %v, got %v", tt.wantError, err)
			}
			if p.scheduler.IsRunning() != tt.wantRunning {
				t.Errorf("expected running %v, got %v", tt.wantRunning, p.scheduler.IsRunning())
			}
			if tt.wantRunning {
				next := p.NextPruning()
				if next == nil || !next.After(time.Now()) {
					t.Errorf("expected a future next run, got %v", next)
				}
				if err := p.Start(ctx); err == nil {
					t.Error("expected error when starting twice")
				}
			}

			p.Stop()
			if p.scheduler.IsRunning() {
				t.Error("scheduler still running after Stop")
			}
			if p.NextPruning() != nil {
				t.Error("expected no next run after Stop")
			}
		})
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	p := NewPruner(storage.NewMemoryStorage(), nil, &Config{PruneSchedule: "0 3 * * *"})

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for p.scheduler.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if p.scheduler.IsRunning() {
		t.Error("scheduler should stop when the context is cancelled")
	}
}

func TestScheduler_RunPruning(t *testing.T) {
	store := storage.NewMemoryStorage()
	seed(t, store, "expired", at)

	p := NewPruner(store, nil, &Config{})
	p.now = func() time.Time { return at.Add(time.Minute) }

	p.scheduler.runPruning(context.Background())
	if p.scheduler.Runs() != 1 {
		t.Errorf("expected 1 run, got %d", p.scheduler.Runs())
	}
	if store.Size() != 0 {
		t.Errorf("expected expired record pruned, got %d left", store.Size())
	}
}
