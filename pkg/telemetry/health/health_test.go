package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckReadiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	fail := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name     string
		setup    func(c *Checker)
		expected string
	}{
		{"no checks", func(c *Checker) {}, StatusReady},
		{"all ok", func(c *Checker) {
			c.RegisterCheck("audit_store", ok)
			c.RegisterOptionalCheck("review_emitter", ok)
		}, StatusReady},
		{"optional failure", func(c *Checker) {
			c.RegisterCheck("audit_store", ok)
			c.RegisterOptionalCheck("review_emitter", fail)
		}, StatusDegraded},
		{"critical failure", func(c *Checker) {
			c.RegisterCheck("audit_store", fail)
			c.RegisterOptionalCheck("review_emitter", fail)
		}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			tt.setup(c)
			got := c.CheckReadiness(context.Background())
			if got.Status != tt.expected {
				t.Errorf("expected status %q, got %q", tt.expected, got.Status)
			}
		})
	}
}

func TestCheckReadiness_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.RegisterCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	got := c.CheckReadiness(context.Background())
	res := got.Checks["slow"]
	if res.Status != StatusUnhealthy || res.Message != ErrCheckTimeout.Error() {
		t.Errorf("expected timeout result, got %+v", res)
	}
}

func TestRegisterCheck_Replaces(t *testing.T) {
	c := New(0)
	c.RegisterCheck("b", func(context.Context) error { return errors.New("x") })
	c.RegisterCheck("a", func(context.Context) error { return nil })
	c.RegisterOptionalCheck("b", func(context.Context) error { return nil })

	names := c.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("expected sorted [a b], got %v", names)
	}
	if got := c.CheckReadiness(context.Background()); got.Status != StatusReady {
		t.Errorf("expected replaced check to pass, got %q", got.Status)
	}
}

func TestReadinessHandler(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("audit_store", func(context.Context) error { return errors.New("down") })

	rec := httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	var body HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Checks["audit_store"].Message != "down" {
		t.Errorf("expected check message, got %+v", body.Checks)
	}
}

func TestLivenessHandler(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("audit_store", func(context.Context) error { return errors.New("down") })

	tests := []struct {
		method   string
		expected int
		hasBody  bool
	}{
		{http.MethodGet, http.StatusOK, true},
		{http.MethodHead, http.StatusOK, false},
		{http.MethodPost, http.StatusMethodNotAllowed, true},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(tt.method, "/health", nil))
			if rec.Code != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, rec.Code)
			}
			if (rec.Body.Len() > 0) != tt.hasBody {
				t.Errorf("expected body=%v, got %q", tt.hasBody, rec.Body.String())
			}
		})
	}
}

func TestVersionHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler("1.2.0", "abc123", "2026-01-01").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var info VersionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if info.Version != "1.2.0" || info.Commit != "abc123" || info.GoVersion == "" {
		t.Errorf("unexpected version info %+v", info)
	}
}
