package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/aegis/pkg/config"
)

func writeSecret(t *testing.T, dir, name, value string, mode os.FileMode) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(value), mode); err != nil {
		t.Fatal(err)
	}
	// WriteFile is subject to the umask.
	if err := os.Chmod(path, mode); err != nil {
		t.Fatal(err)
	}
}

func TestEnvProvider_Lookup(t *testing.T) {
	t.Setenv("AEGIS_SECRET_DB_PASSWORD", "hunter2")
	p := NewEnvProvider("AEGIS_SECRET_")

	v, err := p.Lookup(context.Background(), "db-password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "hunter2" {
		t.Errorf("expected hunter2, got %q", v)
	}

	_, err = p.Lookup(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFileProvider_Lookup(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "api-key", "  abc123\n", 0o600)
	writeSecret(t, dir, "readonly", "ro", 0o400)
	writeSecret(t, dir, "open", "visible", 0o644)
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o700); err != nil {
		t.Fatal(err)
	}

	p, err := NewFileProvider(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		secret   string
		want     string
		notFound bool
		wantErr  string
	}{
		{name: "trimmed", secret: "api-key", want: "abc123"},
		{name: "read only", secret: "readonly", want: "ro"},
		{name: "missing", secret: "nope", notFound: true},
		{name: "world readable", secret: "open", wantErr: "insecure permissions"},
		{name: "directory", secret: "nested", wantErr: "not a regular file"},
		{name: "traversal", secret: "../etc/passwd", wantErr: "escapes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := p.Lookup(context.Background(), tt.secret)
			switch {
			case tt.notFound:
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("expected ErrNotFound, got %v", err)
				}
			case tt.wantErr != "":
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if v != tt.want {
					t.Errorf("expected %q, got %q", tt.want, v)
				}
			}
		})
	}
}

func TestNewFileProvider_RequiresDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain")
	writeSecret(t, dir, "plain", "x", 0o600)

	if _, err := NewFileProvider(file); err == nil {
		t.Error("expected error for a file path")
	}
	if _, err := NewFileProvider(filepath.Join(dir, "absent")); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestManager_Order(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "shared", "from-file", 0o600)
	writeSecret(t, dir, "broken", "x", 0o666)
	t.Setenv("AEGIS_SECRET_SHARED", "from-env")
	t.Setenv("AEGIS_SECRET_ONLY_ENV", "env-only")
	t.Setenv("AEGIS_SECRET_BROKEN", "env-fallback")

	fp, err := NewFileProvider(dir)
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager([]Provider{fp, NewEnvProvider("AEGIS_SECRET_")}, 0)
	ctx := context.Background()

	if v, _ := m.Get(ctx, "shared"); v != "from-file" {
		t.Errorf("expected the directory to win, got %q", v)
	}
	if v, _ := m.Get(ctx, "only-env"); v != "env-only" {
		t.Errorf("expected env fallback, got %q", v)
	}
	if _, err := m.Get(ctx, "broken"); err == nil {
		t.Error("expected an insecure file to stop the lookup")
	}
	_, err = m.Get(ctx, "absent")
	if !errors.Is(err, ErrNotFound) || !strings.Contains(err.Error(), "file, env") {
		t.Errorf("expected not found across file, env, got %v", err)
	}
}

func TestManager_Cache(t *testing.T) {
	t.Setenv("AEGIS_SECRET_ROTATING", "v1")
	m := NewManager([]Provider{NewEnvProvider("AEGIS_SECRET_")}, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.cache.now = func() time.Time { return now }
	ctx := context.Background()

	if v, _ := m.Get(ctx, "rotating"); v != "v1" {
		t.Fatalf("expected v1, got %q", v)
	}
	t.Setenv("AEGIS_SECRET_ROTATING", "v2")

	if v, _ := m.Get(ctx, "rotating"); v != "v1" {
		t.Errorf("expected cached v1, got %q", v)
	}
	now = now.Add(2 * time.Minute)
	if v, _ := m.Get(ctx, "rotating"); v != "v2" {
		t.Errorf("expected v2 after expiry, got %q", v)
	}

	t.Setenv("AEGIS_SECRET_ROTATING", "v3")
	m.Refresh()
	if v, _ := m.Get(ctx, "rotating"); v != "v3" {
		t.Errorf("expected v3 after refresh, got %q", v)
	}
}

func TestManager_Expand(t *testing.T) {
	t.Setenv("AEGIS_SECRET_USER", "aegis")
	t.Setenv("AEGIS_SECRET_PASS", "s3cret")
	m := NewManager([]Provider{NewEnvProvider("AEGIS_SECRET_")}, 0)

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "literal", in: "plain-value", want: "plain-value"},
		{name: "whole value", in: "${secret:pass}", want: "s3cret"},
		{name: "embedded", in: "${secret:user}:${secret:pass}@db", want: "aegis:s3cret@db"},
		{name: "missing kept", in: "x-${secret:gone}", want: "x-${secret:gone}", wantErr: true},
		{name: "empty name", in: "${secret:}", want: "${secret:}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Expand(context.Background(), tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestResolveConfig(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "identity-key", strings.Repeat("k", 40), 0o600)
	t.Setenv("AEGIS_SECRET_DB_PASSWORD", "pg-pass")

	m, err := FromConfig(config.SecretsConfig{EnvPrefix: "AEGIS_SECRET_", Directory: dir, CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := config.NewDefault()
	cfg.Identity.Secret = "${secret:identity-key}"
	cfg.Evidence.Postgres.Password = "${secret:db-password}"
	cfg.Session.Redis.Password = "literal"

	if err := m.ResolveConfig(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Identity.Secret != strings.Repeat("k", 40) {
		t.Errorf("expected identity secret from file, got %q", cfg.Identity.Secret)
	}
	if cfg.Evidence.Postgres.Password != "pg-pass" {
		t.Errorf("expected postgres password from env, got %q", cfg.Evidence.Postgres.Password)
	}
	if cfg.Session.Redis.Password != "literal" {
		t.Errorf("expected literal redis password untouched, got %q", cfg.Session.Redis.Password)
	}

	cfg.Generation.Gemini.APIKey = "${secret:gemini-key}"
	err = m.ResolveConfig(context.Background(), cfg)
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Errors) != 1 || verr.Errors[0].Field != "generation.gemini.api_key" {
		t.Errorf("expected one generation.gemini.api_key error, got %+v", verr.Errors)
	}
}

func TestFromConfig_BadDirectory(t *testing.T) {
	if _, err := FromConfig(config.SecretsConfig{Directory: filepath.Join(t.TempDir(), "absent")}); err == nil {
		t.Error("expected error for a missing secrets directory")
	}
}

func TestRedactName(t *testing.T) {
	if got := redactName("db-password"); got != "db...rd" {
		t.Errorf("expected db...rd, got %s", got)
	}
	if got := redactName("key"); got != "***" {
		t.Errorf("expected ***, got %s", got)
	}
}
