package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(NewTestConfig().Build()); err != nil {
		t.Errorf("expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := NewTestConfig().
		WithListenAddress("").
		WithLoggingLevel("verbose").
		Build()

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation to fail")
	}

	validationErr, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(validationErr.Errors) < 2 {
		t.Errorf("expected multiple errors, got %d", len(validationErr.Errors))
	}
	if !strings.Contains(validationErr.Error(), "validation failed with") {
		t.Errorf("error message should mention multiple errors: %s", validationErr.Error())
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name       string
		cfg        *Config
		errorField string
	}{
		{
			name:       "empty listen address",
			cfg:        NewTestConfig().WithListenAddress("").Build(),
			errorField: "server.listen_address",
		},
		{
			name:       "listen address without port",
			cfg:        NewTestConfig().WithListenAddress("localhost").Build(),
			errorField: "server.listen_address",
		},
		{
			name:       "tls without key",
			cfg:        NewTestConfig().WithTLS("cert.pem", "").Build(),
			errorField: "server.tls.key_file",
		},
		{
			name:       "tls 1.0",
			cfg:        NewTestConfig().WithTLS("cert.pem", "key.pem").WithTLSMinVersion("1.0").Build(),
			errorField: "server.tls.min_version",
		},
		{
			name:       "client ca with unknown auth mode",
			cfg:        NewTestConfig().WithTLS("cert.pem", "key.pem").WithClientCA("ca.pem", "optional").Build(),
			errorField: "server.tls.client_auth",
		},
		{
			name:       "knowledge path and repository",
			cfg:        NewTestConfig().WithKnowledgePath("pack.yaml").WithKnowledgeGit("https://example.com/packs.git", GitAuthConfig{}).Build(),
			errorField: "knowledge.path",
		},
		{
			name:       "knowledge git token auth without token",
			cfg:        NewTestConfig().WithKnowledgeGit("https://example.com/packs.git", GitAuthConfig{Type: "token"}).Build(),
			errorField: "knowledge.git.auth.token",
		},
		{
			name:       "knowledge git unknown auth",
			cfg:        NewTestConfig().WithKnowledgeGit("https://example.com/packs.git", GitAuthConfig{Type: "kerberos"}).Build(),
			errorField: "knowledge.git.auth.type",
		},
		{
			name:       "rate limit without burst",
			cfg:        NewTestConfig().WithRateLimit(5, 0).Build(),
			errorField: "server.rate_limit.burst",
		},
		{
			name:       "negative rate limit",
			cfg:        NewTestConfig().WithRateLimit(-1, 10).Build(),
			errorField: "server.rate_limit.requests_per_second",
		},
		{
			name:       "generation timeout not below write timeout",
			cfg:        NewTestConfig().WithWriteTimeout(30 * time.Second).WithGenerationTimeout(30 * time.Second).Build(),
			errorField: "generation.timeout",
		},
		{
			name:       "gemini without api key",
			cfg:        NewTestConfig().WithGemini("").Build(),
			errorField: "generation.gemini.api_key",
		},
		{
			name:       "sqlite without path",
			cfg:        NewTestConfig().WithSQLite("").Build(),
			errorField: "evidence.sqlite.path",
		},
		{
			name:       "postgres without host",
			cfg:        NewTestConfig().WithPostgres("", "aegis", "aegis", "secret", 5432).Build(),
			errorField: "evidence.postgres.host",
		},
		{
			name:       "postgres bad port",
			cfg:        NewTestConfig().WithPostgres("db", "aegis", "aegis", "secret", 70000).Build(),
			errorField: "evidence.postgres.port",
		},
		{
			name:       "s3 sink without bucket",
			cfg:        NewTestConfig().WithExportSink(SinkConfig{Type: "s3", Region: "us-east-1"}).Build(),
			errorField: "evidence.export.sink.bucket",
		},
		{
			name:       "unknown sink type",
			cfg:        NewTestConfig().WithExportSink(SinkConfig{Type: "ftp"}).Build(),
			errorField: "evidence.export.sink.type",
		},
		{
			name:       "pubsub without topic",
			cfg:        NewTestConfig().WithPubSub("proj", "").Build(),
			errorField: "review.pubsub.topic_id",
		},
		{
			name:       "redis without address",
			cfg:        NewTestConfig().WithRedisSessions("").Build(),
			errorField: "session.redis.addr",
		},
		{
			name:       "short identity secret",
			cfg:        NewTestConfig().WithIdentity(true, "short").Build(),
			errorField: "identity.secret",
		},
		{
			name:       "invalid logging level",
			cfg:        NewTestConfig().WithLoggingLevel("trace").Build(),
			errorField: "telemetry.logging.level",
		},
		{
			name:       "tracing without endpoint",
			cfg:        NewTestConfig().WithTracing(true, "").Build(),
			errorField: "telemetry.tracing.endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cfg)
			if err == nil {
				t.Fatal("expected validation error, got none")
			}
			verr := err.(ValidationError)
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.errorField {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected error for field %q, got errors: %v", tt.errorField, verr.Errors)
			}
		})
	}
}

func TestValidate_Accepts(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"identity disabled without secret", NewTestConfig().WithIdentity(false, "").Build()},
		{"gemini with key", NewTestConfig().WithGemini("key").Build()},
		{"postgres", NewTestConfig().WithPostgres("db", "aegis", "aegis", "secret", 5432).Build()},
		{"gcs sink", NewTestConfig().WithExportSink(SinkConfig{Type: "gcs", Bucket: "audit"}).Build()},
		{"redis sessions", NewTestConfig().WithRedisSessions("localhost:6379").Build()},
		{"pubsub", NewTestConfig().WithPubSub("proj", "review-flags").Build()},
		{"tracing", NewTestConfig().WithTracing(true, "localhost:4317").Build()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.cfg); err != nil {
				t.Errorf("expected config to validate, got %v", err)
			}
		})
	}
}

func TestValidateEvidence_PruneSchedule(t *testing.T) {
	tests := []struct {
		schedule  string
		wantError bool
	}{
		{"0 3 * * *", false},
		{"@daily", false},
		{"*/15 * * * *", false},
		{"every night", true},
		{"0 3 * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			cfg := NewDefault().Evidence
			cfg.Retention.PruneSchedule = tt.schedule
			errs := validateEvidence(&cfg)
			if tt.wantError && len(errs) == 0 {
				t.Error("expected validation error, got none")
			}
			if !tt.wantError && len(errs) > 0 {
				t.Errorf("expected no validation error, got: %v", errs)
			}
		})
	}
}

func TestValidateEvidence_ArchiveOnlyWhenEnabled(t *testing.T) {
	cfg := NewDefault().Evidence
	cfg.Retention.Archive = SinkConfig{Type: "s3"}

	if errs := validateEvidence(&cfg); len(errs) != 0 {
		t.Errorf("expected archive sink to be ignored, got %v", errs)
	}

	cfg.Retention.ArchiveBeforeDelete = true
	errs := validateEvidence(&cfg)
	if len(errs) != 1 || errs[0].Field != "evidence.retention.archive.bucket" {
		t.Errorf("expected archive bucket error, got %v", errs)
	}
}

func TestValidateTelemetry_Buckets(t *testing.T) {
	cfg := NewDefault().Telemetry
	cfg.Metrics.RiskScoreBuckets = []float64{0.5, 0.2}

	errs := validateTelemetry(&cfg)
	if len(errs) != 1 || errs[0].Field != "telemetry.metrics.risk_score_buckets" {
		t.Errorf("expected risk bucket error, got %v", errs)
	}
}

func TestValidateTelemetry_RedactPatterns(t *testing.T) {
	cfg := NewDefault().Telemetry
	cfg.Logging.RedactPatterns = []RedactPattern{
		{Name: "ok", Pattern: `\d+`},
		{Name: "broken", Pattern: `([a-z`},
	}

	errs := validateTelemetry(&cfg)
	if len(errs) != 1 || errs[0].Field != "telemetry.logging.redact_patterns[1].pattern" {
		t.Errorf("expected error for second pattern, got %v", errs)
	}
}

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      ValidationError
		contains string
	}{
		{"no errors", ValidationError{}, "configuration validation failed"},
		{
			"single error",
			ValidationError{Errors: []FieldError{{Field: "server.listen_address", Message: "required"}}},
			"configuration validation failed: server.listen_address: required",
		},
		{
			"multiple errors",
			ValidationError{Errors: []FieldError{{Field: "a", Message: "x"}, {Field: "b", Message: "y"}}},
			"with 2 errors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(tt.err.Error(), tt.contains) {
				t.Errorf("expected %q to contain %q", tt.err.Error(), tt.contains)
			}
		})
	}
}
