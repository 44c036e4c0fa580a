package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AEGIS_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded over NewDefault, so omitted fields keep their
// defaults. Unknown keys are rejected. Environment variables are not
// consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML over the defaults without validating.
func Parse(data []byte) (*Config, error) {
	cfg := NewDefault()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention AEGIS_SECTION_FIELD (e.g., AEGIS_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
// An empty path starts from the defaults alone.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadUnvalidated(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadUnvalidated runs the first three steps of LoadConfigWithEnvOverrides.
// Callers that adjust the result (command-line overrides) validate it
// themselves.
func LoadUnvalidated(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefault()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// envBinding maps one environment variable onto a config field.
type envBinding struct {
	name  string
	apply func(string) error
}

func str(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func boolean(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func integer(dst *int) func(string) error {
	return func(v string) error {
		i, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = i
		return nil
	}
}

func float(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func duration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func envBindings(cfg *Config) []envBinding {
	return []envBinding{
		// Server
		{"SERVER_LISTEN_ADDRESS", str(&cfg.Server.ListenAddress)},
		{"SERVER_READ_TIMEOUT", duration(&cfg.Server.ReadTimeout)},
		{"SERVER_WRITE_TIMEOUT", duration(&cfg.Server.WriteTimeout)},
		{"SERVER_REQUEST_TIMEOUT", duration(&cfg.Server.RequestTimeout)},
		{"SERVER_TLS_ENABLED", boolean(&cfg.Server.TLS.Enabled)},
		{"SERVER_TLS_CERT_FILE", str(&cfg.Server.TLS.CertFile)},
		{"SERVER_TLS_KEY_FILE", str(&cfg.Server.TLS.KeyFile)},
		{"SERVER_TLS_MIN_VERSION", str(&cfg.Server.TLS.MinVersion)},
		{"SERVER_TLS_CLIENT_CA_FILE", str(&cfg.Server.TLS.ClientCAFile)},
		{"SERVER_RATE_LIMIT_ENABLED", boolean(&cfg.Server.RateLimit.Enabled)},
		{"SERVER_RATE_LIMIT_REQUESTS_PER_SECOND", float(&cfg.Server.RateLimit.RequestsPerSecond)},

		// Knowledge
		{"KNOWLEDGE_PATH", str(&cfg.Knowledge.Path)},
		{"KNOWLEDGE_WATCH", boolean(&cfg.Knowledge.Watch)},
		{"KNOWLEDGE_GIT_REPOSITORY", str(&cfg.Knowledge.Git.Repository)},
		{"KNOWLEDGE_GIT_BRANCH", str(&cfg.Knowledge.Git.Branch)},
		{"KNOWLEDGE_GIT_FILE", str(&cfg.Knowledge.Git.File)},
		{"KNOWLEDGE_GIT_AUTH_TOKEN", str(&cfg.Knowledge.Git.Auth.Token)},

		// Moderation
		{"MODERATION_PROVIDER", str(&cfg.Moderation.Provider)},
		{"MODERATION_TIMEOUT", duration(&cfg.Moderation.Timeout)},
		{"MODERATION_HTTP_ENDPOINT", str(&cfg.Moderation.HTTP.Endpoint)},
		{"MODERATION_HTTP_API_KEY", str(&cfg.Moderation.HTTP.APIKey)},

		// Generation
		{"GENERATION_PROVIDER", str(&cfg.Generation.Provider)},
		{"GENERATION_TIMEOUT", duration(&cfg.Generation.Timeout)},
		{"GENERATION_GEMINI_API_KEY", str(&cfg.Generation.Gemini.APIKey)},
		{"GENERATION_GEMINI_MODEL", str(&cfg.Generation.Gemini.Model)},

		// Evidence
		{"EVIDENCE_BACKEND", str(&cfg.Evidence.Backend)},
		{"EVIDENCE_SQLITE_PATH", str(&cfg.Evidence.SQLite.Path)},
		{"EVIDENCE_SQLITE_DRIVER", str(&cfg.Evidence.SQLite.Driver)},
		{"EVIDENCE_POSTGRES_HOST", str(&cfg.Evidence.Postgres.Host)},
		{"EVIDENCE_POSTGRES_PORT", integer(&cfg.Evidence.Postgres.Port)},
		{"EVIDENCE_POSTGRES_DATABASE", str(&cfg.Evidence.Postgres.Database)},
		{"EVIDENCE_POSTGRES_USER", str(&cfg.Evidence.Postgres.User)},
		{"EVIDENCE_POSTGRES_PASSWORD", str(&cfg.Evidence.Postgres.Password)},
		{"EVIDENCE_POSTGRES_SSL_MODE", str(&cfg.Evidence.Postgres.SSLMode)},
		{"EVIDENCE_RECORDER_ASYNC", boolean(&cfg.Evidence.Recorder.Async)},
		{"EVIDENCE_RETENTION_PRUNE_SCHEDULE", str(&cfg.Evidence.Retention.PruneSchedule)},
		{"EVIDENCE_EXPORT_SINK_TYPE", str(&cfg.Evidence.Export.Sink.Type)},
		{"EVIDENCE_EXPORT_SINK_BUCKET", str(&cfg.Evidence.Export.Sink.Bucket)},
		{"EVIDENCE_EXPORT_SINK_PREFIX", str(&cfg.Evidence.Export.Sink.Prefix)},
		{"EVIDENCE_EXPORT_SINK_REGION", str(&cfg.Evidence.Export.Sink.Region)},
		{"EVIDENCE_EXPORT_SINK_ENDPOINT", str(&cfg.Evidence.Export.Sink.Endpoint)},

		// Review
		{"REVIEW_EMITTER", str(&cfg.Review.Emitter)},
		{"REVIEW_PUBSUB_PROJECT_ID", str(&cfg.Review.PubSub.ProjectID)},
		{"REVIEW_PUBSUB_TOPIC_ID", str(&cfg.Review.PubSub.TopicID)},

		// Session
		{"SESSION_BACKEND", str(&cfg.Session.Backend)},
		{"SESSION_TTL", duration(&cfg.Session.TTL)},
		{"SESSION_REDIS_ADDR", str(&cfg.Session.Redis.Addr)},
		{"SESSION_REDIS_PASSWORD", str(&cfg.Session.Redis.Password)},
		{"SESSION_REDIS_DB", integer(&cfg.Session.Redis.DB)},

		// Identity
		{"IDENTITY_ENABLED", boolean(&cfg.Identity.Enabled)},
		{"IDENTITY_SECRET", str(&cfg.Identity.Secret)},
		{"IDENTITY_ISSUER", str(&cfg.Identity.Issuer)},

		// Secrets
		{"SECRETS_ENV_PREFIX", str(&cfg.Secrets.EnvPrefix)},
		{"SECRETS_DIRECTORY", str(&cfg.Secrets.Directory)},
		{"SECRETS_CACHE_TTL", duration(&cfg.Secrets.CacheTTL)},

		// Telemetry
		{"TELEMETRY_LOGGING_LEVEL", str(&cfg.Telemetry.Logging.Level)},
		{"TELEMETRY_LOGGING_FORMAT", str(&cfg.Telemetry.Logging.Format)},
		{"TELEMETRY_METRICS_ENABLED", boolean(&cfg.Telemetry.Metrics.Enabled)},
		{"TELEMETRY_METRICS_PATH", str(&cfg.Telemetry.Metrics.Path)},
		{"TELEMETRY_TRACING_ENABLED", boolean(&cfg.Telemetry.Tracing.Enabled)},
		{"TELEMETRY_TRACING_ENDPOINT", str(&cfg.Telemetry.Tracing.Endpoint)},
		{"TELEMETRY_TRACING_SAMPLE_RATIO", float(&cfg.Telemetry.Tracing.SampleRatio)},
	}
}

// applyEnvOverrides applies AEGIS_* environment variables. A value that
// does not parse is reported instead of silently ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []FieldError
	for _, b := range envBindings(cfg) {
		val, ok := os.LookupEnv(EnvPrefix + b.name)
		if !ok || val == "" {
			continue
		}
		if err := b.apply(val); err != nil {
			errs = append(errs, FieldError{
				Field:   EnvPrefix + b.name,
				Message: fmt.Sprintf("invalid value %q: %v", val, err),
			})
		}
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
