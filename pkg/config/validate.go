package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// MinIdentitySecretLength mirrors the HS256 key length enforced by the
// identity package.
const MinIdentitySecretLength = 32

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateKnowledge(&cfg.Knowledge)...)
	errs = append(errs, validateModeration(&cfg.Moderation)...)
	errs = append(errs, validateGeneration(&cfg.Generation, &cfg.Server)...)
	errs = append(errs, validateEvidence(&cfg.Evidence)...)
	errs = append(errs, validateReview(&cfg.Review)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateIdentity(&cfg.Identity)...)
	errs = append(errs, validateSecrets(&cfg.Secrets)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address: %v", err),
		})
	}

	for field, d := range map[string]time.Duration{
		"server.read_timeout":     cfg.ReadTimeout,
		"server.write_timeout":    cfg.WriteTimeout,
		"server.idle_timeout":     cfg.IdleTimeout,
		"server.shutdown_timeout": cfg.ShutdownTimeout,
		"server.request_timeout":  cfg.RequestTimeout,
	} {
		if d < 0 {
			errs = append(errs, FieldError{Field: field, Message: "timeout must be positive"})
		}
	}

	if cfg.MaxHeaderBytes < 0 || cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be between 0 and 10MB",
		})
	}
	if cfg.MaxBodyBytes < 0 || cfg.MaxBodyBytes > 64*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "server.max_body_bytes",
			Message: "max body bytes must be between 0 and 64MB",
		})
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{
				Field:   "server.tls.cert_file",
				Message: "TLS certificate file is required when TLS is enabled",
			})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{
				Field:   "server.tls.key_file",
				Message: "TLS key file is required when TLS is enabled",
			})
		}
		if cfg.TLS.MinVersion != "1.2" && cfg.TLS.MinVersion != "1.3" {
			errs = append(errs, FieldError{
				Field:   "server.tls.min_version",
				Message: fmt.Sprintf("unsupported TLS version %q (must be 1.2 or 1.3)", cfg.TLS.MinVersion),
			})
		}
		if cfg.TLS.ReloadInterval < 0 {
			errs = append(errs, FieldError{
				Field:   "server.tls.reload_interval",
				Message: "reload interval must be positive",
			})
		}
		if cfg.TLS.ClientCAFile != "" && cfg.TLS.ClientAuth != "require" && cfg.TLS.ClientAuth != "verify_if_given" {
			errs = append(errs, FieldError{
				Field:   "server.tls.client_auth",
				Message: fmt.Sprintf("unsupported client auth %q (must be require or verify_if_given)", cfg.TLS.ClientAuth),
			})
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, FieldError{
				Field:   "server.rate_limit.requests_per_second",
				Message: "requests per second must be positive when rate limiting is enabled",
			})
		}
		if cfg.RateLimit.Burst < 1 {
			errs = append(errs, FieldError{
				Field:   "server.rate_limit.burst",
				Message: "burst must be at least 1",
			})
		}
	}

	if cfg.CORS.AllowCredentials {
		for _, o := range cfg.CORS.AllowedOrigins {
			if o == "*" {
				errs = append(errs, FieldError{
					Field:   "server.cors.allowed_origins",
					Message: "wildcard origin cannot be combined with allow_credentials",
				})
				break
			}
		}
	}

	return errs
}

func validateModeration(cfg *ModerationConfig) []FieldError {
	var errs []FieldError

	switch cfg.Provider {
	case "keyword":
	case "http":
		if cfg.HTTP.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "moderation.http.endpoint",
				Message: "endpoint is required when provider is 'http'",
			})
		} else if err := validateURL(cfg.HTTP.Endpoint); err != nil {
			errs = append(errs, FieldError{
				Field:   "moderation.http.endpoint",
				Message: err.Error(),
			})
		}
		if cfg.HTTP.RequestsPerSecond < 0 {
			errs = append(errs, FieldError{
				Field:   "moderation.http.requests_per_second",
				Message: "requests per second must be non-negative",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "moderation.provider",
			Message: fmt.Sprintf("invalid provider %q: must be 'keyword' or 'http'", cfg.Provider),
		})
	}

	if cfg.Timeout <= 0 || cfg.Timeout > time.Minute {
		errs = append(errs, FieldError{
			Field:   "moderation.timeout",
			Message: "timeout must be between 0 and 1m",
		})
	}

	return errs
}

func validateGeneration(cfg *GenerationConfig, server *ServerConfig) []FieldError {
	var errs []FieldError

	switch cfg.Provider {
	case "static":
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			errs = append(errs, FieldError{
				Field:   "generation.gemini.api_key",
				Message: "API key is required when provider is 'gemini'",
			})
		}
		if cfg.Gemini.Temperature < 0 || cfg.Gemini.Temperature > 2 {
			errs = append(errs, FieldError{
				Field:   "generation.gemini.temperature",
				Message: "temperature must be between 0 and 2",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "generation.provider",
			Message: fmt.Sprintf("invalid provider %q: must be 'static' or 'gemini'", cfg.Provider),
		})
	}

	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "generation.timeout",
			Message: "timeout must be positive",
		})
	} else if server.WriteTimeout > 0 && cfg.Timeout >= server.WriteTimeout {
		errs = append(errs, FieldError{
			Field:   "generation.timeout",
			Message: "timeout must be shorter than server.write_timeout",
		})
	}

	if cfg.MaxPromptLength <= 0 {
		errs = append(errs, FieldError{
			Field:   "generation.max_prompt_length",
			Message: "max prompt length must be positive",
		})
	}

	return errs
}

func validateEvidence(cfg *EvidenceConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "evidence.sqlite.path",
				Message: "SQLite path is required when backend is 'sqlite'",
			})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "evidence.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q: must be 'sqlite' or 'sqlite3'", cfg.SQLite.Driver),
			})
		}
	case "postgres":
		if cfg.Postgres.Host == "" {
			errs = append(errs, FieldError{
				Field:   "evidence.postgres.host",
				Message: "PostgreSQL host is required when backend is 'postgres'",
			})
		}
		if cfg.Postgres.Port <= 0 || cfg.Postgres.Port > 65535 {
			errs = append(errs, FieldError{
				Field:   "evidence.postgres.port",
				Message: "PostgreSQL port must be between 1 and 65535",
			})
		}
		if cfg.Postgres.Database == "" {
			errs = append(errs, FieldError{
				Field:   "evidence.postgres.database",
				Message: "PostgreSQL database is required when backend is 'postgres'",
			})
		}
		validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
		if !validSSL[cfg.Postgres.SSLMode] {
			errs = append(errs, FieldError{
				Field:   "evidence.postgres.ssl_mode",
				Message: fmt.Sprintf("invalid SSL mode %q: must be 'disable', 'require', 'verify-ca', or 'verify-full'", cfg.Postgres.SSLMode),
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "evidence.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory', 'sqlite', or 'postgres'", cfg.Backend),
		})
	}

	if cfg.Recorder.AsyncBuffer < 0 {
		errs = append(errs, FieldError{
			Field:   "evidence.recorder.async_buffer",
			Message: "async buffer must be non-negative",
		})
	}
	if cfg.Recorder.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "evidence.recorder.write_timeout",
			Message: "write timeout must be positive",
		})
	}

	if cfg.Retention.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "evidence.retention.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}
	if cfg.Retention.ArchiveBeforeDelete {
		errs = append(errs, validateSink("evidence.retention.archive", &cfg.Retention.Archive)...)
	}

	if cfg.Query.DefaultLimit < 0 || cfg.Query.MaxLimit < 0 {
		errs = append(errs, FieldError{
			Field:   "evidence.query",
			Message: "query limits must be non-negative",
		})
	} else if cfg.Query.MaxLimit > 0 && cfg.Query.DefaultLimit > cfg.Query.MaxLimit {
		errs = append(errs, FieldError{
			Field:   "evidence.query.default_limit",
			Message: "default limit cannot exceed max limit",
		})
	}

	errs = append(errs, validateSink("evidence.export.sink", &cfg.Export.Sink)...)

	return errs
}

func validateSink(prefix string, s *SinkConfig) []FieldError {
	var errs []FieldError
	switch s.Type {
	case "file":
		if s.Directory == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".directory",
				Message: "directory is required when type is 'file'",
			})
		}
	case "s3", "gcs":
		if s.Bucket == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".bucket",
				Message: fmt.Sprintf("bucket is required when type is '%s'", s.Type),
			})
		}
		if s.Endpoint != "" {
			if err := validateURL(s.Endpoint); err != nil {
				errs = append(errs, FieldError{Field: prefix + ".endpoint", Message: err.Error()})
			}
		}
	default:
		errs = append(errs, FieldError{
			Field:   prefix + ".type",
			Message: fmt.Sprintf("invalid sink type %q: must be 'file', 's3', or 'gcs'", s.Type),
		})
	}
	return errs
}

func validateReview(cfg *ReviewConfig) []FieldError {
	var errs []FieldError

	switch cfg.Emitter {
	case "log":
	case "pubsub":
		if cfg.PubSub.ProjectID == "" {
			errs = append(errs, FieldError{
				Field:   "review.pubsub.project_id",
				Message: "project ID is required when emitter is 'pubsub'",
			})
		}
		if cfg.PubSub.TopicID == "" {
			errs = append(errs, FieldError{
				Field:   "review.pubsub.topic_id",
				Message: "topic ID is required when emitter is 'pubsub'",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "review.emitter",
			Message: fmt.Sprintf("invalid emitter %q: must be 'log' or 'pubsub'", cfg.Emitter),
		})
	}

	if cfg.QueueCapacity < 0 {
		errs = append(errs, FieldError{
			Field:   "review.queue_capacity",
			Message: "queue capacity must be non-negative",
		})
	}

	return errs
}

func validateSession(cfg *SessionConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "redis":
		if cfg.Redis.Addr == "" {
			errs = append(errs, FieldError{
				Field:   "session.redis.addr",
				Message: "address is required when backend is 'redis'",
			})
		} else if _, _, err := net.SplitHostPort(cfg.Redis.Addr); err != nil {
			errs = append(errs, FieldError{
				Field:   "session.redis.addr",
				Message: fmt.Sprintf("invalid address: %v", err),
			})
		}
		if cfg.Redis.DB < 0 {
			errs = append(errs, FieldError{
				Field:   "session.redis.db",
				Message: "db must be non-negative",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "session.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory' or 'redis'", cfg.Backend),
		})
	}

	if cfg.TTL <= 0 {
		errs = append(errs, FieldError{
			Field:   "session.ttl",
			Message: "ttl must be positive",
		})
	}

	return errs
}

func validateIdentity(cfg *IdentityConfig) []FieldError {
	var errs []FieldError
	if !cfg.Enabled {
		return nil
	}
	if len(cfg.Secret) < MinIdentitySecretLength {
		errs = append(errs, FieldError{
			Field:   "identity.secret",
			Message: fmt.Sprintf("secret must be at least %d bytes when identity is enabled", MinIdentitySecretLength),
		})
	}
	if cfg.TokenTTL < 0 {
		errs = append(errs, FieldError{
			Field:   "identity.token_ttl",
			Message: "token ttl must be non-negative",
		})
	}
	return errs
}

func validateKnowledge(cfg *KnowledgeConfig) []FieldError {
	var errs []FieldError
	g := &cfg.Git
	if g.Repository == "" {
		return nil
	}
	if cfg.Path != "" {
		errs = append(errs, FieldError{
			Field:   "knowledge.path",
			Message: "path and git.repository are mutually exclusive",
		})
	}
	if g.File == "" || filepath.IsAbs(g.File) || strings.HasPrefix(filepath.Clean(g.File), "..") {
		errs = append(errs, FieldError{
			Field:   "knowledge.git.file",
			Message: fmt.Sprintf("file %q must be a relative path inside the repository", g.File),
		})
	}
	if g.Depth < 0 {
		errs = append(errs, FieldError{
			Field:   "knowledge.git.depth",
			Message: "depth must be non-negative",
		})
	}
	if g.PollInterval < 0 || g.Timeout < 0 {
		errs = append(errs, FieldError{
			Field:   "knowledge.git.poll_interval",
			Message: "poll interval and timeout must be non-negative",
		})
	}
	switch g.Auth.Type {
	case "none", "":
	case "token":
		if g.Auth.Token == "" {
			errs = append(errs, FieldError{
				Field:   "knowledge.git.auth.token",
				Message: "token is required for token auth",
			})
		}
	case "ssh":
		if g.Auth.SSHKeyPath == "" {
			errs = append(errs, FieldError{
				Field:   "knowledge.git.auth.ssh_key_path",
				Message: "ssh_key_path is required for ssh auth",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "knowledge.git.auth.type",
			Message: fmt.Sprintf("unknown auth type %q (must be token, ssh or none)", g.Auth.Type),
		})
	}
	return errs
}

func validateSecrets(cfg *SecretsConfig) []FieldError {
	var errs []FieldError
	if cfg.CacheTTL < 0 {
		errs = append(errs, FieldError{
			Field:   "secrets.cache_ttl",
			Message: "cache ttl must be non-negative",
		})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json', 'text', or 'console'", cfg.Logging.Format),
		})
	}
	for i, p := range cfg.Logging.RedactPatterns {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: fmt.Sprintf("invalid pattern: %v", err),
			})
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}
	if !ascending(cfg.Metrics.RequestDurationBuckets) {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.request_duration_buckets",
			Message: "buckets must be strictly ascending",
		})
	}
	if !ascending(cfg.Metrics.RiskScoreBuckets) {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.risk_score_buckets",
			Message: "buckets must be strictly ascending",
		})
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "tracing endpoint is required when tracing is enabled",
			})
		}
		if cfg.Tracing.Exporter != "otlp" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.exporter",
				Message: fmt.Sprintf("invalid exporter %q: must be 'otlp'", cfg.Tracing.Exporter),
			})
		}
		validSamplers := map[string]bool{"always": true, "never": true, "ratio": true, "parent_based": true}
		if !validSamplers[cfg.Tracing.Sampler] {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q", cfg.Tracing.Sampler),
			})
		}
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	if cfg.Health.Enabled {
		for field, path := range map[string]string{
			"telemetry.health.liveness_path":  cfg.Health.LivenessPath,
			"telemetry.health.readiness_path": cfg.Health.ReadinessPath,
			"telemetry.health.version_path":   cfg.Health.VersionPath,
		} {
			if !strings.HasPrefix(path, "/") {
				errs = append(errs, FieldError{Field: field, Message: "path must start with /"})
			}
		}
		if cfg.Health.CheckTimeout <= 0 || cfg.Health.CheckTimeout > 60*time.Second {
			errs = append(errs, FieldError{
				Field:   "telemetry.health.check_timeout",
				Message: "check timeout must be between 0 and 60s",
			})
		}
	}

	return errs
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL format: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL host is required")
	}
	return nil
}

func ascending(v []float64) bool {
	for i := 1; i < len(v); i++ {
		if v[i] <= v[i-1] {
			return false
		}
	}
	return true
}
