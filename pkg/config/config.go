package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration structure for Aegis.
// It contains all configuration sections for the HTTP server, the
// governance stages and their collaborators, audit evidence, identity and
// telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, CORS and TLS.
	Server ServerConfig `yaml:"server"`

	// Knowledge selects the knowledge pack holding keyword lists, policy
	// tables, disclaimers and advisory bundles.
	Knowledge KnowledgeConfig `yaml:"knowledge"`

	// Moderation configures the moderation classifier used by the screener
	// and the auditor.
	Moderation ModerationConfig `yaml:"moderation"`

	// Generation configures the model that answers allowed requests.
	Generation GenerationConfig `yaml:"generation"`

	// Evidence contains configuration for audit records including backend
	// selection, the recorder, retention and export.
	Evidence EvidenceConfig `yaml:"evidence"`

	// Review configures where human-review flags are delivered.
	Review ReviewConfig `yaml:"review"`

	// Session configures the session store.
	Session SessionConfig `yaml:"session"`

	// Identity configures bearer token verification.
	Identity IdentityConfig `yaml:"identity"`

	// Secrets configures how ${secret:name} references in credential
	// fields are resolved.
	Secrets SecretsConfig `yaml:"secrets"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP API server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. It must leave room for the generation timeout.
	// Default: 60s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout bounds the handling of a single API request.
	// Default: 55s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits the size of request bodies.
	// Default: 1048576 (1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`

	// TLS enables HTTPS.
	TLS TLSConfig `yaml:"tls"`

	// RateLimit throttles API calls per caller.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures the per-caller token bucket on API routes.
// Callers are keyed by user id when authenticated, by remote address
// otherwise. Probe and metrics routes are never limited.
type RateLimitConfig struct {
	// Enabled turns the limiter on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// RequestsPerSecond is the sustained rate per caller.
	// Default: 5
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the bucket size.
	// Default: 10
	Burst int `yaml:"burst"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS is enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins for CORS requests.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods for CORS requests.
	// Default: ["GET", "POST", "DELETE", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed HTTP headers for CORS requests.
	// Default: ["Authorization", "Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders is a list of headers that are exposed to the client.
	// Default: ["X-Request-ID"]
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the maximum age (in seconds) for preflight request cache.
	// Default: 3600 (1 hour)
	MaxAge int `yaml:"max_age"`

	// AllowCredentials controls whether credentials are allowed in CORS
	// requests.
	// Default: false
	AllowCredentials bool `yaml:"allow_credentials"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	// Enabled controls whether the server terminates TLS.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the PEM encoded certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM encoded private key.
	KeyFile string `yaml:"key_file"`

	// MinVersion is the lowest accepted protocol version.
	// Options: "1.2", "1.3"
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`

	// CipherSuites restricts the TLS 1.2 cipher suites by IANA name.
	// Empty uses Go's secure defaults.
	CipherSuites []string `yaml:"cipher_suites"`

	// ReloadInterval is how often the certificate files are checked for
	// rotation.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`

	// ClientCAFile enables client certificate verification (mTLS) against
	// this PEM bundle.
	ClientCAFile string `yaml:"client_ca_file"`

	// ClientAuth selects how client certificates are treated when
	// ClientCAFile is set.
	// Options: "require", "verify_if_given"
	// Default: "require"
	ClientAuth string `yaml:"client_auth"`
}

// KnowledgeConfig selects and watches the knowledge pack.
type KnowledgeConfig struct {
	// Path is the pack file. Empty uses the pack embedded in the binary.
	Path string `yaml:"path"`

	// Watch reloads the pack when the file changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// Debounce collapses bursts of file events into one reload.
	// Default: 100ms
	Debounce time.Duration `yaml:"debounce"`

	// Git keeps the pack in a git repository. When a repository is set the
	// pack is read from the clone and Path must be empty.
	Git KnowledgeGitConfig `yaml:"git"`
}

// KnowledgeGitConfig tracks a branch of a repository holding the pack.
type KnowledgeGitConfig struct {
	// Repository URL (HTTPS, SSH or a local path).
	// Example: "git@github.com:acme/governance-packs.git"
	Repository string `yaml:"repository"`

	// Branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// File is the pack path inside the repository.
	// Default: "knowledge.yaml"
	File string `yaml:"file"`

	// LocalPath is where the repository is cloned. An existing clone is
	// reused.
	// Default: <tmp>/aegis-knowledge
	LocalPath string `yaml:"local_path"`

	// Depth for shallow clones; 0 clones full history.
	// Default: 1
	Depth int `yaml:"depth"`

	// PollInterval between pulls. Zero disables polling; the pack is read
	// once at startup and on SIGHUP.
	// Default: 1m
	PollInterval time.Duration `yaml:"poll_interval"`

	// Timeout bounds each clone or pull.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// Auth configures git authentication.
	Auth GitAuthConfig `yaml:"auth"`
}

// GitAuthConfig configures git authentication.
type GitAuthConfig struct {
	// Type is "token" (HTTPS), "ssh" or "none".
	// Default: "none"
	Type string `yaml:"type"`

	// Token is the HTTPS access token. Accepts ${secret:name}.
	Token string `yaml:"token"`

	// SSHKeyPath is the private key for ssh auth. It must not be readable
	// by group or others.
	SSHKeyPath string `yaml:"ssh_key_path"`

	// SSHKeyPassphrase unlocks an encrypted key. Accepts ${secret:name}.
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// ModerationConfig configures the moderation classifier.
type ModerationConfig struct {
	// Provider selects the classifier.
	// Options: "keyword" (local term table), "http" (remote endpoint)
	// Default: "keyword"
	Provider string `yaml:"provider"`

	// Timeout is the hard limit for one classification. A call exceeding it
	// is treated as flagged.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`

	// HTTP configures the remote classifier.
	HTTP ModerationHTTPConfig `yaml:"http"`
}

// ModerationHTTPConfig configures a remote moderation endpoint.
type ModerationHTTPConfig struct {
	// Endpoint receives {"input": text}. Required for the http provider.
	Endpoint string `yaml:"endpoint"`

	// APIKey is sent as a bearer token.
	APIKey string `yaml:"api_key"`

	// RequestsPerSecond bounds the outbound call rate. 0 disables limiting.
	// Default: 10
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the token bucket size.
	// Default: 20
	Burst int `yaml:"burst"`
}

// GenerationConfig configures the response generator.
type GenerationConfig struct {
	// Provider selects the generator.
	// Options: "static" (canned responses), "gemini"
	// Default: "static"
	Provider string `yaml:"provider"`

	// Timeout bounds one generation call. On timeout the caller receives
	// the stock apology.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// MaxPromptLength is the longest accepted prompt in characters.
	// Default: 32000
	MaxPromptLength int `yaml:"max_prompt_length"`

	// Static configures the canned generator.
	Static StaticGeneratorConfig `yaml:"static"`

	// Gemini configures the Gemini generator.
	Gemini GeminiConfig `yaml:"gemini"`
}

// StaticGeneratorConfig configures canned responses.
type StaticGeneratorConfig struct {
	// Fallback is returned when no keyword matches.
	Fallback string `yaml:"fallback"`

	// Responses maps a keyword to the response used when the prompt
	// contains it.
	Responses map[string]string `yaml:"responses"`
}

// GeminiConfig configures the Gemini API client.
type GeminiConfig struct {
	// APIKey authenticates against the Gemini API. Required for the gemini
	// provider.
	APIKey string `yaml:"api_key"`

	// Model is the model name.
	// Default: "gemini-1.5-flash"
	Model string `yaml:"model"`

	// Temperature; 0 keeps the model default.
	Temperature float32 `yaml:"temperature"`

	// MaxOutputTokens; 0 keeps the model default.
	MaxOutputTokens int32 `yaml:"max_output_tokens"`

	// SystemPrompt is sent as the system instruction.
	SystemPrompt string `yaml:"system_prompt"`
}

// EvidenceConfig contains configuration for audit evidence.
type EvidenceConfig struct {
	// Backend specifies the storage backend for audit records.
	// Options: "memory", "sqlite", "postgres"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Postgres contains PostgreSQL-specific configuration.
	Postgres PostgresConfig `yaml:"postgres"`

	// Recorder contains audit recorder configuration.
	Recorder RecorderConfig `yaml:"recorder"`

	// Retention contains retention enforcement configuration.
	Retention RetentionConfig `yaml:"retention"`

	// Query contains query configuration.
	Query QueryConfig `yaml:"query"`

	// Export contains export configuration.
	Export ExportConfig `yaml:"export"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the file path for the SQLite database.
	// Default: "data/audit.db"
	Path string `yaml:"path"`

	// Driver selects the database/sql driver.
	// Options: "sqlite" (modernc, pure Go), "sqlite3" (mattn, cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle database connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	// Host is the database host. Required for the postgres backend.
	Host string `yaml:"host"`

	// Port is the database port.
	// Default: 5432
	Port int `yaml:"port"`

	// Database is the database name. Required for the postgres backend.
	Database string `yaml:"database"`

	// User is the database user.
	User string `yaml:"user"`

	// Password is the database password. Prefer AEGIS_EVIDENCE_POSTGRES_PASSWORD.
	Password string `yaml:"password"`

	// SSLMode is the libpq sslmode.
	// Options: "disable", "require", "verify-ca", "verify-full"
	// Default: "require"
	SSLMode string `yaml:"ssl_mode"`
}

// DSN returns the lib/pq connection URL.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   "/" + p.Database,
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}
	q := url.Values{}
	if p.SSLMode != "" {
		q.Set("sslmode", p.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// RecorderConfig contains audit recorder configuration.
type RecorderConfig struct {
	// Async writes records from a background worker.
	// Default: true
	Async bool `yaml:"async"`

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout is the timeout for writing a record to storage.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RetentionConfig contains retention enforcement configuration. Retention
// periods themselves come from the knowledge pack.
type RetentionConfig struct {
	// PruneSchedule is a cron expression for deleting expired records.
	// Empty disables pruning.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"prune_schedule"`

	// ArchiveBeforeDelete uploads expired records before deleting them.
	// Default: false
	ArchiveBeforeDelete bool `yaml:"archive_before_delete"`

	// Archive is the sink expired records are uploaded to.
	Archive SinkConfig `yaml:"archive"`
}

// QueryConfig contains query configuration.
type QueryConfig struct {
	// DefaultLimit is the default number of records to return if not specified.
	// Default: 100
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit is the maximum number of records that can be returned in a
	// single query.
	// Default: 10000
	MaxLimit int `yaml:"max_limit"`

	// Timeout is the maximum duration for query execution.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`
}

// ExportConfig contains export configuration.
type ExportConfig struct {
	// JSONPretty enables pretty-printing for JSON exports.
	// Default: true
	JSONPretty bool `yaml:"json_pretty"`

	// CSVIncludeHeader includes a header row in CSV exports.
	// Default: true
	CSVIncludeHeader bool `yaml:"csv_include_header"`

	// Sink is where export files are written.
	Sink SinkConfig `yaml:"sink"`
}

// SinkConfig selects an object destination for exports and archives.
type SinkConfig struct {
	// Type selects the sink.
	// Options: "file", "s3", "gcs"
	// Default: "file"
	Type string `yaml:"type"`

	// Directory is used by the file sink.
	// Default: "data/exports"
	Directory string `yaml:"directory"`

	// Bucket is required for s3 and gcs.
	Bucket string `yaml:"bucket"`

	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`

	// Region is the AWS region for s3.
	Region string `yaml:"region"`

	// Endpoint overrides the S3 endpoint (MinIO, LocalStack).
	Endpoint string `yaml:"endpoint"`
}

// ReviewConfig configures review flag delivery.
type ReviewConfig struct {
	// Emitter selects where flags go besides the in-memory queue.
	// Options: "log", "pubsub"
	// Default: "log"
	Emitter string `yaml:"emitter"`

	// QueueCapacity bounds the in-memory queue served by the API.
	// Default: 1000
	QueueCapacity int `yaml:"queue_capacity"`

	// PubSub configures the Google Cloud Pub/Sub emitter.
	PubSub PubSubConfig `yaml:"pubsub"`
}

// PubSubConfig configures the Pub/Sub topic for review flags.
type PubSubConfig struct {
	// ProjectID is the Google Cloud project. Required for pubsub.
	ProjectID string `yaml:"project_id"`

	// TopicID is the topic flags are published to. Required for pubsub.
	TopicID string `yaml:"topic_id"`

	// Endpoint overrides the service endpoint, e.g. an emulator.
	Endpoint string `yaml:"endpoint"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	// Backend selects the store.
	// Options: "memory", "redis"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// TTL is the session lifetime.
	// Default: 8h
	TTL time.Duration `yaml:"ttl"`

	// Redis configures the redis store.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	// Addr is host:port. Required for the redis backend.
	Addr string `yaml:"addr"`

	// Password for AUTH, if any.
	Password string `yaml:"password"`

	// DB selects the logical database.
	DB int `yaml:"db"`

	// KeyPrefix namespaces session keys.
	// Default: "aegis:session:"
	KeyPrefix string `yaml:"key_prefix"`
}

// IdentityConfig configures bearer token verification.
type IdentityConfig struct {
	// Enabled requires a valid bearer token on API routes. When disabled the
	// API trusts the user_id in the request body with the default role.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Secret is the HS256 signing key, at least 32 bytes. Prefer
	// AEGIS_IDENTITY_SECRET.
	Secret string `yaml:"secret"`

	// Issuer is the expected iss claim.
	// Default: "aegis"
	Issuer string `yaml:"issuer"`

	// TokenTTL is the token lifetime. 0 uses the session TTL.
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// SecretsConfig selects the sources for ${secret:name} references. The
// environment is always consulted; a directory is tried first when set.
type SecretsConfig struct {
	// EnvPrefix is prepended to the upper-cased secret name.
	// Default: "AEGIS_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Directory holds one file per secret, as mounted by Kubernetes.
	// Files must be mode 0600 or 0400.
	Directory string `yaml:"directory"`

	// CacheTTL bounds how long a resolved value is reused.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes source file and line in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII enables automatic PII redaction in logs.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`

	// BufferSize is the async log buffer size. 0 writes synchronously.
	// Default: 10000
	BufferSize int `yaml:"buffer_size"`

	// RedactPatterns adds custom redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom PII redaction pattern.
type RedactPattern struct {
	// Name identifies the pattern.
	Name string `yaml:"name"`

	// Pattern is a Go regular expression.
	Pattern string `yaml:"pattern"`

	// Replacement is the text substituted for matches.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the Prometheus metric namespace.
	// Default: "aegis"
	Namespace string `yaml:"namespace"`

	// Subsystem is the Prometheus metric subsystem.
	// Default: ""
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets are histogram buckets in seconds for pipeline
	// and stage durations.
	// Default: [0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`

	// RiskScoreBuckets are histogram buckets for screened risk scores.
	// Default: [0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1]
	RiskScoreBuckets []float64 `yaml:"risk_score_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler is the sampling strategy.
	// Options: "always", "never", "ratio", "parent_based"
	// Default: "parent_based"
	Sampler string `yaml:"sampler"`

	// SampleRatio is used by the ratio and parent_based samplers.
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Exporter selects the span exporter.
	// Options: "otlp"
	// Default: "otlp"
	Exporter string `yaml:"exporter"`

	// Endpoint is the collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is reported as service.name.
	// Default: "aegis"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout is the export timeout.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// Enabled controls whether health endpoints are served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath is the liveness endpoint path.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the readiness endpoint path.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// VersionPath is the version endpoint path.
	// Default: "/version"
	VersionPath string `yaml:"version_path"`

	// CheckTimeout bounds each readiness check.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
