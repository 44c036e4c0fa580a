package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRequestTimeout  = 55 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultMaxBodyBytes    = 1048576 // 1MB

	// TLS defaults
	DefaultTLSMinVersion     = "1.2"
	DefaultTLSReloadInterval = 5 * time.Minute
	DefaultTLSClientAuth     = "require"

	// CORS defaults
	DefaultCORSEnabled = true
	DefaultCORSMaxAge  = 3600 // 1 hour

	// Rate limit defaults
	DefaultRateLimitRPS   = 5.0
	DefaultRateLimitBurst = 10

	// Knowledge defaults
	DefaultKnowledgeDebounce        = 100 * time.Millisecond
	DefaultKnowledgeGitBranch       = "main"
	DefaultKnowledgeGitFile         = "knowledge.yaml"
	DefaultKnowledgeGitDepth        = 1
	DefaultKnowledgeGitPollInterval = time.Minute
	DefaultKnowledgeGitTimeout      = 30 * time.Second
	DefaultKnowledgeGitAuthType     = "none"

	// Moderation defaults
	DefaultModerationProvider = "keyword"
	DefaultModerationTimeout  = 5 * time.Second
	DefaultModerationRPS      = 10.0
	DefaultModerationBurst    = 20

	// Generation defaults
	DefaultGenerationProvider = "static"
	DefaultGenerationTimeout  = 30 * time.Second
	DefaultMaxPromptLength    = 32000
	DefaultGeminiModel        = "gemini-1.5-flash"

	// Evidence defaults
	DefaultEvidenceBackend              = "sqlite"
	DefaultEvidenceSQLitePath           = "data/audit.db"
	DefaultEvidenceSQLiteDriver         = "sqlite"
	DefaultEvidenceSQLiteMaxOpenConns   = 10
	DefaultEvidenceSQLiteMaxIdleConns   = 5
	DefaultEvidenceSQLiteWALMode        = true
	DefaultEvidenceSQLiteBusyTimeout    = 5 * time.Second
	DefaultEvidenceRecorderAsync        = true
	DefaultEvidenceRecorderAsyncBuffer  = 1000
	DefaultEvidenceRecorderWriteTimeout = 5 * time.Second
	DefaultEvidenceRetentionSchedule    = "0 3 * * *"
	DefaultEvidenceQueryDefaultLimit    = 100
	DefaultEvidenceQueryMaxLimit        = 10000
	DefaultEvidenceQueryTimeout         = 30 * time.Second
	DefaultEvidenceExportJSONPretty     = true
	DefaultEvidenceExportCSVHeader      = true
	DefaultSinkType                     = "file"
	DefaultExportDirectory              = "data/exports"
	DefaultArchiveDirectory             = "data/archives"
	DefaultPostgresPort                 = 5432
	DefaultPostgresSSLMode              = "require"

	// Review defaults
	DefaultReviewEmitter       = "log"
	DefaultReviewQueueCapacity = 1000

	// Session defaults
	DefaultSessionBackend  = "memory"
	DefaultSessionTTL      = 8 * time.Hour
	DefaultRedisKeyPrefix  = "aegis:session:"
	DefaultIdentityEnabled = true
	DefaultIdentityIssuer  = "aegis"

	// Secrets defaults
	DefaultSecretsEnvPrefix = "AEGIS_SECRET_"
	DefaultSecretsCacheTTL  = 5 * time.Minute

	// Telemetry defaults
	DefaultLoggingLevel      = "info"
	DefaultLoggingFormat     = "json"
	DefaultLoggingRedactPII  = true
	DefaultLoggingBufferSize = 10000
	DefaultMetricsEnabled    = true
	DefaultPrometheusPath    = "/metrics"
	DefaultMetricsNamespace  = "aegis"
	DefaultTracingSampler    = "parent_based"
	DefaultTracingRatio      = 0.1
	DefaultTracingExporter   = "otlp"
	DefaultTracingEndpoint   = "localhost:4317"
	DefaultServiceName       = "aegis"
	DefaultOTLPTimeout       = 10 * time.Second
	DefaultHealthEnabled     = true
	DefaultLivenessPath      = "/health"
	DefaultReadinessPath     = "/ready"
	DefaultVersionPath       = "/version"
	DefaultHealthTimeout     = 5 * time.Second
)

// NewDefault returns a configuration with every default applied, including
// the boolean defaults that ApplyDefaults cannot tell apart from an explicit
// false. LoadConfig decodes YAML on top of it.
func NewDefault() *Config {
	cfg := &Config{}
	cfg.Server.CORS.Enabled = DefaultCORSEnabled
	cfg.Evidence.SQLite.WALMode = DefaultEvidenceSQLiteWALMode
	cfg.Evidence.Recorder.Async = DefaultEvidenceRecorderAsync
	cfg.Evidence.Export.JSONPretty = DefaultEvidenceExportJSONPretty
	cfg.Evidence.Export.CSVIncludeHeader = DefaultEvidenceExportCSVHeader
	cfg.Identity.Enabled = DefaultIdentityEnabled
	cfg.Telemetry.Logging.RedactPII = DefaultLoggingRedactPII
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Health.Enabled = DefaultHealthEnabled
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any non-boolean fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)

	// Knowledge defaults
	if cfg.Knowledge.Debounce == 0 {
		cfg.Knowledge.Debounce = DefaultKnowledgeDebounce
	}
	applyKnowledgeGitDefaults(&cfg.Knowledge.Git)

	// Moderation defaults
	if cfg.Moderation.Provider == "" {
		cfg.Moderation.Provider = DefaultModerationProvider
	}
	if cfg.Moderation.Timeout == 0 {
		cfg.Moderation.Timeout = DefaultModerationTimeout
	}
	if cfg.Moderation.HTTP.RequestsPerSecond == 0 {
		cfg.Moderation.HTTP.RequestsPerSecond = DefaultModerationRPS
	}
	if cfg.Moderation.HTTP.Burst == 0 {
		cfg.Moderation.HTTP.Burst = DefaultModerationBurst
	}

	// Generation defaults
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = DefaultGenerationProvider
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = DefaultGenerationTimeout
	}
	if cfg.Generation.MaxPromptLength == 0 {
		cfg.Generation.MaxPromptLength = DefaultMaxPromptLength
	}
	if cfg.Generation.Gemini.Model == "" {
		cfg.Generation.Gemini.Model = DefaultGeminiModel
	}

	applyEvidenceDefaults(&cfg.Evidence)

	// Review defaults
	if cfg.Review.Emitter == "" {
		cfg.Review.Emitter = DefaultReviewEmitter
	}
	if cfg.Review.QueueCapacity == 0 {
		cfg.Review.QueueCapacity = DefaultReviewQueueCapacity
	}

	// Session defaults
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = DefaultSessionBackend
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = DefaultSessionTTL
	}
	if cfg.Session.Redis.KeyPrefix == "" {
		cfg.Session.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// Secrets defaults
	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}
	if cfg.Secrets.CacheTTL == 0 {
		cfg.Secrets.CacheTTL = DefaultSecretsCacheTTL
	}

	// Identity defaults
	if cfg.Identity.Issuer == "" {
		cfg.Identity.Issuer = DefaultIdentityIssuer
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	if s.MaxHeaderBytes == 0 {
		s.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if s.TLS.MinVersion == "" {
		s.TLS.MinVersion = DefaultTLSMinVersion
	}
	if s.TLS.ReloadInterval == 0 {
		s.TLS.ReloadInterval = DefaultTLSReloadInterval
	}
	if s.TLS.ClientAuth == "" {
		s.TLS.ClientAuth = DefaultTLSClientAuth
	}

	cors := &s.CORS
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if len(cors.ExposedHeaders) == 0 {
		cors.ExposedHeaders = []string{"X-Request-ID"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}

	if s.RateLimit.RequestsPerSecond == 0 {
		s.RateLimit.RequestsPerSecond = DefaultRateLimitRPS
	}
	if s.RateLimit.Burst == 0 {
		s.RateLimit.Burst = DefaultRateLimitBurst
	}
}

func applyEvidenceDefaults(e *EvidenceConfig) {
	if e.Backend == "" {
		e.Backend = DefaultEvidenceBackend
	}

	// SQLite defaults
	if e.SQLite.Path == "" {
		e.SQLite.Path = DefaultEvidenceSQLitePath
	}
	if e.SQLite.Driver == "" {
		e.SQLite.Driver = DefaultEvidenceSQLiteDriver
	}
	if e.SQLite.MaxOpenConns == 0 {
		e.SQLite.MaxOpenConns = DefaultEvidenceSQLiteMaxOpenConns
	}
	if e.SQLite.MaxIdleConns == 0 {
		e.SQLite.MaxIdleConns = DefaultEvidenceSQLiteMaxIdleConns
	}
	if e.SQLite.BusyTimeout == 0 {
		e.SQLite.BusyTimeout = DefaultEvidenceSQLiteBusyTimeout
	}

	// Postgres defaults
	if e.Postgres.Port == 0 {
		e.Postgres.Port = DefaultPostgresPort
	}
	if e.Postgres.SSLMode == "" {
		e.Postgres.SSLMode = DefaultPostgresSSLMode
	}

	// Recorder defaults
	if e.Recorder.AsyncBuffer == 0 {
		e.Recorder.AsyncBuffer = DefaultEvidenceRecorderAsyncBuffer
	}
	if e.Recorder.WriteTimeout == 0 {
		e.Recorder.WriteTimeout = DefaultEvidenceRecorderWriteTimeout
	}

	// Retention defaults
	if e.Retention.PruneSchedule == "" {
		e.Retention.PruneSchedule = DefaultEvidenceRetentionSchedule
	}
	applySinkDefaults(&e.Retention.Archive, DefaultArchiveDirectory)

	// Query defaults
	if e.Query.DefaultLimit == 0 {
		e.Query.DefaultLimit = DefaultEvidenceQueryDefaultLimit
	}
	if e.Query.MaxLimit == 0 {
		e.Query.MaxLimit = DefaultEvidenceQueryMaxLimit
	}
	if e.Query.Timeout == 0 {
		e.Query.Timeout = DefaultEvidenceQueryTimeout
	}

	applySinkDefaults(&e.Export.Sink, DefaultExportDirectory)
}

func applySinkDefaults(s *SinkConfig, dir string) {
	if s.Type == "" {
		s.Type = DefaultSinkType
	}
	if s.Type == "file" && s.Directory == "" {
		s.Directory = dir
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}
	if t.Logging.BufferSize == 0 {
		t.Logging.BufferSize = DefaultLoggingBufferSize
	}

	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultPrometheusPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(t.Metrics.RequestDurationBuckets) == 0 {
		t.Metrics.RequestDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30}
	}
	if len(t.Metrics.RiskScoreBuckets) == 0 {
		t.Metrics.RiskScoreBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}
	}

	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingRatio
	}
	if t.Tracing.Exporter == "" {
		t.Tracing.Exporter = DefaultTracingExporter
	}
	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultServiceName
	}
	if t.Tracing.OTLP.Timeout == 0 {
		t.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}

	if t.Health.LivenessPath == "" {
		t.Health.LivenessPath = DefaultLivenessPath
	}
	if t.Health.ReadinessPath == "" {
		t.Health.ReadinessPath = DefaultReadinessPath
	}
	if t.Health.VersionPath == "" {
		t.Health.VersionPath = DefaultVersionPath
	}
	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultHealthTimeout
	}
}

func applyKnowledgeGitDefaults(g *KnowledgeGitConfig) {
	if g.Repository == "" {
		return
	}
	if g.Branch == "" {
		g.Branch = DefaultKnowledgeGitBranch
	}
	if g.File == "" {
		g.File = DefaultKnowledgeGitFile
	}
	if g.LocalPath == "" {
		g.LocalPath = filepath.Join(os.TempDir(), "aegis-knowledge")
	}
	if g.Depth == 0 {
		g.Depth = DefaultKnowledgeGitDepth
	}
	if g.PollInterval == 0 {
		g.PollInterval = DefaultKnowledgeGitPollInterval
	}
	if g.Timeout == 0 {
		g.Timeout = DefaultKnowledgeGitTimeout
	}
	if g.Auth.Type == "" {
		g.Auth.Type = DefaultKnowledgeGitAuthType
	}
}
