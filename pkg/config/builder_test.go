package config

import "time"

// testSecret satisfies MinIdentitySecretLength.
const testSecret = "0123456789abcdef0123456789abcdef"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts from NewDefault and allows selective overrides.
type ConfigBuilder struct {
	cfg *Config
}

// NewTestConfig creates a builder whose configuration passes Validate as-is.
func NewTestConfig() *ConfigBuilder {
	cfg := NewDefault()
	cfg.Identity.Secret = testSecret
	cfg.Evidence.Backend = "memory"
	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return b.cfg
}

func (b *ConfigBuilder) WithListenAddress(addr string) *ConfigBuilder {
	b.cfg.Server.ListenAddress = addr
	return b
}

func (b *ConfigBuilder) WithWriteTimeout(d time.Duration) *ConfigBuilder {
	b.cfg.Server.WriteTimeout = d
	return b
}

func (b *ConfigBuilder) WithGenerationTimeout(d time.Duration) *ConfigBuilder {
	b.cfg.Generation.Timeout = d
	return b
}

func (b *ConfigBuilder) WithGemini(apiKey string) *ConfigBuilder {
	b.cfg.Generation.Provider = "gemini"
	b.cfg.Generation.Gemini.APIKey = apiKey
	return b
}

func (b *ConfigBuilder) WithSQLite(path string) *ConfigBuilder {
	b.cfg.Evidence.Backend = "sqlite"
	b.cfg.Evidence.SQLite.Path = path
	return b
}

func (b *ConfigBuilder) WithPostgres(host, database, user, password string, port int) *ConfigBuilder {
	b.cfg.Evidence.Backend = "postgres"
	b.cfg.Evidence.Postgres = PostgresConfig{
		Host:     host,
		Port:     port,
		Database: database,
		User:     user,
		Password: password,
		SSLMode:  "disable",
	}
	return b
}

func (b *ConfigBuilder) WithExportSink(sink SinkConfig) *ConfigBuilder {
	b.cfg.Evidence.Export.Sink = sink
	return b
}

func (b *ConfigBuilder) WithRedisSessions(addr string) *ConfigBuilder {
	b.cfg.Session.Backend = "redis"
	b.cfg.Session.Redis.Addr = addr
	return b
}

func (b *ConfigBuilder) WithPubSub(project, topic string) *ConfigBuilder {
	b.cfg.Review.Emitter = "pubsub"
	b.cfg.Review.PubSub.ProjectID = project
	b.cfg.Review.PubSub.TopicID = topic
	return b
}

func (b *ConfigBuilder) WithIdentity(enabled bool, secret string) *ConfigBuilder {
	b.cfg.Identity.Enabled = enabled
	b.cfg.Identity.Secret = secret
	return b
}

func (b *ConfigBuilder) WithLoggingLevel(level string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	return b
}

func (b *ConfigBuilder) WithTracing(enabled bool, endpoint string) *ConfigBuilder {
	b.cfg.Telemetry.Tracing.Enabled = enabled
	b.cfg.Telemetry.Tracing.Endpoint = endpoint
	return b
}

func (b *ConfigBuilder) WithRateLimit(rps float64, burst int) *ConfigBuilder {
	b.cfg.Server.RateLimit = RateLimitConfig{Enabled: true, RequestsPerSecond: rps, Burst: burst}
	return b
}

func (b *ConfigBuilder) WithTLS(certFile, keyFile string) *ConfigBuilder {
	b.cfg.Server.TLS = TLSConfig{
		Enabled:        true,
		CertFile:       certFile,
		KeyFile:        keyFile,
		MinVersion:     DefaultTLSMinVersion,
		ReloadInterval: DefaultTLSReloadInterval,
		ClientAuth:     DefaultTLSClientAuth,
	}
	return b
}

func (b *ConfigBuilder) WithTLSMinVersion(v string) *ConfigBuilder {
	b.cfg.Server.TLS.MinVersion = v
	return b
}

func (b *ConfigBuilder) WithClientCA(caFile, clientAuth string) *ConfigBuilder {
	b.cfg.Server.TLS.ClientCAFile = caFile
	b.cfg.Server.TLS.ClientAuth = clientAuth
	return b
}

func (b *ConfigBuilder) WithKnowledgeGit(repository string, auth GitAuthConfig) *ConfigBuilder {
	b.cfg.Knowledge.Git = KnowledgeGitConfig{Repository: repository, Auth: auth}
	applyKnowledgeGitDefaults(&b.cfg.Knowledge.Git)
	return b
}

func (b *ConfigBuilder) WithKnowledgePath(path string) *ConfigBuilder {
	b.cfg.Knowledge.Path = path
	return b
}
