// Package config provides configuration management for the Aegis governance
// service.
//
// Configuration is read from YAML, decoded on top of NewDefault, and then
// overridden by environment variables before validation. Unknown YAML keys
// are rejected so that a misspelled field fails loudly instead of silently
// keeping its default.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("aegis.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("aegis.yaml")
//
// An empty path passed to LoadConfigWithEnvOverrides starts from the
// defaults alone, which is how the container image runs.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention AEGIS_SECTION_FIELD:
//
//   - AEGIS_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - AEGIS_IDENTITY_SECRET overrides identity.secret
//   - AEGIS_EVIDENCE_POSTGRES_PASSWORD overrides evidence.postgres.password
//
// A value that fails to parse (for example AEGIS_GENERATION_TIMEOUT=soon) is
// reported as a FieldError naming the variable.
//
// # Defaults and Validation
//
// The defaults are not valid on their own: identity is enabled and needs a
// signing secret of at least 32 bytes. Everything else runs locally with
// keyword moderation, static generation, and a SQLite evidence store.
//
// Validation collects every problem before returning:
//
//	configuration validation failed with 2 errors:
//	  - identity.secret: secret must be at least 32 bytes when identity is enabled
//	  - evidence.retention.prune_schedule: invalid cron expression: ...
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//
//	generation:
//	  provider: "gemini"
//	  gemini:
//	    model: "gemini-1.5-flash"
//
//	evidence:
//	  backend: "postgres"
//	  postgres:
//	    host: "db.internal"
//	    database: "aegis"
//	    user: "aegis"
//	  export:
//	    sink:
//	      type: "s3"
//	      bucket: "aegis-audit-exports"
//	      region: "eu-west-1"
//
//	session:
//	  backend: "redis"
//	  redis:
//	    addr: "redis.internal:6379"
//
// # Singleton
//
// Initialize, GetConfig and ReloadConfig keep a process-wide configuration
// behind an atomic pointer. Prefer passing *Config explicitly; the singleton
// exists for the CLI and for SIGHUP reloads.
package config
