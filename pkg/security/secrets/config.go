package secrets

import (
	"context"

	"mercator-hq/aegis/pkg/config"
)

// FromConfig builds a Manager over the directory, when configured, and then
// the environment.
func FromConfig(cfg config.SecretsConfig) (*Manager, error) {
	var providers []Provider
	if cfg.Directory != "" {
		fp, err := NewFileProvider(cfg.Directory)
		if err != nil {
			return nil, err
		}
		providers = append(providers, fp)
	}
	providers = append(providers, NewEnvProvider(cfg.EnvPrefix))
	return NewManager(providers, cfg.CacheTTL), nil
}

type credentialField struct {
	name string
	ptr  *string
}

// credentialFields lists the configuration fields that may hold references.
func credentialFields(cfg *config.Config) []credentialField {
	return []credentialField{
		{"identity.secret", &cfg.Identity.Secret},
		{"generation.gemini.api_key", &cfg.Generation.Gemini.APIKey},
		{"moderation.http.api_key", &cfg.Moderation.HTTP.APIKey},
		{"evidence.postgres.password", &cfg.Evidence.Postgres.Password},
		{"session.redis.password", &cfg.Session.Redis.Password},
		{"knowledge.git.auth.token", &cfg.Knowledge.Git.Auth.Token},
		{"knowledge.git.auth.ssh_key_passphrase", &cfg.Knowledge.Git.Auth.SSHKeyPassphrase},
	}
}

// ResolveConfig expands references in the credential fields of cfg in
// place. Unresolvable fields are reported as a config.ValidationError.
func (m *Manager) ResolveConfig(ctx context.Context, cfg *config.Config) error {
	var errs []config.FieldError
	for _, f := range credentialFields(cfg) {
		v, err := m.Expand(ctx, *f.ptr)
		if err != nil {
			errs = append(errs, config.FieldError{Field: f.name, Message: err.Error()})
			continue
		}
		*f.ptr = v
	}
	if len(errs) > 0 {
		return config.ValidationError{Errors: errs}
	}
	return nil
}
