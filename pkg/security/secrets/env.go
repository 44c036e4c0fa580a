package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider reads secrets from environment variables. The name
// "db-password" maps to Prefix + "DB_PASSWORD".
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates an EnvProvider with the given prefix.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

// Lookup reads the variable for name. An empty variable counts as unset.
func (p *EnvProvider) Lookup(ctx context.Context, name string) (string, error) {
	envVar := p.envVar(name)
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrNotFound, envVar)
	}
	return value, nil
}

// Name returns "env".
func (p *EnvProvider) Name() string {
	return "env"
}

func (p *EnvProvider) envVar(name string) string {
	name = strings.NewReplacer("-", "_", ".", "_").Replace(name)
	return p.Prefix + strings.ToUpper(name)
}
