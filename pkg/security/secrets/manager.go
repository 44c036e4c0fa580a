package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

var refPattern = regexp.MustCompile(`\$\{secret:([^}]*)\}`)

// Manager tries its providers in order and caches what they return.
type Manager struct {
	providers []Provider
	cache     *cache
	logger    *slog.Logger
}

// NewManager creates a Manager. Values are cached for ttl.
func NewManager(providers []Provider, ttl time.Duration) *Manager {
	return &Manager{
		providers: providers,
		cache:     newCache(ttl),
		logger:    slog.Default().With("component", "secrets"),
	}
}

// Get returns the value of name from the first provider that holds it.
// A provider failing for any reason other than ErrNotFound stops the
// search, so a misconfigured file is never shadowed by the environment.
func (m *Manager) Get(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.New("empty secret name")
	}
	if v, ok := m.cache.get(name); ok {
		return v, nil
	}

	for _, p := range m.providers {
		v, err := p.Lookup(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("secret %q from %s: %w", name, p.Name(), err)
		}
		m.cache.set(name, v)
		m.logger.Debug("secret resolved", "name", redactName(name), "provider", p.Name())
		return v, nil
	}
	return "", fmt.Errorf("secret %q: %w in %s", name, ErrNotFound, m.providerNames())
}

// Expand replaces every ${secret:name} in s. Strings without references
// are returned unchanged. All failures are reported together.
func (m *Manager) Expand(ctx context.Context, s string) (string, error) {
	if !strings.Contains(s, "${secret:") {
		return s, nil
	}
	var errs []error
	out := refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := refPattern.FindStringSubmatch(ref)[1]
		v, err := m.Get(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return ref
		}
		return v
	})
	return out, errors.Join(errs...)
}

// Refresh drops cached values.
func (m *Manager) Refresh() {
	m.cache.clear()
}

func (m *Manager) providerNames() string {
	names := make([]string, len(m.providers))
	for i, p := range m.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ", ")
}

// redactName keeps enough of a secret name to debug with.
func redactName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
