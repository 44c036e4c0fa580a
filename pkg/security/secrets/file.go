package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileProvider reads secrets from one file per secret in a directory.
// Files readable by group or others are refused.
type FileProvider struct {
	dir string
}

// NewFileProvider creates a FileProvider over dir, which must exist.
func NewFileProvider(dir string) (*FileProvider, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve secrets directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets directory %s is not a directory", dir)
	}
	return &FileProvider{dir: abs}, nil
}

// Lookup reads <dir>/<name> and trims surrounding whitespace.
func (p *FileProvider) Lookup(ctx context.Context, name string) (string, error) {
	path := filepath.Join(p.dir, name)
	if !strings.HasPrefix(path, p.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid secret name %q: escapes the secrets directory", name)
	}

	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: no file %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret %s is not a regular file", name)
	}
	if mode := info.Mode().Perm(); mode != 0o600 && mode != 0o400 {
		return "", fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", path, mode)
	}

	// #nosec G304 - path is confined to the secrets directory above
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Name returns "file".
func (p *FileProvider) Name() string {
	return "file"
}
