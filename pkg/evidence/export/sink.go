package export

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"mercator-hq/aegis/pkg/evidence"
)

// Sink uploads a finished export and returns its location URI.
type Sink interface {
	// Name identifies the sink in logs and errors ("file", "s3", "gcs").
	Name() string

	// Put stores body under key.
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// SinkType selects an export sink implementation.
type SinkType string

const (
	SinkTypeFile SinkType = "file"
	SinkTypeS3   SinkType = "s3"
	SinkTypeGCS  SinkType = "gcs"
)

// SinkConfig holds the settings for every sink type. Only the fields of the
// selected type are read.
type SinkConfig struct {
	Type SinkType `yaml:"type"`

	// File
	Directory string `yaml:"directory"`

	// S3 and GCS
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // Optional custom S3 endpoint (MinIO, LocalStack)
}

// NewSink creates the sink selected by cfg.Type. An empty type selects the
// file sink.
func NewSink(ctx context.Context, cfg SinkConfig) (Sink, error) {
	switch cfg.Type {
	case SinkTypeFile, "":
		dir := cfg.Directory
		if dir == "" {
			dir = filepath.Join("data", "exports")
		}
		return NewFileSink(dir)
	case SinkTypeS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket is required for s3 export sink")
		}
		return NewS3Sink(ctx, S3Config{
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
	case SinkTypeGCS:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket is required for gcs export sink")
		}
		return NewGCSSink(ctx, GCSConfig{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	default:
		return nil, fmt.Errorf("unsupported export sink type: %s", cfg.Type)
	}
}

// FileSink writes exports below a local directory.
type FileSink struct {
	dir string
}

// NewFileSink creates the directory if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve export directory: %w", err)
	}
	return &FileSink{dir: abs}, nil
}

// Name implements Sink.
func (s *FileSink) Name() string { return string(SinkTypeFile) }

// Put writes body to <dir>/<key>. Keys may not escape the directory.
func (s *FileSink) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	target := filepath.Join(s.dir, filepath.FromSlash(key))
	location := "file://" + filepath.ToSlash(target)

	if !strings.HasPrefix(target, s.dir+string(filepath.Separator)) {
		return "", evidence.NewSinkError(s.Name(), location, fmt.Errorf("key %q escapes export directory", key))
	}
	if err := ctx.Err(); err != nil {
		return "", evidence.NewSinkError(s.Name(), location, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return "", evidence.NewSinkError(s.Name(), location, err)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, body, 0640); err != nil {
		return "", evidence.NewSinkError(s.Name(), location, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", evidence.NewSinkError(s.Name(), location, err)
	}
	return location, nil
}

// objectKey joins a bucket prefix and key with single slashes.
func objectKey(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}
