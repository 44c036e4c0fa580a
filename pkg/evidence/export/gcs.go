package export

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"mercator-hq/aegis/pkg/evidence"
)

// GCSConfig holds configuration for GCSSink.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// GCSSink uploads exports to a Google Cloud Storage bucket using Application
// Default Credentials.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSink creates the storage client.
func NewGCSSink(ctx context.Context, cfg GCSConfig) (*GCSSink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSSink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Name implements Sink.
func (s *GCSSink) Name() string { return string(SinkTypeGCS) }

// Put uploads body as gs://<bucket>/<prefix>/<key>.
func (s *GCSSink) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	objKey := objectKey(s.prefix, key)
	location := fmt.Sprintf("gs://%s/%s", s.bucket, objKey)

	w := s.client.Bucket(s.bucket).Object(objKey).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return "", evidence.NewSinkError(s.Name(), location, err)
	}
	if err := w.Close(); err != nil {
		return "", evidence.NewSinkError(s.Name(), location, err)
	}
	return location, nil
}

// Close releases the storage client.
func (s *GCSSink) Close() error {
	return s.client.Close()
}
