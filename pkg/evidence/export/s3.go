package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"mercator-hq/aegis/pkg/evidence"
)

// S3Config holds configuration for S3Sink.
type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string // Defaults to us-east-1
	Endpoint string // Optional custom endpoint (for MinIO, LocalStack, etc.)
}

// s3PutAPI is the subset of the S3 client used by the sink.
type s3PutAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads exports to an S3 bucket.
type S3Sink struct {
	client s3PutAPI
	bucket string
	prefix string
}

// NewS3Sink loads the default AWS credential chain and creates the client.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Sink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Name implements Sink.
func (s *S3Sink) Name() string { return string(SinkTypeS3) }

// Put uploads body as s3://<bucket>/<prefix>/<key>.
func (s *S3Sink) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	objKey := objectKey(s.prefix, key)
	location := fmt.Sprintf("s3://%s/%s", s.bucket, objKey)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", evidence.NewSinkError(s.Name(), location, err)
	}
	return location, nil
}
