package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/spec-kit/event-checkin/internal/config"
)

// S3Store uploads to any S3-compatible endpoint (Supabase Storage, MinIO, AWS).
type S3Store struct {
	client        *s3.Client
	publicBaseURL string
	logger        *zap.Logger
}

// NewS3Store builds a path-style client for cfg.Endpoint.
func NewS3Store(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})
	logger.Info("object store configured", zap.String("endpoint", cfg.Endpoint))
	return &S3Store{client: client, publicBaseURL: cfg.PublicBaseURL, logger: logger}, nil
}

func (s *S3Store) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if err := validateKey(bucket, key); err != nil {
		return "", err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}
	s.logger.Debug("object uploaded", zap.String("bucket", bucket), zap.String("key", key), zap.Int("bytes", len(data)))
	return PublicURL(s.publicBaseURL, bucket, key), nil
}
