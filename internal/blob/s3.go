// Package blob stores photo bytes in S3-compatible object storage.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"love-album-backend/internal/config"
)

// S3Store uploads blobs to a bucket and returns their public URL
type S3Store struct {
	client        *s3.Client
	bucket        string
	region        string
	endpoint      string
	publicBaseURL string
}

// NewS3Store creates an S3 client from the AWS section of the configuration
func NewS3Store(ctx context.Context, cfg config.AWSConfig) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("aws.s3_bucket is not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := endpointURL(cfg.Endpoint, cfg.DisableSSL)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	log.Info().Str("bucket", cfg.S3Bucket).Str("endpoint", endpoint).Msg("Blob storage configured")

	return &S3Store{
		client:        client,
		bucket:        cfg.S3Bucket,
		region:        cfg.Region,
		endpoint:      endpoint,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// Upload stores data under key and returns the object's permanent URL
func (s *S3Store) Upload(ctx context.Context, key string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(http.DetectContentType(data)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return s.URL(key), nil
}

// URL returns the public URL of key
func (s *S3Store) URL(key string) string {
	return objectURL(s.publicBaseURL, s.endpoint, s.bucket, s.region, key)
}

func objectURL(publicBaseURL, endpoint, bucket, region, key string) string {
	switch {
	case publicBaseURL != "":
		return fmt.Sprintf("%s/%s", publicBaseURL, key)
	case endpoint != "":
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(endpoint, "/"), bucket, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
	}
}

// endpointURL adds a scheme to a bare host:port endpoint
func endpointURL(endpoint string, disableSSL bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if disableSSL {
		return "http://" + endpoint
	}
	return "https://" + endpoint
}
