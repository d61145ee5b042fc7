// Package storage uploads book assets to S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"authorship-service/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// Config describes the bucket and how objects are addressed publicly
type Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	PublicURL    string
	UsePathStyle bool
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores objects with public-read URLs
type S3Uploader struct {
	client objectPutter
	cfg    Config
	logger *zap.Logger
}

// NewS3Uploader creates an uploader from configuration
func NewS3Uploader(ctx context.Context, cfg Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	if cfg.Endpoint != "" {
		if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
			return nil, fmt.Errorf("invalid storage endpoint: %w", err)
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return newS3Uploader(client, cfg), nil
}

func newS3Uploader(client objectPutter, cfg Config) *S3Uploader {
	return &S3Uploader{client: client, cfg: cfg, logger: util.GetLogger()}
}

// Upload stores body under key and returns its public URL
func (u *S3Uploader) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	ctx, span := util.StartSpan(ctx, "S3Uploader.Upload")
	defer span.End()

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		util.RecordError(span, err)
		u.logger.Error("Failed to upload object", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	publicURL := u.PublicURL(key)
	u.logger.Info("Object uploaded", zap.String("key", key), zap.String("url", publicURL))
	return publicURL, nil
}

// PublicURL builds the URL an uploaded key is served from
func (u *S3Uploader) PublicURL(key string) string {
	key = strings.TrimLeft(key, "/")
	if u.cfg.PublicURL != "" {
		return strings.TrimRight(u.cfg.PublicURL, "/") + "/" + key
	}
	if u.cfg.Endpoint != "" {
		endpoint := strings.TrimRight(u.cfg.Endpoint, "/")
		if u.cfg.UsePathStyle {
			return fmt.Sprintf("%s/%s/%s", endpoint, u.cfg.Bucket, key)
		}
		if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
			return fmt.Sprintf("%s://%s.%s/%s", parsed.Scheme, u.cfg.Bucket, parsed.Host, key)
		}
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, key)
}
