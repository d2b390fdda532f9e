// Package s3store implements filedock.ObjectStore on S3 and S3-compatible
// servers such as MinIO.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/sagarc03/filedock"
)

const DefaultRegion = "us-east-1"

// Config holds the connection settings for the bucket.
type Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint, e.g. http://localhost:9000 for MinIO.
	Endpoint string
	// AccessKey and SecretKey are used when set; otherwise the default AWS
	// credential chain applies.
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

type Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("new s3 store: bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("new s3 store: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
	}, nil
}

func (s *Store) Presign(ctx context.Context, key string, intent filedock.Intent, ttl time.Duration, opts filedock.PresignOptions) (string, error) {
	switch intent {
	case filedock.IntentRead:
		req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(ttl))
		if err != nil {
			return "", fmt.Errorf("presign get %s: %w", key, err)
		}
		return req.URL, nil

	case filedock.IntentWrite:
		input := &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}
		if opts.ContentType != "" {
			input.ContentType = aws.String(opts.ContentType)
		}

		req, err := s.presigner.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
		if err != nil {
			return "", fmt.Errorf("presign put %s: %w", key, err)
		}
		return req.URL, nil

	default:
		return "", fmt.Errorf("presign %s: unsupported intent %q", key, intent)
	}
}

// Delete removes the object. S3 reports success for absent keys; servers
// that answer NoSuchKey are treated the same way.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
