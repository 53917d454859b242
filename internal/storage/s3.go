package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3Config selects the bucket endpoint. Endpoint and UsePathStyle are only
// needed for S3-compatible servers such as MinIO.
type S3Config struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// DefaultS3Config returns an S3Config for us-east-1.
func DefaultS3Config() S3Config {
	return S3Config{Region: "us-east-1"}
}

// S3Storage keeps snapshot objects in one S3 bucket.
type S3Storage struct {
	client   *s3.Client
	bucket   string
	attempts uint
	backoff  time.Duration
}

// NewS3Storage loads AWS credentials the default way and returns a storage
// for bucket.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StorageWithClient(client, bucket), nil
}

// NewS3StorageWithClient wraps an already configured client.
func NewS3StorageWithClient(client *s3.Client, bucket string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket, attempts: 4, backoff: 100 * time.Millisecond}
}

func (s *S3Storage) Put(ctx context.Context, key string, data []byte) error {
	err := s.do(ctx, "put", key, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        &s.bucket,
			Key:           &key,
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		})
		return err
	})
	return tag(ErrUploadFailed, err)
}

func (s *S3Storage) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.do(ctx, "get", key, func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		body, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, tag(ErrDownloadFailed, err)
	}
	return body, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	err := s.do(ctx, "delete", key, func(ctx context.Context) error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key})
		return err
	})
	return tag(ErrDeleteFailed, err)
}

func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	err := s.do(ctx, "head", key, func(ctx context.Context) error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrObjectNotFound):
		return false, nil
	default:
		return false, err
	}
}

// List pages through every key under prefix.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &prefix,
	})

	var keys []string
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: list %s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// do runs call with exponential backoff. A missing object is reported as
// ErrObjectNotFound and is never retried.
func (s *S3Storage) do(ctx context.Context, op, key string, call func(context.Context) error) error {
	return retry.Do(
		func() error { return notFound(call(ctx)) },
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !errors.Is(err, ErrObjectNotFound) }),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).
				Str("op", op).
				Str("bucket", s.bucket).
				Str("key", key).
				Uint("attempt", n+1).
				Msg("storage: s3 request failed, retrying")
		}),
	)
}

func notFound(err error) error {
	var (
		noKey *s3types.NoSuchKey
		head  *s3types.NotFound
	)
	if errors.As(err, &noKey) || errors.As(err, &head) {
		return ErrObjectNotFound
	}
	return err
}

// tag marks err with a storage sentinel, leaving ErrObjectNotFound and
// context errors as they are.
func tag(sentinel, err error) error {
	if err == nil || errors.Is(err, ErrObjectNotFound) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
