package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	"github.com/sony/gobreaker/v2"

	"buildrecorder/internal/types"
)

// S3PutClient abstracts the S3 PutObject operation for testability.
type S3PutClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink archives zstd-compressed descriptors at
// <prefix>/<name>/<number>.json.zst. Uploads go through a circuit breaker.
type S3Sink struct {
	client  S3PutClient
	bucket  string
	prefix  string
	encoder *zstd.Encoder
	breaker *gobreaker.CircuitBreaker[*s3.PutObjectOutput]
	logger  *slog.Logger
}

// S3SinkOption is a functional option for configuring an S3Sink.
type S3SinkOption func(*S3Sink)

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[*s3.PutObjectOutput]) S3SinkOption {
	return func(s *S3Sink) {
		s.breaker = cb
	}
}

// NewS3Sink creates a sink uploading to bucket under prefix.
func NewS3Sink(client S3PutClient, bucket, prefix string, logger *slog.Logger, opts ...S3SinkOption) (*S3Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	s := &S3Sink{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		encoder: encoder,
		breaker: NewS3Breaker("s3-archive"),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewS3Breaker returns the breaker used by S3Sink: it opens after three
// consecutive failed uploads and lets one upload through after 30 seconds.
func NewS3Breaker(name string) *gobreaker.CircuitBreaker[*s3.PutObjectOutput] {
	return gobreaker.NewCircuitBreaker[*s3.PutObjectOutput](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// A cancelled publish says nothing about the bucket's health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// Key returns the object key a descriptor is stored under.
func (s *S3Sink) Key(d *types.BuildDescriptor) string {
	return path.Join(s.prefix, safeName(d.Name), safeName(d.Number)+".json.zst")
}

func (s *S3Sink) Publish(ctx context.Context, d *types.BuildDescriptor) error {
	data, err := encode(d)
	if err != nil {
		return err
	}
	body := s.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	key := s.Key(d)

	_, err = s.breaker.Execute(func() (*s3.PutObjectOutput, error) {
		return s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:          aws.String(s.bucket),
			Key:             aws.String(key),
			Body:            bytes.NewReader(body),
			ContentType:     aws.String("application/json"),
			ContentEncoding: aws.String("zstd"),
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return types.NewAppErrorWithDetails(types.ErrCodeUpstreamUnavailable,
				"circuit breaker is open; archive bucket unavailable", err,
				map[string]any{"bucket": s.bucket, "key": key})
		}
		return types.NewAppErrorWithDetails(types.ErrCodePublishFailed,
			"failed to upload build descriptor", err,
			map[string]any{"bucket": s.bucket, "key": key})
	}

	s.logger.Info("archived build descriptor",
		"bucket", s.bucket,
		"key", key,
		"raw_bytes", len(data),
		"stored_bytes", len(body),
	)
	return nil
}
