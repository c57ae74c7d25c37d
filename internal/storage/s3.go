package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the minimal interface for S3 operations used by the store.
type S3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store implements BlobStore on Amazon S3.
type S3Store struct {
	client     S3API
	maxRetries int
	backoff    time.Duration
}

// NewS3Store creates a store over the given S3 client.
func NewS3Store(client S3API) *S3Store {
	return &S3Store{client: client, maxRetries: 3, backoff: 100 * time.Millisecond}
}

// Put uploads body as a single object.
func (s *S3Store) Put(ctx context.Context, loc Location, body []byte) error {
	err := s.retryWithBackoff(ctx, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(loc.Bucket),
			Key:         aws.String(loc.Key()),
			Body:        bytes.NewReader(body),
			ContentType: aws.String(contentType(loc.Filename)),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: s3://%s/%s: %w", ErrUploadFailed, loc.Bucket, loc.Key(), err)
	}
	return nil
}

// Get downloads an object into memory.
func (s *S3Store) Get(ctx context.Context, loc Location) ([]byte, error) {
	var body []byte
	err := s.retryWithBackoff(ctx, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(loc.Bucket),
			Key:    aws.String(loc.Key()),
		})
		if err != nil {
			var noSuchKey *types.NoSuchKey
			if errors.As(err, &noSuchKey) {
				return ErrObjectNotFound
			}
			return err
		}
		defer out.Body.Close()

		body, err = io.ReadAll(out.Body)
		return err
	})
	if errors.Is(err, ErrObjectNotFound) {
		return nil, fmt.Errorf("s3://%s/%s: %w", loc.Bucket, loc.Key(), ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: s3://%s/%s: %w", ErrDownloadFailed, loc.Bucket, loc.Key(), err)
	}
	return body, nil
}

// List returns one page of keys using ListObjectsV2 continuation tokens.
func (s *S3Store) List(ctx context.Context, bucket, prefix string, maxKeys int32, token string) (Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	if maxKeys > 0 {
		input.MaxKeys = aws.Int32(maxKeys)
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}

	var out *s3.ListObjectsV2Output
	err := s.retryWithBackoff(ctx, func() error {
		var err error
		out, err = s.client.ListObjectsV2(ctx, input)
		return err
	})
	if err != nil {
		return Page{}, fmt.Errorf("ListObjectsV2 s3://%s/%s: %w", bucket, prefix, err)
	}

	page := Page{Keys: make([]string, 0, len(out.Contents))}
	for _, obj := range out.Contents {
		page.Keys = append(page.Keys, aws.ToString(obj.Key))
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

// retryWithBackoff executes operation with exponential backoff.
func (s *S3Store) retryWithBackoff(ctx context.Context, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		// Not found is a final answer
		if errors.Is(lastErr, ErrObjectNotFound) {
			return lastErr
		}

		if attempt < s.maxRetries {
			wait := time.Duration(math.Pow(2, float64(attempt))) * s.backoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return lastErr
}

func contentType(filename string) string {
	switch path.Ext(filename) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
