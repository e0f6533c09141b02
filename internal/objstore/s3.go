// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package objstore adapts the S3 object store holding scanned upload
// artifacts. Buckets and keys always come from the upload record; the
// adapter itself is stateless.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// ErrObjectMissing marks a get against a key that no longer exists.
var ErrObjectMissing = errors.New("objstore: object not found")

// maxObjectBytes bounds GetObject reads. Uploads are capped well below this
// at validation time; the limit only guards against a corrupt length header.
const maxObjectBytes = 256 << 20

// Options configures the S3 adapter. Endpoint switches the client to a
// custom path-style endpoint for local setups (MinIO and friends).
type Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// S3Store implements presigned downloads, reads and deletes against S3.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
}

// NewS3Store builds the adapter from explicit options. With no static
// credentials configured the default AWS chain applies (env, profile, IMDS).
func NewS3Store(ctx context.Context, opts Options) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("objstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		if opts.ForcePathStyle || opts.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

// PresignedDownload returns a time-limited GET URL for the object. When
// filename is non-empty the URL forces a download with that name via a
// response content-disposition override.
func (s *S3Store) PresignedDownload(ctx context.Context, bucket, key string, expiresIn time.Duration, filename string) (string, time.Time, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if filename != "" {
		input.ResponseContentDisposition = aws.String(contentDisposition(filename))
	}

	req, err := s.presign.PresignGetObject(ctx, input, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("objstore: presign %s/%s: %w", bucket, key, err)
	}
	return req.URL, time.Now().Add(expiresIn), nil
}

// GetObject reads the full object body.
func (s *S3Store) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("objstore: get %s/%s: %w", bucket, key, ErrObjectMissing)
		}
		return nil, fmt.Errorf("objstore: get %s/%s: %w", bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxObjectBytes))
	if err != nil {
		return nil, fmt.Errorf("objstore: read %s/%s: %w", bucket, key, err)
	}
	return body, nil
}

// DeleteObject removes the object. S3 reports success for keys that are
// already gone, which keeps record deletion retryable.
func (s *S3Store) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("objstore: delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	return code == "NoSuchKey" || code == "NotFound"
}

// contentDisposition renders an attachment header for the given filename.
// mime.FormatMediaType handles the RFC 6266 / RFC 2231 encoding of
// non-ASCII names (filename*=utf-8''...).
func contentDisposition(filename string) string {
	name := strings.TrimSpace(filename)
	if name == "" {
		return "attachment"
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
