// Package s3 uploads reconciliation reports to AWS S3.
package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

// s3WriterAPI defines the subset of S3 operations needed by the Writer.
type s3WriterAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Compile-time check that Writer implements outbound.S3Writer
var _ outbound.S3Writer = (*Writer)(nil)

// ErrAccessDenied is returned when the bucket rejects the credentials.
var ErrAccessDenied = errors.New("s3 access denied")

// Writer implements the S3Writer interface using the AWS SDK.
type Writer struct {
	client s3WriterAPI
	logger *slog.Logger
}

// NewWriter creates a new S3 Writer with the given AWS config. optFns
// customise the client, e.g. path-style addressing for a local endpoint.
func NewWriter(cfg aws.Config, logger *slog.Logger, optFns ...func(*s3.Options)) *Writer {
	return newWriter(s3.NewFromConfig(cfg, optFns...), logger)
}

func newWriter(client s3WriterAPI, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		client: client,
		logger: logger.With("component", "s3-writer"),
	}
}

// prepareBody handles optional gzip compression for the upload body.
func prepareBody(content io.Reader, compressGzip bool) (io.ReadSeeker, *string, int64, error) {
	var buf bytes.Buffer
	if compressGzip {
		gzWriter := gzip.NewWriter(&buf)
		if _, err := io.Copy(gzWriter, content); err != nil {
			return nil, nil, 0, fmt.Errorf("failed to compress content: %w", err)
		}
		if err := gzWriter.Close(); err != nil {
			return nil, nil, 0, fmt.Errorf("failed to close gzip writer: %w", err)
		}
		return bytes.NewReader(buf.Bytes()), aws.String("gzip"), int64(buf.Len()), nil
	}

	if _, err := io.Copy(&buf, content); err != nil {
		return nil, nil, 0, fmt.Errorf("failed to read content: %w", err)
	}
	return bytes.NewReader(buf.Bytes()), nil, int64(buf.Len()), nil
}

// WriteFile writes content to key in bucket, replacing any existing object.
func (w *Writer) WriteFile(ctx context.Context, bucket, key string, content io.Reader, compressGzip bool) error {
	if bucket == "" || key == "" {
		return fmt.Errorf("bucket and key are required")
	}

	body, contentEncoding, size, err := prepareBody(content, compressGzip)
	if err != nil {
		return err
	}

	_, err = w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		Body:            body,
		ContentLength:   aws.Int64(size),
		ContentType:     aws.String("application/json"),
		ContentEncoding: contentEncoding,
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "AccessDenied" || apiErr.ErrorCode() == "403") {
			return fmt.Errorf("failed to write %s/%s: %w", bucket, key, ErrAccessDenied)
		}
		return fmt.Errorf("failed to write to S3: %w", err)
	}

	w.logger.Debug("wrote file to S3", "bucket", bucket, "key", key, "bytes", size, "compressed", compressGzip)
	return nil
}
