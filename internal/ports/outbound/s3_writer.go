package outbound

import (
	"context"
	"io"
)

// S3Writer writes report files to object storage.
type S3Writer interface {
	// WriteFile writes content to key, gzip compressed if compressGzip is true.
	WriteFile(ctx context.Context, bucket, key string, content io.Reader, compressGzip bool) error
}
