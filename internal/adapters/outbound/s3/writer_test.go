package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type mockS3API struct {
	putObjectFunc func(ctx context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error)
}

func (m *mockS3API) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putObjectFunc != nil {
		return m.putObjectFunc(ctx, params)
	}
	return &s3.PutObjectOutput{}, nil
}

func TestNewWriter(t *testing.T) {
	w := NewWriter(aws.Config{}, nil)
	if w == nil {
		t.Fatal("expected non-nil writer")
	}
	if w.client == nil || w.logger == nil {
		t.Error("expected client and default logger")
	}
}

func TestWriteFile(t *testing.T) {
	const payload = `{"wallets":3,"ok":true}`

	tests := []struct {
		name         string
		compress     bool
		wantEncoding string
	}{
		{name: "plain", compress: false},
		{name: "gzip", compress: true, wantEncoding: "gzip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *s3.PutObjectInput
			var body []byte
			client := &mockS3API{
				putObjectFunc: func(ctx context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
					got = params
					b, err := io.ReadAll(params.Body)
					if err != nil {
						t.Fatalf("read body: %v", err)
					}
					body = b
					return &s3.PutObjectOutput{}, nil
				},
			}
			w := newWriter(client, nil)

			if err := w.WriteFile(context.Background(), "reports", "recon/2026-10-17.json", strings.NewReader(payload), tt.compress); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}

			if aws.ToString(got.Bucket) != "reports" || aws.ToString(got.Key) != "recon/2026-10-17.json" {
				t.Errorf("bucket/key = %s/%s", aws.ToString(got.Bucket), aws.ToString(got.Key))
			}
			if aws.ToString(got.ContentEncoding) != tt.wantEncoding {
				t.Errorf("ContentEncoding = %q, want %q", aws.ToString(got.ContentEncoding), tt.wantEncoding)
			}
			if aws.ToInt64(got.ContentLength) != int64(len(body)) {
				t.Errorf("ContentLength = %d, body is %d bytes", aws.ToInt64(got.ContentLength), len(body))
			}

			if tt.compress {
				gz, err := gzip.NewReader(bytes.NewReader(body))
				if err != nil {
					t.Fatalf("gzip reader: %v", err)
				}
				body, err = io.ReadAll(gz)
				if err != nil {
					t.Fatalf("decompress: %v", err)
				}
			}
			if string(body) != payload {
				t.Errorf("body = %s, want %s", body, payload)
			}
		})
	}
}

func TestWriteFile_Errors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		w := newWriter(&mockS3API{}, nil)
		if err := w.WriteFile(context.Background(), "reports", "", strings.NewReader("x"), false); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("access denied", func(t *testing.T) {
		client := &mockS3API{
			putObjectFunc: func(ctx context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
				return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
			},
		}
		w := newWriter(client, nil)
		err := w.WriteFile(context.Background(), "reports", "k", strings.NewReader("x"), false)
		if !errors.Is(err, ErrAccessDenied) {
			t.Fatalf("err = %v, want ErrAccessDenied", err)
		}
	})

	t.Run("other failure", func(t *testing.T) {
		client := &mockS3API{
			putObjectFunc: func(ctx context.Context, params *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
				return nil, errors.New("connection reset")
			},
		}
		w := newWriter(client, nil)
		err := w.WriteFile(context.Background(), "reports", "k", strings.NewReader("x"), true)
		if err == nil || errors.Is(err, ErrAccessDenied) {
			t.Fatalf("err = %v, want generic failure", err)
		}
	})
}
