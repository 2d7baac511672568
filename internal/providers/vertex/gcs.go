package vertex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storagev1 "google.golang.org/api/storage/v1"

	"dreamframe/internal/domain"
	"dreamframe/internal/providers/video"
)

// maxObjectBytes caps a downloaded VEO output; real clips are a few MiB.
const maxObjectBytes = 256 << 20

// ObjectReader downloads objects that VEO wrote to Cloud Storage.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, object string) ([]byte, string, error)
}

// GCSReader reads objects through the Cloud Storage JSON API.
type GCSReader struct {
	svc *storagev1.Service
}

// NewGCSReader authenticates with ts, normally the same token cache the VEO clients use.
func NewGCSReader(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*GCSReader, error) {
	all := make([]option.ClientOption, 0, len(opts)+1)
	if ts != nil {
		all = append(all, option.WithTokenSource(ts))
	}
	all = append(all, opts...)
	svc, err := storagev1.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("vertex: init storage service: %w", err)
	}
	return &GCSReader{svc: svc}, nil
}

// ReadObject downloads bucket/object and returns its bytes and content type.
func (r *GCSReader) ReadObject(ctx context.Context, bucket, object string) ([]byte, string, error) {
	resp, err := r.svc.Objects.Get(bucket, object).Context(ctx).Download()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			pe := domain.NewProviderError(objectErrorKind(apiErr.Code), "gcs", "download", err)
			pe.StatusCode = apiErr.Code
			return nil, "", pe
		}
		return nil, "", video.TransportError("gcs", "download", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxObjectBytes+1))
	if err != nil {
		return nil, "", video.TransportError("gcs", "download", err)
	}
	if len(data) > maxObjectBytes {
		return nil, "", domain.NewProviderError(domain.KindTerminal, "gcs", "download", fmt.Errorf("object gs://%s/%s exceeds %d bytes", bucket, object, maxObjectBytes))
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// objectErrorKind differs from endpoint classification: a missing object fails
// one generation and must not disable the provider.
func objectErrorKind(code int) domain.ErrorKind {
	switch kind := video.KindForStatus(code); kind {
	case domain.KindAuth, domain.KindTransport:
		return kind
	default:
		return domain.KindTerminal
	}
}

// ParseGCSURI splits gs://bucket/path/to/object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	trimmed := strings.TrimSpace(uri)
	rest, ok := strings.CutPrefix(trimmed, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// uri: %q", uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("gs:// uri needs bucket and object: %q", uri)
	}
	return bucket, object, nil
}

var _ ObjectReader = (*GCSReader)(nil)
