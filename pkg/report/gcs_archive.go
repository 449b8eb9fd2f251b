package report

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSArchive stores report artifacts in Google Cloud Storage, keyed by
// content hash. Credentials come from Application Default Credentials.
type GCSArchive struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSArchive creates a GCS-backed report archive.
func NewGCSArchive(ctx context.Context, bucket, prefix string) (*GCSArchive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("report: create GCS client: %w", err)
	}
	return &GCSArchive{client: client, bucket: bucket, prefix: prefix}, nil
}

func (a *GCSArchive) object(hash string) *storage.ObjectHandle {
	return a.client.Bucket(a.bucket).Object(a.prefix + hash + ".json")
}

func (a *GCSArchive) Store(ctx context.Context, data []byte) (string, error) {
	hash := contentHash(data)
	obj := a.object(hash)

	if _, err := obj.Attrs(ctx); err == nil {
		return hash, nil
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("report: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("report: gcs close: %w", err)
	}
	return hash, nil
}

func (a *GCSArchive) Get(ctx context.Context, hash string) ([]byte, error) {
	r, err := a.object(hash).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("report: gcs get %q: %w", hash, err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}
