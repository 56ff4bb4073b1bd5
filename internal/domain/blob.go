package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one object in the archive bucket.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter uploads archive segments to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves and enumerates archive segments.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobDeleter removes archive segments, used by retention cleanup.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}
