package ports

import (
	"context"
	"io"
	"time"
)

// StorageProvider names a blob storage backend
type StorageProvider string

const (
	StorageLocal StorageProvider = "local"
	StorageS3    StorageProvider = "s3"
)

// BlobStore archives exported files. Keys use "/" separators regardless of
// backend.
type BlobStore interface {
	StoreBlob(ctx context.Context, key, contentType string, data io.Reader) error
	GetBlob(ctx context.Context, key string) (io.ReadCloser, error)
	BlobExists(ctx context.Context, key string) (bool, error)
	GetBlobMetadata(ctx context.Context, key string) (*BlobMetadata, error)

	// Location is a human-readable address for the stored key
	Location(key string) string
	Provider() StorageProvider
}

// BlobMetadata represents metadata for stored blobs
type BlobMetadata struct {
	Key          string          `json:"key"`
	Size         int64           `json:"size"`
	ContentType  string          `json:"content_type"`
	LastModified time.Time       `json:"last_modified"`
	Provider     StorageProvider `json:"provider"`
}
