package blob

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"tablefix/internal/errors"
	"tablefix/ports"
)

// LocalBlobStore implements BlobStore on the local filesystem with S3-like
// keys
type LocalBlobStore struct {
	basePath string
}

// NewLocalBlobStore creates the base directory if needed
func NewLocalBlobStore(basePath string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalBlobStore{basePath: basePath}, nil
}

// Provider returns the storage provider type
func (lbs *LocalBlobStore) Provider() ports.StorageProvider {
	return ports.StorageLocal
}

// StoreBlob writes data under key, replacing any previous content
func (lbs *LocalBlobStore) StoreBlob(ctx context.Context, key, contentType string, data io.Reader) error {
	filePath, err := lbs.keyToPath(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to write file %s: %w", filePath, err)
	}
	return nil
}

// GetBlob opens a stored blob
func (lbs *LocalBlobStore) GetBlob(ctx context.Context, key string) (io.ReadCloser, error) {
	filePath, err := lbs.keyToPath(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(fmt.Sprintf("blob %s", key))
		}
		return nil, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	return file, nil
}

// BlobExists checks if a blob exists
func (lbs *LocalBlobStore) BlobExists(ctx context.Context, key string) (bool, error) {
	filePath, err := lbs.keyToPath(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(filePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check file existence: %w", err)
}

// GetBlobMetadata returns metadata for a blob
func (lbs *LocalBlobStore) GetBlobMetadata(ctx context.Context, key string) (*ports.BlobMetadata, error) {
	filePath, err := lbs.keyToPath(key)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(fmt.Sprintf("blob %s", key))
		}
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	return &ports.BlobMetadata{
		Key:          key,
		Size:         stat.Size(),
		ContentType:  mime.TypeByExtension(filepath.Ext(filePath)),
		LastModified: stat.ModTime(),
		Provider:     ports.StorageLocal,
	}, nil
}

// Location returns the filesystem path for key
func (lbs *LocalBlobStore) Location(key string) string {
	p, err := lbs.keyToPath(key)
	if err != nil {
		return key
	}
	return p
}

// keyToPath converts an S3-style key to a path under the base directory,
// rejecting keys that escape it
func (lbs *LocalBlobStore) keyToPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.InvalidInput(fmt.Sprintf("invalid blob key %q", key))
	}
	return filepath.Join(lbs.basePath, clean), nil
}
