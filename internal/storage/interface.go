package storage

import (
	"context"
	"io"
)

// ObjectStorage is where exported reports are written.
type ObjectStorage interface {
	// Upload writes an object under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading. The caller closes it.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the public URL of key.
	GetURL(key string) string

	// Delete removes an object. Missing objects are not an error.
	Delete(ctx context.Context, key string) error
}
