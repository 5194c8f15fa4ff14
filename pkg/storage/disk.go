// Package storage is the product image store. Two drivers exist:
//   - "local": files under STORAGE_LOCAL_ROOT, served from STORAGE_URL
//   - "s3": any S3-compatible bucket (AWS S3, MinIO, R2)
//
// Boot once with storage.Connect(); services receive a Disk through
// storage.Default() or storage.Use(name).
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get for a missing path.
var ErrNotFound = errors.New("storage: file not found")

// Disk is the filesystem driver interface.
type Disk interface {
	// Put writes r to path, creating parent directories as needed.
	Put(ctx context.Context, path string, r io.Reader, contentType string) error

	// Get returns a reader for path. Caller must close it.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes a file. Deleting a missing file is not an error.
	Delete(ctx context.Context, path string) error

	// URL returns the public URL for path.
	URL(path string) string
}
