// Package storage defines the Storage interface used to keep activity-log
// archive exports outside the database, and the backends that implement it.
//
// Backends register themselves with the factory from an init() function in
// their own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// cmd/server blank-imports every backend so that NewStorage can dispatch on
// storage.default_backend.
package storage

import (
	"context"
	"io"
)

// Storage is an object store keyed by slash-separated paths
type Storage interface {
	// Upload stores the content read from reader and reports its size and SHA-256
	Upload(ctx context.Context, path string, reader io.Reader, size int64) (*UploadResult, error)

	// Download opens a stored object for reading
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether an object is stored at path
	Exists(ctx context.Context, path string) (bool, error)
}

// UploadResult contains information about an uploaded object
type UploadResult struct {
	// Path is the storage path where the object was stored
	Path string

	// Size is the object size in bytes
	Size int64

	// Checksum is the hex SHA-256 of the object contents
	Checksum string
}
