package storage

import (
	"context"
	"os"
)

// ErrNotFound is returned when a named source does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Opener resolves names to readable sources.
type Opener interface {
	// Open opens the named source for reading.
	Open(ctx context.Context, name string) (Source, error)
}

// Source is the bytes-from-storage collaborator of the cache: a
// read-only handle that fills caller-provided buffers at offsets.
type Source interface {
	// ReadAt reads len(p) bytes starting at offset off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// Size returns the size of the source in bytes.
	Size() int64
	// Close releases the handle.
	Close() error
}
