package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/rangecache/internal/mmap"
)

// LocalStore implements Opener over the local file system.
type LocalStore struct {
	root string
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Open opens a file as a source. Files are memory mapped, which is
// the most efficient option for the random ranged reads a cache fill
// performs; when mapping fails (exotic filesystems, mapped-file
// limits) plain pread serves as the fallback.
func (s *LocalStore) Open(ctx context.Context, name string) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.root, name)
	m, err := mmap.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return openFileSource(path)
	}
	// Cache fills read scattered ranges, not a forward scan.
	_ = m.Advise(mmap.AccessRandom)
	return &localSource{m: m}, nil
}

type localSource struct {
	m *mmap.Mapping
}

func (b *localSource) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	data := b.m.Bytes()
	if off < 0 || off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *localSource) Size() int64 {
	return int64(b.m.Size())
}

func (b *localSource) Close() error {
	return b.m.Close()
}

func openFileSource(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileSource{f: f, size: fi.Size()}, nil
}

type fileSource struct {
	f    *os.File
	size int64
}

func (b *fileSource) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return b.f.ReadAt(p, off)
}

func (b *fileSource) Size() int64 {
	return b.size
}

func (b *fileSource) Close() error {
	return b.f.Close()
}
