// Package minio provides a storage.Source over MinIO and other
// S3-compatible object stores using ranged GetObject requests.
package minio

import (
	"context"
	"io"
	"path"

	"github.com/hupe1980/rangecache/storage"
	"github.com/minio/minio-go/v7"
)

// Store implements storage.Opener for MinIO.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore creates a new MinIO store.
// bucket is the bucket name; rootPrefix is prepended to all keys.
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Open probes the object and returns a ranged-read source over it.
func (s *Store) Open(ctx context.Context, name string) (storage.Source, error) {
	key := s.key(name)

	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	return &minioSource{
		client: s.client,
		bucket: s.bucket,
		key:    key,
		size:   info.Size,
	}, nil
}

type minioSource struct {
	client *minio.Client
	bucket string
	key    string
	size   int64
}

func (b *minioSource) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off >= b.size {
		return 0, io.EOF
	}

	opts := minio.GetObjectOptions{}
	end := off + int64(len(p)) - 1
	if end >= b.size {
		end = b.size - 1
	}
	if err := opts.SetRange(off, end); err != nil {
		return 0, err
	}

	obj, err := b.client.GetObject(ctx, b.bucket, b.key, opts)
	if err != nil {
		return 0, err
	}
	defer obj.Close()

	n, err := io.ReadFull(obj, p[:end-off+1])
	if err == nil && int64(n) < int64(len(p)) {
		return n, io.EOF
	}
	return n, err
}

func (b *minioSource) Size() int64 {
	return b.size
}

func (b *minioSource) Close() error {
	return nil
}
