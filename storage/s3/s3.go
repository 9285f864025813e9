// Package s3 provides a storage.Source over Amazon S3 using ranged
// GetObject requests.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/rangecache/storage"
)

// Client is the subset of the S3 API the store uses.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Store implements storage.Opener for S3.
type Store struct {
	client Client
	bucket string
	prefix string
}

// NewStore creates a new S3 store.
// bucket is the S3 bucket name; rootPrefix is prepended to all keys.
func NewStore(client Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

// New creates a Store with a client built from the default AWS
// configuration chain (environment, shared config, instance role).
func New(ctx context.Context, bucket, rootPrefix string) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewStore(s3.NewFromConfig(cfg), bucket, rootPrefix), nil
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Open probes the object with HeadObject and returns a ranged-read
// source over it.
func (s *Store) Open(ctx context.Context, name string) (storage.Source, error) {
	key := s.key(name)

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, storage.ErrNotFound
		}
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	return &s3Source{
		client: s.client,
		bucket: s.bucket,
		key:    key,
		size:   *head.ContentLength,
	}, nil
}

type s3Source struct {
	client Client
	bucket string
	key    string
	size   int64
}

// ReadAt reads len(p) bytes starting at offset off using a ranged
// GetObject request.
func (b *s3Source) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off >= b.size {
		return 0, io.EOF
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	end := off + int64(len(p)) - 1
	if end >= b.size {
		end = b.size - 1
	}

	rangeHeader := fmt.Sprintf("bytes=%d-%d", off, end)

	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	n, err := io.ReadFull(resp.Body, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		if off+int64(n) == b.size {
			return n, nil
		}
		return n, io.EOF
	}

	expected := end - off + 1
	if int64(n) == expected && int64(n) < int64(len(p)) {
		return n, io.EOF
	}

	return n, err
}

func (b *s3Source) Size() int64 {
	return b.size
}

func (b *s3Source) Close() error {
	return nil
}
