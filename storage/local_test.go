package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rangecache"
	"github.com/hupe1980/rangecache/memory"
)

func writeTestFile(t *testing.T, dir, name string, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	return data
}

func TestLocalStoreReadAt(t *testing.T) {
	dir := t.TempDir()
	data := writeTestFile(t, dir, "data.bin", 10000)

	store := NewLocalStore(dir)
	ctx := context.Background()

	src, err := store.Open(ctx, "data.bin")
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, int64(10000), src.Size())

	buf := make([]byte, 100)
	n, err := src.ReadAt(ctx, buf, 500)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[500:600], buf)

	// Read past the tail yields what remains plus EOF.
	n, err = src.ReadAt(ctx, buf, 9950)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 50, n)
	assert.Equal(t, data[9950:], buf[:n])

	// Offset at or beyond the end is a plain EOF.
	n, err = src.ReadAt(ctx, buf, 10000)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, n)
}

func TestLocalStoreOpenMissing(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	_, err := store.Open(context.Background(), "nope.bin")
	assert.Error(t, err)
}

func TestLocalStoreContextCanceled(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "data.bin", 100)

	store := NewLocalStore(dir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Open(ctx, "data.bin")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSourceLoaderFillsPins(t *testing.T) {
	dir := t.TempDir()
	data := writeTestFile(t, dir, "data.bin", 64*1024)

	src, err := NewLocalStore(dir).Open(context.Background(), "data.bin")
	require.NoError(t, err)
	defer src.Close()

	alloc := memory.New(1 << 20)
	defer alloc.Close()
	cache := rangecache.New(alloc)

	keys := []rangecache.Key{
		{FileNum: 1, Offset: 0},
		{FileNum: 1, Offset: 8192},
		{FileNum: 1, Offset: 40000},
	}
	sizes := []int64{8192, 5000, 10000}

	load := rangecache.NewCoalescedLoad(cache, NewSourceLoader(src, 4), keys, sizes)
	_, err = load.LoadOrFuture(context.Background())
	require.NoError(t, err)

	for i, key := range keys {
		pin, _, err := cache.FindOrCreate(key, sizes[i])
		require.NoError(t, err)
		require.False(t, pin.Empty())
		off := int64(key.Offset)
		assert.Equal(t, data[off:off+sizes[i]], pin.Entry().Data()[:sizes[i]])
		pin.Release()
	}
}

func TestSourceLoaderShortRead(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "data.bin", 1000)

	src, err := NewLocalStore(dir).Open(context.Background(), "data.bin")
	require.NoError(t, err)
	defer src.Close()

	alloc := memory.New(1 << 20)
	defer alloc.Close()
	cache := rangecache.New(alloc)

	// The requested range extends past the file; the load must fail
	// and publish nothing.
	keys := []rangecache.Key{{FileNum: 1, Offset: 500}}
	sizes := []int64{1000}

	load := rangecache.NewCoalescedLoad(cache, NewSourceLoader(src, 0), keys, sizes)
	_, err = load.LoadOrFuture(context.Background())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.False(t, cache.Exists(keys[0]))
}
