package ssd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rangecache"
	"github.com/hupe1980/rangecache/memory"
)

func testBlock(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = seed + byte(i%31)
	}
	return data
}

func TestSSDCacheRoundTrip(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	key := rangecache.Key{FileNum: 1, Offset: 4096}
	data := testBlock(25000, 7)

	c.Save(key, data)
	c.wg.Wait()

	dst := make([]byte, len(data))
	ok, err := c.Load(key, dst)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data, dst)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(0), misses)

	// Unknown key is a miss.
	ok, err = c.Load(rangecache.Key{FileNum: 2, Offset: 0}, dst)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSSDCacheCompressionTypes(t *testing.T) {
	for _, ct := range []CompressionType{CompressionNone, CompressionLZ4, CompressionZSTD} {
		c, err := New(t.TempDir(), func(o *Options) {
			o.Compression = ct
		})
		require.NoError(t, err)

		key := rangecache.Key{FileNum: 1, Offset: 0}
		data := testBlock(10000, byte(ct))
		c.Save(key, data)
		c.wg.Wait()

		dst := make([]byte, len(data))
		ok, err := c.Load(key, dst)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, data, dst)
		require.NoError(t, c.Close())
	}
}

func TestSSDCacheReload(t *testing.T) {
	dir := t.TempDir()
	key := rangecache.Key{FileNum: 3, Offset: 8192}
	data := testBlock(5000, 11)

	{
		c, err := New(dir)
		require.NoError(t, err)
		c.Save(key, data)
		require.NoError(t, c.Close())
	}

	// A fresh cache over the same directory finds the block again.
	c, err := New(dir)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, 1, c.Len())

	dst := make([]byte, len(data))
	ok, err := c.Load(key, dst)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data, dst)
}

func TestSSDCacheEviction(t *testing.T) {
	// Random payloads barely compress, so size on disk tracks payload
	// size and a small budget forces eviction.
	c, err := New(t.TempDir(), func(o *Options) {
		o.MaxSizeBytes = 4096
		o.Compression = CompressionNone
	})
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 4; i++ {
		key := rangecache.Key{FileNum: 1, Offset: uint64(i) * 4096}
		c.Save(key, testBlock(1500, byte(i)))
		c.wg.Wait()
	}

	assert.LessOrEqual(t, c.Size(), int64(4096))
	assert.Less(t, c.Len(), 4)

	// The newest block survives.
	dst := make([]byte, 1500)
	ok, err := c.Load(rangecache.Key{FileNum: 1, Offset: 3 * 4096}, dst)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSSDCacheChecksumMismatch(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	key := rangecache.Key{FileNum: 5, Offset: 0}
	data := testBlock(2000, 3)
	c.Save(key, data)
	c.wg.Wait()

	// Corrupt the block on disk.
	path := c.keyToPath(key)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	dst := make([]byte, len(data))
	ok, err := c.Load(key, dst)
	assert.ErrorIs(t, err, ErrChecksum)
	assert.False(t, ok)

	// The corrupt block was dropped from disk and index.
	assert.NoFileExists(t, path)
	assert.Equal(t, 0, c.Len())
}

func TestSSDCacheInvalidate(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	for fileNum := uint64(1); fileNum <= 2; fileNum++ {
		for i := 0; i < 3; i++ {
			c.Save(rangecache.Key{FileNum: fileNum, Offset: uint64(i) * 4096}, testBlock(100, byte(i)))
		}
	}
	c.wg.Wait()
	require.Equal(t, 6, c.Len())

	// Drop everything belonging to file 1.
	c.Invalidate(func(key rangecache.Key) bool {
		return key.FileNum == 1
	})
	assert.Equal(t, 3, c.Len())

	dst := make([]byte, 100)
	ok, err := c.Load(rangecache.Key{FileNum: 1, Offset: 0}, dst)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = c.Load(rangecache.Key{FileNum: 2, Offset: 0}, dst)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSSDCacheClose(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	key := rangecache.Key{FileNum: 8, Offset: 0}
	c.Save(key, testBlock(100, 1))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close()) // idempotent

	_, err = c.Load(key, make([]byte, 100))
	assert.ErrorIs(t, err, ErrClosed)

	// Save after Close is a no-op.
	before := c.Len()
	c.Save(rangecache.Key{FileNum: 8, Offset: 4096}, testBlock(100, 2))
	assert.Equal(t, before, c.Len())
}

func TestSSDCacheEvictionCallbackAttach(t *testing.T) {
	ssd, err := New(t.TempDir())
	require.NoError(t, err)
	defer ssd.Close()

	alloc := memory.New(1 << 20)
	defer alloc.Close()
	cache := rangecache.New(alloc,
		rangecache.WithShards(1),
		rangecache.WithEvictionCallback(ssd.Evicted),
	)

	// Fill past the RAM budget so entries spill to disk.
	const size = 25000
	const numKeys = 100
	for i := 0; i < numKeys; i++ {
		key := rangecache.Key{FileNum: 1, Offset: uint64(i) * size}
		pin, _, err := cache.FindOrCreate(key, size)
		require.NoError(t, err)
		require.False(t, pin.Empty())
		copy(pin.Entry().Data(), testBlock(size, byte(i)))
		pin.Entry().SetExclusiveToShared()
		pin.Release()
	}
	ssd.wg.Wait()
	require.Positive(t, ssd.Len())

	// An evicted entry is recoverable from the disk tier.
	var recovered int
	dst := make([]byte, size)
	for i := 0; i < numKeys; i++ {
		key := rangecache.Key{FileNum: 1, Offset: uint64(i) * size}
		if cache.Exists(key) {
			continue
		}
		ok, err := ssd.Load(key, dst)
		require.NoError(t, err)
		if ok {
			assert.Equal(t, testBlock(size, byte(i)), dst)
			recovered++
		}
	}
	assert.Positive(t, recovered)
}
