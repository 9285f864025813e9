package rangecache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcLoader adapts a function to the Loader interface for tests.
type funcLoader func(ctx context.Context, pins []*Pin) error

func (f funcLoader) PerformLoad(ctx context.Context, pins []*Pin) error {
	return f(ctx, pins)
}

// fillLoader writes the deterministic per-key pattern into every pin.
var fillLoader = funcLoader(func(_ context.Context, pins []*Pin) error {
	for _, pin := range pins {
		e := pin.Entry()
		initializeContents(e.Key(), e.Data()[:e.Size()])
	}
	return nil
})

func batchKeys(fileNum uint64, n int, size int64) ([]Key, []int64) {
	keys := make([]Key, n)
	sizes := make([]int64, n)
	for i := range keys {
		keys[i] = Key{FileNum: fileNum, Offset: uint64(i) * uint64(size)}
		sizes[i] = size
	}
	return keys, sizes
}

func TestCoalescedLoad(t *testing.T) {
	c, _ := newTestCache(t, 1<<20)
	ctx := context.Background()

	keys, sizes := batchKeys(1, 8, 10000)
	load := NewCoalescedLoad(c, fillLoader, keys, sizes)
	assert.Equal(t, LoadPending, load.State())

	future, err := load.LoadOrFuture(ctx)
	require.NoError(t, err)
	assert.Nil(t, future)
	assert.Equal(t, LoadDone, load.State())

	// Every key is published and readable.
	for i, key := range keys {
		pin, _, err := c.FindOrCreate(key, sizes[i])
		require.NoError(t, err)
		require.False(t, pin.Empty())
		assert.True(t, pin.Entry().IsShared())
		checkContents(t, key, pin.Entry().Data()[:sizes[i]])
		pin.Release()
	}

	// A done load returns immediately for later callers.
	future, err = load.LoadOrFuture(ctx)
	require.NoError(t, err)
	assert.Nil(t, future)
}

func TestCoalescedLoadSingleWinner(t *testing.T) {
	c, _ := newTestCache(t, 1<<22)
	ctx := context.Background()

	keys, sizes := batchKeys(2, 16, 10000)

	started := make(chan struct{})
	release := make(chan struct{})
	var loads int64
	var loadsMu sync.Mutex

	loader := funcLoader(func(ctx context.Context, pins []*Pin) error {
		loadsMu.Lock()
		loads++
		loadsMu.Unlock()
		close(started)
		<-release
		return fillLoader(ctx, pins)
	})

	load := NewCoalescedLoad(c, loader, keys, sizes)

	done := make(chan error, 1)
	go func() {
		_, err := load.LoadOrFuture(ctx)
		done <- err
	}()

	<-started
	assert.Equal(t, LoadLoading, load.State())

	// A second caller joins the in-flight load instead of starting one.
	future, err := load.LoadOrFuture(ctx)
	require.NoError(t, err)
	require.NotNil(t, future)
	assert.False(t, future.Ready())

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, future.Wait(ctx))

	assert.Equal(t, LoadDone, load.State())
	assert.Equal(t, int64(1), loads)
}

func TestCoalescedLoadFailure(t *testing.T) {
	c, _ := newTestCache(t, 1<<20)
	ctx := context.Background()

	keys, sizes := batchKeys(3, 4, 10000)
	loadErr := errors.New("backend unavailable")

	load := NewCoalescedLoad(c, funcLoader(func(context.Context, []*Pin) error {
		return loadErr
	}), keys, sizes)

	_, err := load.LoadOrFuture(ctx)
	assert.ErrorIs(t, err, loadErr)
	assert.Equal(t, LoadFailed, load.State())

	// Nothing was published: every key of the batch is a clean miss
	// and re-fetchable by a fresh load.
	for _, key := range keys {
		assert.False(t, c.Exists(key))
	}
	assert.Equal(t, int64(0), c.NumAllocated())

	retry := NewCoalescedLoad(c, fillLoader, keys, sizes)
	_, err = retry.LoadOrFuture(ctx)
	require.NoError(t, err)
	for _, key := range keys {
		assert.True(t, c.Exists(key))
	}

	// The failed load keeps reporting its error.
	_, err = load.LoadOrFuture(ctx)
	assert.ErrorIs(t, err, loadErr)
}

func TestCoalescedLoadSkipsResident(t *testing.T) {
	c, _ := newTestCache(t, 1<<20)
	ctx := context.Background()

	keys, sizes := batchKeys(4, 4, 10000)

	// Pre-publish the first key.
	pin, _, err := c.FindOrCreate(keys[0], sizes[0])
	require.NoError(t, err)
	initializeContents(keys[0], pin.Entry().Data()[:sizes[0]])
	pin.Entry().SetExclusiveToShared()
	pin.Release()

	var seen []Key
	load := NewCoalescedLoad(c, funcLoader(func(ctx context.Context, pins []*Pin) error {
		for _, pin := range pins {
			seen = append(seen, pin.Entry().Key())
		}
		return fillLoader(ctx, pins)
	}), keys, sizes)

	_, err = load.LoadOrFuture(ctx)
	require.NoError(t, err)

	// The loader only saw the keys that were not already resident.
	assert.Equal(t, keys[1:], seen)
}

func TestCoalescedLoadCancel(t *testing.T) {
	c, _ := newTestCache(t, 1<<20)

	keys, sizes := batchKeys(5, 2, 1000)
	load := NewCoalescedLoad(c, fillLoader, keys, sizes)

	load.Cancel()
	assert.Equal(t, LoadFailed, load.State())

	_, err := load.LoadOrFuture(context.Background())
	assert.ErrorIs(t, err, ErrLoadCanceled)

	// Cancel after completion is a no-op.
	done := NewCoalescedLoad(c, fillLoader, keys, sizes)
	_, err = done.LoadOrFuture(context.Background())
	require.NoError(t, err)
	done.Cancel()
	assert.Equal(t, LoadDone, done.State())
}

func TestCoalescedLoadPrefetch(t *testing.T) {
	c, _ := newTestCache(t, 1<<20)

	keys, sizes := batchKeys(6, 3, 10000)
	load := NewCoalescedLoad(c, fillLoader, keys, sizes)
	load.SetPrefetch()

	_, err := load.LoadOrFuture(context.Background())
	require.NoError(t, err)

	assert.Positive(t, c.IncrementPrefetchPages(0))
	assert.Positive(t, c.RefreshStats().PrefetchPages)

	c.Clear()
	assert.Equal(t, int64(0), c.IncrementPrefetchPages(0))
}

func TestCoalescedLoadReplaceLoop(t *testing.T) {
	c, alloc := newTestCache(t, 1<<20, WithShards(1))
	ctx := context.Background()

	const batchSize = 8
	const size = 25000
	const numBatches = 40
	loadErr := errors.New("transient backend error")

	var failed []int
	for batch := 0; batch < numBatches; batch++ {
		keys := make([]Key, batchSize)
		sizes := make([]int64, batchSize)
		for i := range keys {
			keys[i] = Key{
				FileNum: 7,
				Offset:  uint64(batch*batchSize+i) * size,
			}
			sizes[i] = size
		}

		loader := fillLoader
		if batch%7 == 6 {
			loader = funcLoader(func(context.Context, []*Pin) error {
				return loadErr
			})
			failed = append(failed, batch)
		}

		load := NewCoalescedLoad(c, loader, keys, sizes)
		_, err := load.LoadOrFuture(ctx)
		if batch%7 == 6 {
			require.ErrorIs(t, err, loadErr)
			for _, key := range keys {
				assert.False(t, c.Exists(key))
			}
		} else {
			require.NoError(t, err)
		}

		assert.LessOrEqual(t, c.IncrementCachedPages(0), alloc.Capacity())
	}

	stats := c.RefreshStats()
	assert.Positive(t, stats.NumEvict)
	assert.LessOrEqual(t, stats.CachedPages, alloc.Capacity())
	require.NotEmpty(t, failed)

	// A batch that failed earlier loads cleanly on retry.
	batch := failed[0]
	keys := make([]Key, batchSize)
	sizes := make([]int64, batchSize)
	for i := range keys {
		keys[i] = Key{FileNum: 7, Offset: uint64(batch*batchSize+i) * size}
		sizes[i] = size
	}
	retry := NewCoalescedLoad(c, fillLoader, keys, sizes)
	_, err := retry.LoadOrFuture(ctx)
	require.NoError(t, err)
	for i, key := range keys {
		pin, _, err := c.FindOrCreate(key, sizes[i])
		require.NoError(t, err)
		checkContents(t, key, pin.Entry().Data()[:sizes[i]])
		pin.Release()
	}
}

func TestLoadStateString(t *testing.T) {
	assert.Equal(t, "pending", LoadPending.String())
	assert.Equal(t, "loading", LoadLoading.String())
	assert.Equal(t, "done", LoadDone.String())
	assert.Equal(t, "failed", LoadFailed.String())
}
