package rangecache

import (
	"context"
	"sync"
	"time"
)

// LoadState is the lifecycle of a CoalescedLoad.
type LoadState int32

const (
	// LoadPending means nobody has started loading yet.
	LoadPending LoadState = iota
	// LoadLoading means exactly one goroutine is performing the load.
	LoadLoading
	// LoadDone means the load completed and all entries are published.
	LoadDone
	// LoadFailed is terminal; the batch is retried, if at all, by a
	// fresh lookup and a new CoalescedLoad.
	LoadFailed
)

func (s LoadState) String() string {
	switch s {
	case LoadPending:
		return "pending"
	case LoadLoading:
		return "loading"
	case LoadDone:
		return "done"
	case LoadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Loader is the per-source load step of a CoalescedLoad: fill the
// buffer of every pin in pins (each exclusive, sized per its entry's
// Size) or report an error. Implementations exist per data source:
// local file, object storage, test double.
//
// Loaders only fill buffers. Pin materialization, publication and
// failure unwinding are owned by CoalescedLoad and are not
// overridable.
type Loader interface {
	PerformLoad(ctx context.Context, pins []*Pin) error
}

// CoalescedLoad turns a batch of (key, size) requests destined for the
// same underlying source into exactly one load, no matter how many
// goroutines ask for overlapping ranges concurrently. The first caller
// of LoadOrFuture performs the load; the rest share its future.
type CoalescedLoad struct {
	cache    *Cache
	loader   Loader
	keys     []Key
	sizes    []int64
	prefetch bool

	mu     sync.Mutex
	state  LoadState
	future *Future
	err    error
}

// NewCoalescedLoad creates a pending load for the given ordered batch.
// keys and sizes must have equal length.
func NewCoalescedLoad(cache *Cache, loader Loader, keys []Key, sizes []int64) *CoalescedLoad {
	if len(keys) != len(sizes) {
		panic("rangecache: coalesced load keys/sizes length mismatch")
	}
	return &CoalescedLoad{
		cache:  cache,
		loader: loader,
		keys:   keys,
		sizes:  sizes,
		state:  LoadPending,
	}
}

// SetPrefetch marks the batch as speculative; entries it creates are
// counted against the cache's prefetch pages.
func (l *CoalescedLoad) SetPrefetch() {
	l.mu.Lock()
	l.prefetch = true
	l.mu.Unlock()
}

// State returns the load's current state.
func (l *CoalescedLoad) State() LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Cancel marks a load that nobody started as failed, so dropping a
// planned load does not leave later observers pending forever. It has
// no effect once loading has begun.
func (l *CoalescedLoad) Cancel() {
	l.mu.Lock()
	if l.state == LoadPending {
		l.state = LoadFailed
		l.err = ErrLoadCanceled
	}
	l.mu.Unlock()
}

// LoadOrFuture runs or joins the load.
//
//   - Pending: the calling goroutine wins the Loading transition,
//     performs the load synchronously and returns (nil, nil) on
//     success or (nil, err) on failure.
//   - Loading: returns the in-flight future and a nil error; the
//     caller waits on the future and then re-checks the cache.
//   - Done: (nil, nil). Failed: (nil, the recorded error).
//
// A failed load publishes nothing: entries it created are erased, so
// every key of the batch is re-fetchable afterwards.
func (l *CoalescedLoad) LoadOrFuture(ctx context.Context) (*Future, error) {
	l.mu.Lock()
	switch l.state {
	case LoadDone:
		l.mu.Unlock()
		return nil, nil
	case LoadFailed:
		err := l.err
		l.mu.Unlock()
		return nil, err
	case LoadLoading:
		f := l.future
		l.mu.Unlock()
		return f, nil
	}
	l.state = LoadLoading
	l.future = newFuture()
	l.mu.Unlock()

	err := l.load(ctx)

	l.mu.Lock()
	if err != nil {
		l.state = LoadFailed
		l.err = err
	} else {
		l.state = LoadDone
	}
	f := l.future
	l.mu.Unlock()

	f.complete(err)
	return nil, err
}

func (l *CoalescedLoad) load(ctx context.Context) error {
	start := time.Now()

	var pins []*Pin
	err := l.cache.MakePins(l.keys, func(i int) int64 { return l.sizes[i] }, func(_ int, pin *Pin) {
		if l.prefetch {
			pin.Entry().SetPrefetch()
		}
		pins = append(pins, pin)
	})
	if err == nil && len(pins) > 0 {
		err = l.loader.PerformLoad(ctx, pins)
	}

	var bytes int64
	for _, pin := range pins {
		bytes += pin.Entry().Size()
	}

	if err != nil {
		// No partial publication: releasing the still-exclusive pins
		// erases their entries, so a retry sees a clean miss for every
		// key of the batch.
		for _, pin := range pins {
			pin.Release()
		}
		l.cache.metrics.RecordLoad(len(pins), bytes, time.Since(start), err)
		l.cache.logger.LogLoad(ctx, len(pins), bytes, err)
		return err
	}

	for _, pin := range pins {
		pin.Entry().SetExclusiveToShared()
		pin.Release()
	}
	l.cache.metrics.RecordLoad(len(pins), bytes, time.Since(start), nil)
	l.cache.logger.LogLoad(ctx, len(pins), bytes, nil)
	return nil
}
