package rangecache

import (
	"container/list"
	"sync/atomic"

	"github.com/hupe1980/rangecache/memory"
)

// pinExclusive marks an entry whose buffer is being filled by its
// single owner. Any non-negative value is a shared reader count.
const pinExclusive int32 = -10000

// Entry is the cache's record for one byte range: a page-backed
// buffer plus the exclusive/shared pin state machine.
//
// An entry starts Exclusive with exactly one pin, owned by the caller
// that must fill the buffer. SetExclusiveToShared is the sole
// publication point; after it, any number of shared pins may read the
// buffer concurrently. An exclusive entry whose pin is released
// unfilled is erased from the table, so a failed or abandoned load is
// indistinguishable from a miss.
type Entry struct {
	shard         *cacheShard
	key           Key
	data          *memory.Allocation
	sizeRequested int64
	numPages      int

	// The fields below are guarded by shard.mu.
	pins     int32
	waiters  *Future       // armed when another goroutine waits for publication
	elem     *list.Element // position in the shard's eviction list while unpinned
	detached bool          // removed from the table by Clear; pins stay valid

	prefetch atomic.Bool
	firstUse atomic.Bool
}

// Key returns the entry's cache key.
func (e *Entry) Key() Key {
	return e.key
}

// Data returns the entry's buffer. The slice covers whole pages and
// may exceed the requested size; use Size for the requested length.
// It must not be read while the entry is exclusive, except by the pin
// holder performing the fill.
func (e *Entry) Data() []byte {
	return e.data.Bytes()
}

// Size returns the requested size in bytes.
func (e *Entry) Size() int64 {
	return e.sizeRequested
}

// ByteSize returns the allocated size in bytes, rounded up to whole
// pages.
func (e *Entry) ByteSize() int64 {
	return e.data.ByteSize()
}

// NumPins returns the number of live pins. An exclusive entry counts
// as one.
func (e *Entry) NumPins() int {
	e.shard.mu.Lock()
	defer e.shard.mu.Unlock()
	if e.pins == pinExclusive {
		return 1
	}
	return int(e.pins)
}

// IsExclusive reports whether the entry is being filled.
func (e *Entry) IsExclusive() bool {
	e.shard.mu.Lock()
	defer e.shard.mu.Unlock()
	return e.pins == pinExclusive
}

// IsShared reports whether the entry is published and readable.
func (e *Entry) IsShared() bool {
	e.shard.mu.Lock()
	defer e.shard.mu.Unlock()
	return e.pins != pinExclusive
}

// SetExclusiveToShared publishes the buffer contents to all present
// and future readers. Only the pin holder that performed the fill may
// call it; calling it on an already-shared entry is a misuse fault and
// panics.
func (e *Entry) SetExclusiveToShared() {
	e.shard.mu.Lock()
	if e.pins != pinExclusive {
		e.shard.mu.Unlock()
		panic(panicAlreadyShared)
	}
	e.pins = 1
	waiters := e.waiters
	e.waiters = nil
	e.shard.mu.Unlock()

	if waiters != nil {
		waiters.complete(nil)
	}
}

// SetPrefetch marks the entry as speculatively loaded. The cache's
// prefetch page counter tracks these for admission control; the mark
// has no effect on eviction.
func (e *Entry) SetPrefetch() {
	if !e.prefetch.Swap(true) {
		e.shard.cache.prefetchPages.Add(int64(e.numPages))
	}
}

// IsPrefetch reports whether the entry was loaded speculatively.
func (e *Entry) IsPrefetch() bool {
	return e.prefetch.Load()
}

// GetAndClearFirstUseFlag returns whether this is the first access of
// the entry and clears the flag. Callers use it once per entry to
// distinguish cold misses from warm hits.
func (e *Entry) GetAndClearFirstUseFlag() bool {
	return e.firstUse.Swap(false)
}
