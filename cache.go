package rangecache

import (
	"encoding/binary"
	"fmt"
	"hash/maphash"
	"sync/atomic"

	"github.com/hupe1980/rangecache/memory"
)

// Cache is an in-memory, capacity-bounded cache of byte ranges read
// from files. It coalesces concurrent reads of overlapping data via
// the exclusive/shared pin protocol: a miss hands the caller an
// exclusive pin to fill, a hit hands out shared pins, and a lookup
// racing an in-flight fill hands out an empty pin plus a future that
// resolves at publication.
//
// The cache never blocks a caller on another caller's I/O; waiting on
// the future (or not) is the caller's choice.
type Cache struct {
	alloc *memory.Allocator

	shards []*cacheShard
	seed   maphash.Seed

	logger  *Logger
	metrics MetricsCollector
	onEvict func(Key, []byte)

	numEvict      atomic.Int64
	cachedPages   atomic.Int64
	prefetchPages atomic.Int64
	clockHand     atomic.Uint64
}

// New creates a Cache drawing pages from alloc. The allocator's budget
// is shared between cache entries and Allocate callers; unpinned cache
// entries are evicted first when the budget runs out.
func New(alloc *memory.Allocator, optFns ...Option) *Cache {
	o := applyOptions(optFns)

	c := &Cache{
		alloc:   alloc,
		seed:    maphash.MakeSeed(),
		logger:  o.logger,
		metrics: o.metrics,
		onEvict: o.evictionCallback,
	}

	c.shards = make([]*cacheShard, o.numShards)
	for i := range c.shards {
		c.shards[i] = newCacheShard(c)
	}
	return c
}

// shardFor routes a key to its shard using a seeded maphash.
func (c *Cache) shardFor(key Key) *cacheShard {
	var h maphash.Hash
	h.SetSeed(c.seed)

	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:], key.FileNum)
	binary.LittleEndian.PutUint64(buf[8:], key.Offset)
	_, _ = h.Write(buf[:])

	return c.shards[h.Sum64()%uint64(len(c.shards))]
}

// FindOrCreate resolves key to a pin.
//
//   - Miss: a buffer of at least sizeHint bytes is allocated (evicting
//     unpinned entries if the budget requires it) and an exclusive pin
//     over a new entry is returned with a ready future. The caller must
//     fill the buffer and call SetExclusiveToShared, or release the pin
//     to abandon the load.
//   - Shared hit: a shared pin and a ready future.
//   - Exclusive hit (another goroutine is filling): an empty pin and a
//     future that resolves when that fill publishes or is abandoned.
//     The caller re-polls FindOrCreate after the future resolves.
//
// Capacity exhaustion is reported as an error wrapping
// ErrCapacityExhausted, never as an empty pin.
func (c *Cache) FindOrCreate(key Key, sizeHint int64) (*Pin, *Future, error) {
	s := c.shardFor(key)

	for {
		if pin, future, ok := s.lookup(key); ok {
			if pin.Empty() {
				c.metrics.RecordMiss()
			} else {
				c.metrics.RecordHit()
			}
			return pin, future, nil
		}

		pages := memory.PagesForBytes(sizeHint)
		if pages == 0 {
			pages = 1
		}
		alloc, err := c.allocatePages(pages)
		if err != nil {
			return nil, nil, err
		}

		e := &Entry{
			shard:         s,
			key:           key,
			data:          alloc,
			sizeRequested: sizeHint,
			numPages:      pages,
			pins:          pinExclusive,
		}
		e.firstUse.Store(true)

		if !s.insert(e) {
			// Lost the insert race; the winner's entry decides.
			c.alloc.Free(alloc)
			continue
		}

		c.cachedPages.Add(int64(pages))
		c.metrics.RecordMiss()
		return &Pin{entry: e}, readyFuture(), nil
	}
}

// Exists reports whether key is resident (published or being filled)
// without pinning it.
func (c *Cache) Exists(key Key) bool {
	return c.shardFor(key).exists(key)
}

// MakePins materializes exclusive pins for every key in keys that is
// not already resident, sized via sizeFn, and hands each created pin
// to onPin. Keys that are published, or that another goroutine is
// already filling, are skipped. Created pins belong to the callback's
// owner, which must publish or release every one of them.
func (c *Cache) MakePins(keys []Key, sizeFn func(i int) int64, onPin func(i int, pin *Pin)) error {
	for i, key := range keys {
		pin, _, err := c.FindOrCreate(key, sizeFn(i))
		if err != nil {
			return err
		}
		if pin.Empty() {
			continue
		}
		if pin.Entry().IsShared() {
			pin.Release()
			continue
		}
		onPin(i, pin)
	}
	return nil
}

// Allocate obtains numPages pages for non-cache use from the shared
// budget, evicting unpinned cache entries if needed. It fails with an
// error wrapping ErrCapacityExhausted when eviction cannot free enough
// pages, i.e. all cache capacity is pinned or otherwise occupied.
func (c *Cache) Allocate(numPages int) (*memory.Allocation, error) {
	return c.allocatePages(numPages)
}

// Free returns pages obtained from Allocate.
func (c *Cache) Free(alloc *memory.Allocation) {
	c.alloc.Free(alloc)
}

func (c *Cache) allocatePages(pages int) (*memory.Allocation, error) {
	alloc, err := c.alloc.Allocate(pages)
	if err == nil {
		return alloc, nil
	}

	// Evict more than the shortfall to ride out fragmentation and
	// concurrent takers, then retry. No progress means everything
	// evictable is gone.
	for {
		freed := c.shrink(int64(pages) * 2)
		alloc, err = c.alloc.Allocate(pages)
		if err == nil {
			return alloc, nil
		}
		if freed == 0 {
			break
		}
	}

	c.metrics.RecordAllocationFailure(pages)
	c.logger.LogAllocationFailure(pages, err)
	return nil, fmt.Errorf("%w: %d pages", ErrCapacityExhausted, pages)
}

// shrink evicts unpinned entries, coldest first, until roughly target
// pages are freed or no candidates remain. Returns the pages freed.
func (c *Cache) shrink(target int64) int64 {
	numShards := uint64(len(c.shards))
	start := c.clockHand.Add(1)

	var freed int64
	var evicted int
	for i := uint64(0); i < numShards && freed < target; i++ {
		s := c.shards[(start+i)%numShards]
		for _, e := range s.takeVictims(target - freed) {
			if c.onEvict != nil {
				data := make([]byte, e.sizeRequested)
				copy(data, e.data.Bytes())
				c.onEvict(e.key, data)
			}
			freed += int64(e.numPages)
			evicted++
			c.numEvict.Add(1)
			c.entryErased(e)
		}
	}

	if evicted > 0 {
		c.metrics.RecordEviction(evicted, freed)
		c.logger.LogEviction(evicted, freed)
	}
	return freed
}

// entryErased settles the accounting for an entry that left the table
// (evicted or abandoned) and frees its buffer.
func (c *Cache) entryErased(e *Entry) {
	c.cachedPages.Add(-int64(e.numPages))
	if e.prefetch.Load() {
		c.prefetchPages.Add(-int64(e.numPages))
	}
	c.alloc.Free(e.data)
}

// freeDetached frees the buffer of an entry that Clear already
// detached and accounted for.
func (c *Cache) freeDetached(e *Entry) {
	c.alloc.Free(e.data)
}

// Clear evicts every unpinned entry and detaches the rest from the
// table. Existing pins on detached entries remain valid; their keys
// become reloadable immediately.
func (c *Cache) Clear() {
	var total int
	for _, s := range c.shards {
		removed, freeable := s.clear()
		total += len(removed)
		for _, e := range removed {
			c.cachedPages.Add(-int64(e.numPages))
			if e.prefetch.Load() {
				c.prefetchPages.Add(-int64(e.numPages))
			}
		}
		for _, e := range freeable {
			c.alloc.Free(e.data)
		}
	}
	c.logger.LogClear(total)
}

// RefreshStats scans the table and returns a snapshot of its state.
// LargeSize is the largest single-entry allocation present at scan
// time; NumEvict is monotonic across the cache's lifetime.
func (c *Cache) RefreshStats() Stats {
	stats := Stats{
		NumEvict:      c.numEvict.Load(),
		CachedPages:   c.cachedPages.Load(),
		PrefetchPages: c.prefetchPages.Load(),
	}

	for _, s := range c.shards {
		s.scan(func(e *Entry) {
			stats.NumEntries++
			switch {
			case e.pins == pinExclusive:
				stats.NumExclusive++
			case e.pins > 0:
				stats.NumShared++
			}
			if size := e.data.ByteSize(); size > stats.LargeSize {
				stats.LargeSize = size
			}
		})
	}
	return stats
}

// IncrementCachedPages adjusts the cached-page counter by delta and
// returns the new total. Pass 0 to read the current value.
func (c *Cache) IncrementCachedPages(delta int64) int64 {
	return c.cachedPages.Add(delta)
}

// IncrementPrefetchPages adjusts the outstanding-prefetch-page counter
// by delta and returns the new total. Callers use the return value for
// admission control of speculative loads.
func (c *Cache) IncrementPrefetchPages(delta int64) int64 {
	return c.prefetchPages.Add(delta)
}

// NumAllocated returns the pages currently handed out by the
// underlying allocator, cache entries and Allocate callers combined.
func (c *Cache) NumAllocated() int64 {
	return c.alloc.AllocatedPages()
}
