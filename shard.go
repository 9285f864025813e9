package rangecache

import (
	"container/list"
	"sync"
)

// cacheShard is one partition of the entry table: a keyed map plus an
// eviction list of unpinned shared entries. The mutex guards only
// structural mutation; buffer fills always happen outside it.
type cacheShard struct {
	cache *Cache

	mu        sync.Mutex
	entries   map[Key]*Entry
	evictList *list.List // *Entry values; back is evicted first
}

func newCacheShard(c *Cache) *cacheShard {
	return &cacheShard{
		cache:     c,
		entries:   make(map[Key]*Entry),
		evictList: list.New(),
	}
}

// lookup resolves key against the shard. On a shared hit it returns a
// pinned entry and a ready future; on an exclusive hit it returns an
// empty pin and the future armed to resolve at publication; ok=false
// is a miss.
func (s *cacheShard) lookup(key Key) (pin *Pin, future *Future, ok bool) {
	s.mu.Lock()
	e, found := s.entries[key]
	if !found {
		s.mu.Unlock()
		return nil, nil, false
	}

	if e.pins == pinExclusive {
		if e.waiters == nil {
			e.waiters = newFuture()
		}
		f := e.waiters
		s.mu.Unlock()
		return &Pin{}, f, true
	}

	e.pins++
	if e.elem != nil {
		s.evictList.Remove(e.elem)
		e.elem = nil
	}
	s.mu.Unlock()
	return &Pin{entry: e}, readyFuture(), true
}

// insert adds a freshly created exclusive entry unless one appeared
// for the same key since the caller's lookup. A false return means the
// caller lost the insert race and must retry the lookup.
func (s *cacheShard) insert(e *Entry) bool {
	s.mu.Lock()
	if _, found := s.entries[e.key]; found {
		s.mu.Unlock()
		return false
	}
	s.entries[e.key] = e
	s.mu.Unlock()
	return true
}

// exists reports table membership without pinning.
func (s *cacheShard) exists(key Key) bool {
	s.mu.Lock()
	_, found := s.entries[key]
	s.mu.Unlock()
	return found
}

// unpin drops one reference from e. The last release of a published
// entry parks it on the eviction list; the release of a never-published
// exclusive entry erases it and wakes any waiters so they re-poll and
// see a clean miss.
func (s *cacheShard) unpin(e *Entry) {
	s.mu.Lock()

	if e.pins == pinExclusive {
		e.pins = 0
		wasDetached := e.detached
		if !wasDetached {
			delete(s.entries, e.key)
			e.detached = true
		}
		waiters := e.waiters
		e.waiters = nil
		s.mu.Unlock()

		if waiters != nil {
			waiters.complete(nil)
		}
		if wasDetached {
			s.cache.freeDetached(e)
		} else {
			s.cache.entryErased(e)
		}
		return
	}

	e.pins--
	if e.pins > 0 {
		s.mu.Unlock()
		return
	}

	if e.detached {
		s.mu.Unlock()
		s.cache.freeDetached(e)
		return
	}

	// Least-recently-unpinned order. An entry nobody ever read (its
	// first-use flag is still set) goes straight to the cold end.
	if e.firstUse.Load() {
		e.elem = s.evictList.PushBack(e)
	} else {
		e.elem = s.evictList.PushFront(e)
	}
	s.mu.Unlock()
}

// takeVictims removes up to maxPages worth of evictable entries from
// the shard, coldest first. The entries are already detached from the
// table when returned; the caller owns freeing them.
func (s *cacheShard) takeVictims(maxPages int64) []*Entry {
	var victims []*Entry
	var pages int64

	s.mu.Lock()
	for pages < maxPages {
		back := s.evictList.Back()
		if back == nil {
			break
		}
		e := back.Value.(*Entry)
		s.evictList.Remove(back)
		e.elem = nil
		delete(s.entries, e.key)
		e.detached = true
		victims = append(victims, e)
		pages += int64(e.numPages)
	}
	s.mu.Unlock()
	return victims
}

// clear detaches every entry from the shard. It returns all removed
// entries (for accounting) and the unpinned subset whose buffers can
// be freed immediately; pinned entries stay valid for their holders
// and are freed on their last release.
func (s *cacheShard) clear() (removed, freeable []*Entry) {
	s.mu.Lock()
	for key, e := range s.entries {
		delete(s.entries, key)
		if e.elem != nil {
			s.evictList.Remove(e.elem)
			e.elem = nil
		}
		e.detached = true
		removed = append(removed, e)
		if e.pins == 0 {
			freeable = append(freeable, e)
		}
	}
	s.mu.Unlock()
	return removed, freeable
}

// scan calls fn for every entry under the shard lock.
func (s *cacheShard) scan(fn func(e *Entry)) {
	s.mu.Lock()
	for _, e := range s.entries {
		fn(e)
	}
	s.mu.Unlock()
}
