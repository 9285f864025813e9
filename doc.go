// Package rangecache provides an in-memory, capacity-bounded cache of
// byte ranges read from files, built for query engines that want to
// avoid re-reading storage and to coalesce concurrent reads of
// overlapping data.
//
// # Pin Protocol
//
// Every interaction with a cached range goes through a Pin:
//
//	pin, future, err := cache.FindOrCreate(key, size)
//	switch {
//	case err != nil:
//	    // budget exhausted even after eviction
//	case pin.Empty():
//	    // another goroutine is loading this range; wait and re-poll
//	    future.Wait(ctx)
//	case pin.Entry().IsExclusive():
//	    // we own the load: fill the buffer, then publish
//	    readIntoBuffer(pin.Entry().Data())
//	    pin.Entry().SetExclusiveToShared()
//	default:
//	    // shared hit: read pin.Entry().Data()
//	}
//	pin.Release()
//
// Exactly one goroutine ever fills a given entry; the transition to
// shared is the sole publication point, so readers never observe
// partial data. A fill that fails is abandoned by releasing the
// exclusive pin, which erases the entry - the next lookup sees a clean
// miss.
//
// # Coalesced Loads
//
// CoalescedLoad batches keys destined for the same physical source
// into one load operation. Concurrent callers deduplicate on its state
// machine: one wins the Loading transition, the rest share a future.
// The storage-specific read step is supplied as a Loader; package
// storage provides one over local files and object stores.
//
// # Budget
//
// Pages come from a memory.Allocator whose budget is shared between
// cache entries and non-cache allocations made through Cache.Allocate.
// Unpinned entries are the release valve: they are evicted, coldest
// first, whenever the budget would otherwise be exceeded. Pinned
// entries are never evicted.
package rangecache
