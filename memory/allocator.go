package memory

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/rangecache/internal/mmap"
	"github.com/hupe1980/rangecache/resource"
)

const (
	// PageSize is the allocation granularity in bytes. Every buffer
	// handed out by the Allocator is a contiguous run of whole pages.
	PageSize = 4096

	// defaultRegionPages is the size of a mapped region in pages (1 MiB).
	// Requests larger than a region get a dedicated region of their own.
	defaultRegionPages = 256
)

var (
	// ErrOutOfMemory is returned when a requested page run does not fit
	// within the configured budget.
	ErrOutOfMemory = errors.New("memory: out of budget")
	// ErrInvalidPageCount is returned for non-positive page counts.
	ErrInvalidPageCount = errors.New("memory: invalid page count")
)

// Allocator hands out contiguous runs of fixed-size pages carved out
// of anonymous memory mappings, under a hard byte budget. The budget
// is shared by cache entries and non-cache allocations; the cache
// layer above decides which of the two gives way under pressure.
type Allocator struct {
	rc            *resource.Controller
	capacityPages int64

	mu      sync.Mutex
	regions []*region

	allocatedPages atomic.Int64
	mappedBytes    atomic.Int64
}

// region is one anonymous mapping plus the set of page indexes in it
// that are currently free.
type region struct {
	mapping *mmap.Mapping
	data    []byte
	free    *roaring.Bitmap
}

// New creates an Allocator with the given byte budget. The budget is
// rounded down to whole pages.
func New(maxBytes int64) *Allocator {
	pages := maxBytes / PageSize
	return NewWithController(resource.NewController(resource.Config{
		MemoryLimitBytes: pages * PageSize,
	}))
}

// NewWithController creates an Allocator whose budget is governed by
// an existing resource controller. The controller's memory limit
// determines the page capacity; a controller without a limit yields an
// unbounded allocator.
func NewWithController(rc *resource.Controller) *Allocator {
	return &Allocator{
		rc:            rc,
		capacityPages: rc.MemoryLimit() / PageSize,
	}
}

// Allocate returns a contiguous run of numPages pages. It fails with
// ErrOutOfMemory when the budget cannot cover the run; it never blocks
// waiting for pages to come back.
func (a *Allocator) Allocate(numPages int) (*Allocation, error) {
	if numPages <= 0 {
		return nil, ErrInvalidPageCount
	}

	bytes := int64(numPages) * PageSize
	if !a.rc.TryAcquireMemory(bytes) {
		return nil, fmt.Errorf("%w: %d pages requested, %d allocated of %d",
			ErrOutOfMemory, numPages, a.allocatedPages.Load(), a.capacityPages)
	}

	a.mu.Lock()
	for _, r := range a.regions {
		if start, ok := r.findRun(numPages); ok {
			r.take(start, numPages)
			alloc := a.newAllocation(r, start, numPages)
			a.mu.Unlock()
			return alloc, nil
		}
	}

	// No region has a fitting run; map a new one.
	r, err := a.mapRegionLocked(numPages)
	if err != nil {
		a.mu.Unlock()
		a.rc.ReleaseMemory(bytes)
		return nil, err
	}
	r.take(0, numPages)
	alloc := a.newAllocation(r, 0, numPages)
	a.mu.Unlock()
	return alloc, nil
}

func (a *Allocator) newAllocation(r *region, startPage, numPages int) *Allocation {
	a.allocatedPages.Add(int64(numPages))
	start := startPage * PageSize
	end := start + numPages*PageSize
	return &Allocation{
		region:    r,
		startPage: startPage,
		numPages:  numPages,
		data:      r.data[start:end:end],
	}
}

func (a *Allocator) mapRegionLocked(minPages int) (*region, error) {
	pages := minPages
	if pages < defaultRegionPages {
		pages = defaultRegionPages
	}

	m, err := mmap.MapAnon(pages * PageSize)
	if err != nil {
		return nil, fmt.Errorf("memory: map region: %w", err)
	}

	r := &region{
		mapping: m,
		data:    m.Bytes(),
		free:    roaring.New(),
	}
	r.free.AddRange(0, uint64(pages))
	a.regions = append(a.regions, r)
	a.mappedBytes.Add(int64(pages) * PageSize)
	return r, nil
}

// Free returns an allocation's pages to the allocator. It is
// idempotent; freeing an already-freed allocation is a no-op.
func (a *Allocator) Free(alloc *Allocation) {
	if alloc == nil || !alloc.freed.CompareAndSwap(false, true) {
		return
	}

	a.mu.Lock()
	alloc.region.give(alloc.startPage, alloc.numPages)
	a.mu.Unlock()

	a.allocatedPages.Add(-int64(alloc.numPages))
	a.rc.ReleaseMemory(int64(alloc.numPages) * PageSize)
	alloc.data = nil
}

// PagesForBytes returns the number of pages needed to hold bytes,
// rounding up to the page granularity.
func PagesForBytes(bytes int64) int {
	if bytes <= 0 {
		return 0
	}
	return int((bytes + PageSize - 1) / PageSize)
}

// AllocatedPages returns the number of pages currently handed out.
func (a *Allocator) AllocatedPages() int64 {
	return a.allocatedPages.Load()
}

// FreePages returns the number of budget pages not currently handed out.
func (a *Allocator) FreePages() int64 {
	return a.capacityPages - a.allocatedPages.Load()
}

// Capacity returns the page budget.
func (a *Allocator) Capacity() int64 {
	return a.capacityPages
}

// Stats returns a snapshot of allocator state.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	numRegions := len(a.regions)
	a.mu.Unlock()

	return Stats{
		CapacityPages:  a.capacityPages,
		AllocatedPages: a.allocatedPages.Load(),
		MappedBytes:    a.mappedBytes.Load(),
		NumRegions:     numRegions,
	}
}

// Close unmaps all regions. Outstanding allocations become invalid;
// callers must free or abandon them first.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	for _, r := range a.regions {
		if err := r.mapping.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.regions = nil
	a.mappedBytes.Store(0)
	return firstErr
}

// Stats is a snapshot of allocator state.
type Stats struct {
	CapacityPages  int64
	AllocatedPages int64
	MappedBytes    int64
	NumRegions     int
}

// findRun locates a run of n contiguous free pages, first fit.
func (r *region) findRun(n int) (int, bool) {
	if int(r.free.GetCardinality()) < n {
		return 0, false
	}

	it := r.free.Iterator()
	runStart := -1
	runLen := 0
	prev := uint32(0)
	for it.HasNext() {
		page := it.Next()
		if runStart >= 0 && page == prev+1 {
			runLen++
		} else {
			runStart = int(page)
			runLen = 1
		}
		prev = page
		if runLen == n {
			return runStart, true
		}
	}
	return 0, false
}

func (r *region) take(start, n int) {
	r.free.RemoveRange(uint64(start), uint64(start+n))
}

func (r *region) give(start, n int) {
	r.free.AddRange(uint64(start), uint64(start+n))
}
