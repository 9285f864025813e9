package memory

import "sync/atomic"

// Allocation is a contiguous run of pages owned by the caller until
// it is returned via Allocator.Free. The backing memory lives in an
// anonymous mapping outside the Go heap.
type Allocation struct {
	region    *region
	startPage int
	numPages  int
	data      []byte
	freed     atomic.Bool
}

// Bytes returns the allocation's memory. The slice is valid until the
// allocation is freed; it may contain stale contents from a previous
// use of the same pages.
func (a *Allocation) Bytes() []byte {
	if a.freed.Load() {
		return nil
	}
	return a.data
}

// NumPages returns the number of pages in the run.
func (a *Allocation) NumPages() int {
	return a.numPages
}

// ByteSize returns the allocation size in bytes (pages times PageSize).
func (a *Allocation) ByteSize() int64 {
	return int64(a.numPages) * PageSize
}
