// Package memory implements the page allocator backing cache entry
// buffers. Pages are fixed-size (4 KiB) and handed out as contiguous
// runs carved from anonymous memory mappings, so buffers stay off the
// Go heap. A per-region free-page set satisfies runs first-fit; a new
// region is mapped when no existing region has a fitting run.
//
// The allocator enforces a hard byte budget and never blocks: a run
// that does not fit fails immediately with ErrOutOfMemory, leaving the
// caller to evict, retry or give up.
package memory
