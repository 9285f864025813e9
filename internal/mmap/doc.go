// Package mmap provides memory mappings for zero-copy file access and
// off-heap buffer memory.
//
// Open maps a file read-only so storage sources can serve ranged reads
// without copying through kernel buffers. MapAnon creates read-write
// anonymous mappings; the page allocator carves cache buffers out of
// them so entry data never touches the Go heap.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with madvise(2) access hints
//   - Windows: CreateFileMapping/MapViewOfFile and VirtualAlloc
//     (access hints are a no-op)
//
// # Thread Safety
//
// Mappings are safe for concurrent read access. Close is idempotent,
// but callers must ensure no goroutine touches Bytes() after Close
// returns.
package mmap
