package rangecache

// Stats is a snapshot of the entry table, produced by RefreshStats.
type Stats struct {
	// NumEntries is the number of entries resident in the table.
	NumEntries int64
	// NumShared is the number of published entries currently pinned.
	NumShared int64
	// NumExclusive is the number of entries being filled.
	NumExclusive int64
	// NumEvict counts evictions since the cache was created.
	NumEvict int64
	// LargeSize is the largest single-entry allocated size in bytes
	// among the entries present at scan time. Callers use it to size
	// downstream buffers.
	LargeSize int64
	// PrefetchPages is the number of pages held by entries marked as
	// prefetched.
	PrefetchPages int64
	// CachedPages is the number of pages held by cache entries.
	CachedPages int64
}
