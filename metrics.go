package rangecache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordHit is called when a lookup finds a published entry.
	RecordHit()

	// RecordMiss is called when a lookup creates a new entry or has to
	// wait for another goroutine's fill.
	RecordMiss()

	// RecordEviction is called after an eviction pass removes entries.
	RecordEviction(entries int, pages int64)

	// RecordLoad is called after each coalesced load attempt.
	// entries is the number of entries the load created, bytes the
	// requested payload; err is nil if successful.
	RecordLoad(entries int, bytes int64, duration time.Duration, err error)

	// RecordAllocationFailure is called when pages cannot be obtained
	// even after eviction.
	RecordAllocationFailure(pages int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordHit()                                  {}
func (NoopMetricsCollector) RecordMiss()                                 {}
func (NoopMetricsCollector) RecordEviction(int, int64)                   {}
func (NoopMetricsCollector) RecordLoad(int, int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordAllocationFailure(int)                 {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	Hits               atomic.Int64
	Misses             atomic.Int64
	Evictions          atomic.Int64
	EvictedPages       atomic.Int64
	LoadCount          atomic.Int64
	LoadErrors         atomic.Int64
	LoadEntries        atomic.Int64
	LoadBytes          atomic.Int64
	LoadTotalNanos     atomic.Int64
	AllocationFailures atomic.Int64
}

// RecordHit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordHit() {
	b.Hits.Add(1)
}

// RecordMiss implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMiss() {
	b.Misses.Add(1)
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(entries int, pages int64) {
	b.Evictions.Add(int64(entries))
	b.EvictedPages.Add(pages)
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(entries int, bytes int64, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadEntries.Add(int64(entries))
	b.LoadBytes.Add(bytes)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordAllocationFailure implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAllocationFailure(pages int) {
	b.AllocationFailures.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		Hits:               b.Hits.Load(),
		Misses:             b.Misses.Load(),
		Evictions:          b.Evictions.Load(),
		EvictedPages:       b.EvictedPages.Load(),
		LoadCount:          b.LoadCount.Load(),
		LoadErrors:         b.LoadErrors.Load(),
		LoadEntries:        b.LoadEntries.Load(),
		LoadBytes:          b.LoadBytes.Load(),
		LoadAvgNanos:       b.getAvgLoadNanos(),
		AllocationFailures: b.AllocationFailures.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgLoadNanos() int64 {
	count := b.LoadCount.Load()
	if count == 0 {
		return 0
	}
	return b.LoadTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	Hits               int64
	Misses             int64
	Evictions          int64
	EvictedPages       int64
	LoadCount          int64
	LoadErrors         int64
	LoadEntries        int64
	LoadBytes          int64
	LoadAvgNanos       int64
	AllocationFailures int64
}
