package rangecache

import "log/slog"

type options struct {
	numShards        int
	logger           *Logger
	metrics          MetricsCollector
	evictionCallback func(Key, []byte)
}

// Option configures Cache constructor behavior.
type Option func(*options)

// WithShards configures the number of entry-table shards. More shards
// reduce lock contention under concurrent lookups; a single shard
// makes eviction order fully deterministic, which tests rely on.
//
// If numShards <= 0, the default of 64 is used.
func WithShards(numShards int) Option {
	return func(o *options) {
		if numShards > 0 {
			o.numShards = numShards
		}
	}
}

// WithLogger configures structured logging for cache events.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetrics configures a metrics collector for monitoring hits,
// misses, evictions and load outcomes. Pass nil to disable collection.
func WithMetrics(mc MetricsCollector) Option {
	return func(o *options) {
		o.metrics = mc
	}
}

// WithEvictionCallback registers a hook invoked with a copy of each
// evicted entry's bytes, outside any cache lock. An SSD tier attaches
// here to write back evicted data without the cache importing it.
func WithEvictionCallback(fn func(key Key, data []byte)) Option {
	return func(o *options) {
		o.evictionCallback = fn
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		numShards: 64,
		logger:    NoopLogger(),
		metrics:   NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metrics == nil {
		o.metrics = NoopMetricsCollector{}
	}
	return o
}
