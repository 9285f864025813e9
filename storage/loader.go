package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/rangecache"
	"github.com/hupe1980/rangecache/internal/conv"
	"golang.org/x/sync/errgroup"
)

// defaultLoadConcurrency bounds parallel backend reads per batch to
// avoid FD exhaustion or rate limits.
const defaultLoadConcurrency = 16

// SourceLoader fills a batch of pins from one Source. It is the
// standard rangecache.Loader for "many ranges of the same file"
// batches: each pin's key offset addresses the source directly, and
// the ranges are fetched in parallel up to a concurrency limit.
type SourceLoader struct {
	source      Source
	concurrency int
}

// NewSourceLoader creates a loader over source. concurrency bounds
// parallel reads; if <= 0 the default of 16 is used.
func NewSourceLoader(source Source, concurrency int) *SourceLoader {
	if concurrency <= 0 {
		concurrency = defaultLoadConcurrency
	}
	return &SourceLoader{
		source:      source,
		concurrency: concurrency,
	}
}

// PerformLoad implements rangecache.Loader.
func (l *SourceLoader) PerformLoad(ctx context.Context, pins []*rangecache.Pin) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for _, pin := range pins {
		g.Go(func() error {
			entry := pin.Entry()
			off, err := conv.Uint64ToInt63(entry.Key().Offset)
			if err != nil {
				return err
			}

			buf := entry.Data()[:entry.Size()]
			n, err := l.source.ReadAt(ctx, buf, off)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			if n < len(buf) {
				return fmt.Errorf("storage: short read at %d: got %d of %d bytes: %w",
					off, n, len(buf), io.ErrUnexpectedEOF)
			}
			return nil
		})
	}

	return g.Wait()
}
