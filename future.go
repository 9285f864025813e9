package rangecache

import (
	"context"
	"sync"
)

// Future is a one-shot readiness signal. FindOrCreate hands one out
// when another goroutine holds the requested entry exclusively; the
// caller waits (or selects) on it and then retries the lookup. The
// cache never blocks internally on a Future.
//
// A Future carries no cancellation: completing it is the producer's
// job, and a waiter that loses interest simply stops waiting.
type Future struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// readyFuture returns an already-completed Future with no error.
func readyFuture() *Future {
	f := newFuture()
	f.complete(nil)
	return f
}

// complete resolves the future. The error, if any, is visible to
// waiters after Done() is closed. Completing more than once is a no-op.
func (f *Future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done returns a channel that is closed when the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the future has resolved.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the error the future resolved with. It is only
// meaningful after Done() is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the future resolves or ctx is canceled. It returns
// the future's error on resolution and ctx.Err() on cancellation.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
