package rangecache

import "errors"

var (
	// ErrCapacityExhausted is returned when pages cannot be obtained
	// even after evicting everything evictable. The caller decides
	// whether to wait, shed load or fail the request.
	ErrCapacityExhausted = errors.New("rangecache: capacity exhausted")

	// ErrLoadCanceled is returned by a CoalescedLoad that was dropped
	// before anyone started loading it.
	ErrLoadCanceled = errors.New("rangecache: load canceled")
)

// Panic messages for misuse faults. These indicate correctness
// violations (two writers on one buffer, double publication) that
// caching semantics cannot safely paper over, so they fail loudly
// instead of being tolerated.
const (
	panicCloneExclusive = "rangecache: cannot clone a pin on an exclusive entry"
	panicAlreadyShared  = "rangecache: entry is already shared"
)
