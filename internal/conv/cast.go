package conv

import (
	"fmt"
	"math"
)

// Uint64ToInt63 converts uint64 to a non-negative int64 safely.
// Offsets cross this boundary on their way from cache keys (unsigned)
// to io-style APIs (signed).
func Uint64ToInt63(v uint64) (int64, error) {
	if v > uint64(math.MaxInt64) {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to int64 (too large)", v)
	}
	return int64(v), nil
}
