// Package conv provides safe integer type conversion utilities.
//
// Functions here perform bounds checking to prevent overflow when
// converting between signed and unsigned integer types, e.g. when an
// unsigned offset from untrusted or external data has to flow into a
// signed io-style API.
//
// For conversions that are provably safe by domain constraints (loop
// indices, bounded counters), use direct type casts instead.
package conv
