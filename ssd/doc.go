// Package ssd provides a disk fallback tier for the byte-range cache.
// Entries evicted from RAM are written back to a directory as
// checksummed, optionally compressed block files and can be reloaded
// later, turning a RAM miss into a disk hit instead of a trip to the
// backing storage.
package ssd
