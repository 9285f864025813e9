// Package storage provides the bytes-from-storage collaborators of
// the cache: the Source/Opener read interfaces, a memory-mapped local
// file implementation, and SourceLoader, a rangecache.Loader that
// fills a coalesced batch of pins from one source with bounded
// parallelism.
//
// Object-store sources live in the storage/s3 and storage/minio
// subpackages.
package storage
