package ssd

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/hupe1980/rangecache"
	"github.com/hupe1980/rangecache/resource"
	atomicfile "github.com/natefinch/atomic"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrChecksum is returned when a block on disk fails checksum
	// verification. The block is removed; the caller treats it as a miss.
	ErrChecksum = errors.New("ssd: block checksum mismatch")
	// ErrClosed is returned by Load after Close.
	ErrClosed = errors.New("ssd: cache closed")
)

// checksumSize prefixes every block file with an xxhash64 of the
// framed block.
const checksumSize = 8

// Options contains configuration for the SSD cache.
type Options struct {
	// MaxSizeBytes is the maximum size of the cache on disk.
	MaxSizeBytes int64
	// MaxConcurrentWrites limits background writes to prevent
	// unbounded goroutines. Defaults to 16 if <= 0.
	MaxConcurrentWrites int64
	// Compression selects the per-block compression algorithm.
	Compression CompressionType
	// Controller, if set, rate-limits write IO and bounds background
	// work alongside the rest of the process.
	Controller *resource.Controller
}

// DefaultOptions returns default SSD cache options.
var DefaultOptions = Options{
	MaxSizeBytes:        1 << 30, // 1 GiB
	MaxConcurrentWrites: 16,
	Compression:         CompressionLZ4,
}

// Cache is the disk fallback tier: evicted (or explicitly saved)
// entries are written back to a directory as checksummed, optionally
// compressed block files, and can be reloaded later to turn a RAM
// miss into a disk hit instead of a storage read.
//
// It maintains an in-memory LRU index of the files on disk; the
// directory is rescanned on open so a restart keeps the cache warm.
type Cache struct {
	rootDir     string
	maxSize     int64
	compression CompressionType
	rc          *resource.Controller

	// writeSem limits concurrent background writes.
	writeSem *semaphore.Weighted
	wg       sync.WaitGroup

	mu          sync.Mutex
	currentSize int64
	items       map[rangecache.Key]*lruEntry
	lruHead     *lruEntry
	lruTail     *lruEntry

	closed atomic.Bool
	hits   atomic.Int64
	misses atomic.Int64
}

type lruEntry struct {
	key        rangecache.Key
	size       int64
	filePath   string
	next, prev *lruEntry
}

// New creates an SSD cache rooted at dir and rescans it to rebuild
// the index.
func New(dir string, optFns ...func(*Options)) (*Cache, error) {
	o := DefaultOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	maxWrites := o.MaxConcurrentWrites
	if maxWrites <= 0 {
		maxWrites = 16
	}

	c := &Cache{
		rootDir:     dir,
		maxSize:     o.MaxSizeBytes,
		compression: o.Compression,
		rc:          o.Controller,
		items:       make(map[rangecache.Key]*lruEntry),
		writeSem:    semaphore.NewWeighted(maxWrites),
	}

	c.scanExistingFiles()
	return c, nil
}

// scanExistingFiles rebuilds the index from block files left by an
// earlier run.
func (c *Cache) scanExistingFiles() {
	_ = filepath.Walk(c.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // keep scanning past unreadable entries
		}
		if info.IsDir() {
			return nil
		}

		key, ok := c.parsePathToKey(path)
		if !ok {
			return nil
		}

		c.mu.Lock()
		c.addToLRU(key, path, info.Size())
		c.mu.Unlock()
		return nil
	})
}

// Block files live at <root>/f<fileNum>/<offset>.blk.
func (c *Cache) keyToPath(key rangecache.Key) string {
	return filepath.Join(c.rootDir, fmt.Sprintf("f%d", key.FileNum), fmt.Sprintf("%d.blk", key.Offset))
}

func (c *Cache) parsePathToKey(absPath string) (rangecache.Key, bool) {
	dir, file := filepath.Split(absPath)

	var fileNum uint64
	base := filepath.Base(filepath.Clean(dir))
	if n, err := fmt.Sscanf(base, "f%d", &fileNum); err != nil || n != 1 {
		return rangecache.Key{}, false
	}

	var offset uint64
	if n, err := fmt.Sscanf(file, "%d.blk", &offset); err != nil || n != 1 {
		return rangecache.Key{}, false
	}

	return rangecache.Key{FileNum: fileNum, Offset: offset}, true
}

// Load reads the block for key into dst. It returns false on a miss;
// a corrupt block is removed and reported as ErrChecksum. dst must be
// at least as large as the saved data.
func (c *Cache) Load(key rangecache.Key, dst []byte) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}

	c.mu.Lock()
	ent, ok := c.items[key]
	if ok {
		c.moveToFront(ent)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return false, nil
	}

	raw, err := os.ReadFile(ent.filePath)
	if err != nil {
		// File vanished underneath the index.
		c.removeItem(ent, false)
		c.misses.Add(1)
		return false, nil
	}

	if len(raw) < checksumSize ||
		binary.LittleEndian.Uint64(raw) != xxhash.Sum64(raw[checksumSize:]) {
		c.removeItem(ent, true)
		c.misses.Add(1)
		return false, ErrChecksum
	}

	data, err := decompressBlock(raw[checksumSize:])
	if err != nil {
		c.removeItem(ent, true)
		c.misses.Add(1)
		return false, err
	}

	if len(dst) < len(data) {
		return false, fmt.Errorf("ssd: destination too small: %d < %d", len(dst), len(data))
	}
	copy(dst, data)
	c.hits.Add(1)
	return true, nil
}

// Save writes the block for key to disk in the background. Writes are
// bounded; when all write slots are busy the block is dropped - this
// is a cache, not a log.
func (c *Cache) Save(key rangecache.Key, data []byte) {
	if c.closed.Load() {
		return
	}

	c.mu.Lock()
	if ent, ok := c.items[key]; ok {
		c.moveToFront(ent)
		c.mu.Unlock()
		// Blocks are immutable; no rewrite.
		return
	}
	c.mu.Unlock()

	block, err := compressBlock(data, c.compression)
	if err != nil {
		return
	}

	buf := make([]byte, checksumSize+len(block))
	binary.LittleEndian.PutUint64(buf, xxhash.Sum64(block))
	copy(buf[checksumSize:], block)

	if !c.writeSem.TryAcquire(1) {
		return
	}

	absPath := c.keyToPath(key)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.writeSem.Release(1)

		if err := c.rc.AcquireIO(context.Background(), len(buf)); err != nil {
			return
		}

		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return
		}
		if err := atomicfile.WriteFile(absPath, bytes.NewReader(buf)); err != nil {
			return
		}

		size := int64(len(buf))
		c.mu.Lock()
		for c.currentSize+size > c.maxSize {
			if c.lruTail == nil {
				break
			}
			c.evictOne()
		}
		c.addToLRU(key, absPath, size)
		c.mu.Unlock()
	}()
}

// Evicted adapts the cache to rangecache.WithEvictionCallback: evicted
// RAM entries are written back to disk.
func (c *Cache) Evicted(key rangecache.Key, data []byte) {
	c.Save(key, data)
}

// Invalidate removes entries matching the predicate along with their
// files.
func (c *Cache) Invalidate(predicate func(key rangecache.Key) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*lruEntry
	for k, ent := range c.items {
		if predicate(k) {
			toRemove = append(toRemove, ent)
		}
	}

	for _, ent := range toRemove {
		_ = os.Remove(ent.filePath)
		c.removeEntry(ent)
	}
}

// Close stops accepting work and waits for in-flight background
// writes to complete. It is idempotent.
func (c *Cache) Close() error {
	c.closed.Store(true)
	c.wg.Wait()
	return nil
}

// Stats returns hit/miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the current size of the cache on disk in bytes.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

// Len returns the number of blocks in the index.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) removeItem(ent *lruEntry, removeFile bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[ent.key]; !ok {
		return
	}
	if removeFile {
		_ = os.Remove(ent.filePath)
	}
	c.removeEntry(ent)
}

// Internal LRU helpers (must hold lock)

func (c *Cache) addToLRU(key rangecache.Key, path string, size int64) {
	if _, ok := c.items[key]; ok {
		return
	}
	ent := &lruEntry{
		key:      key,
		filePath: path,
		size:     size,
	}
	c.items[key] = ent
	c.currentSize += size

	if c.lruHead == nil {
		c.lruHead = ent
		c.lruTail = ent
	} else {
		ent.next = c.lruHead
		c.lruHead.prev = ent
		c.lruHead = ent
	}
}

func (c *Cache) moveToFront(ent *lruEntry) {
	if c.lruHead == ent {
		return
	}

	if ent.prev != nil {
		ent.prev.next = ent.next
	}
	if ent.next != nil {
		ent.next.prev = ent.prev
	}
	if c.lruTail == ent {
		c.lruTail = ent.prev
	}

	ent.next = c.lruHead
	ent.prev = nil
	if c.lruHead != nil {
		c.lruHead.prev = ent
	}
	c.lruHead = ent
	if c.lruTail == nil {
		c.lruTail = ent
	}
}

func (c *Cache) removeEntry(ent *lruEntry) {
	if ent.prev != nil {
		ent.prev.next = ent.next
	} else {
		c.lruHead = ent.next
	}

	if ent.next != nil {
		ent.next.prev = ent.prev
	} else {
		c.lruTail = ent.prev
	}

	delete(c.items, ent.key)
	c.currentSize -= ent.size
}

func (c *Cache) evictOne() {
	if c.lruTail == nil {
		return
	}
	_ = os.Remove(c.lruTail.filePath)
	c.removeEntry(c.lruTail)
}
