package rangecache

// Pin is a live reference to an Entry and the only way callers touch
// one. A pin over a shared entry may be cloned freely (each clone
// holds its own reference); cloning a pin over an exclusive entry is a
// misuse fault, since two independent fillers would race on the same
// buffer.
//
// An empty pin is the designated "not available, wait on the future"
// signal from FindOrCreate. Release is idempotent.
type Pin struct {
	entry *Entry
}

// Empty reports whether the pin references no entry.
func (p *Pin) Empty() bool {
	return p == nil || p.entry == nil
}

// Entry returns the pinned entry, or nil for an empty pin.
func (p *Pin) Entry() *Entry {
	if p == nil {
		return nil
	}
	return p.entry
}

// Clone duplicates the pin, incrementing the entry's pin count.
// It panics if the entry is exclusive.
func (p *Pin) Clone() *Pin {
	if p.Empty() {
		return &Pin{}
	}
	e := p.entry
	e.shard.mu.Lock()
	if e.pins == pinExclusive {
		e.shard.mu.Unlock()
		panic(panicCloneExclusive)
	}
	e.pins++
	e.shard.mu.Unlock()
	return &Pin{entry: e}
}

// Release drops the pin's reference and empties the pin. Releasing
// the last pin on a shared entry leaves the entry in the table,
// unpinned and evictable. Releasing the only pin on an exclusive entry
// that was never published erases the entry, so a subsequent lookup
// sees a clean miss.
func (p *Pin) Release() {
	if p.Empty() {
		return
	}
	e := p.entry
	p.entry = nil
	e.shard.unpin(e)
}
