// Package fileid interns file names to stable integer identities so a
// cache key can carry a fixed-width file id instead of a string. Ids
// are reference counted through leases: the same name resolves to the
// same id while any lease on it is live, and an id is never reused
// while referenced.
package fileid

import "sync"

// Registry interns names. It is a plain constructible object, not a
// process-wide singleton; tests create their own.
type Registry struct {
	mu     sync.Mutex
	byName map[string]*record
	byID   map[uint64]*record
	nextID uint64
}

type record struct {
	id   uint64
	name string
	refs int
}

// NewRegistry creates an empty registry. Ids start at 1 so the zero
// value of a Key never aliases a real file.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*record),
		byID:   make(map[uint64]*record),
		nextID: 1,
	}
}

// Lease returns a lease on the id for name, creating the id if the
// name is unknown. The lease must be released when the last cache
// entry referencing the id is gone.
func (r *Registry) Lease(name string) *Lease {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byName[name]
	if !ok {
		rec = &record{id: r.nextID, name: name}
		r.nextID++
		r.byName[name] = rec
		r.byID[rec.id] = rec
	}
	rec.refs++
	return &Lease{registry: r, rec: rec}
}

// Name returns the name for a live id, or "" if the id is unknown.
func (r *Registry) Name(id uint64) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.byID[id]; ok {
		return rec.name
	}
	return ""
}

// Len returns the number of live ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}

func (r *Registry) release(rec *record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.refs--
	if rec.refs == 0 {
		delete(r.byName, rec.name)
		delete(r.byID, rec.id)
	}
}

// Lease is a reference-counted hold on a file id. The zero value is
// an empty lease with id 0.
type Lease struct {
	registry *Registry
	rec      *record
	released bool
}

// ID returns the interned id, or 0 for an empty or released lease.
func (l *Lease) ID() uint64 {
	if l == nil || l.rec == nil || l.released {
		return 0
	}
	return l.rec.id
}

// Name returns the interned name.
func (l *Lease) Name() string {
	if l == nil || l.rec == nil || l.released {
		return ""
	}
	return l.rec.name
}

// Release drops the lease's reference. It is idempotent.
func (l *Lease) Release() {
	if l == nil || l.rec == nil || l.released {
		return
	}
	l.released = true
	l.registry.release(l.rec)
}
