package cache

// pendingRef is a non-owning reference to a cache entry. The generation is
// captured when the reference is taken and checked before the entry is
// touched again, so a reference that outlived its entry is ignored.
type pendingRef[K any, V any] struct {
	entry *Entry[K, V]
	gen   uint64
}

// PendingList records entries whose device-side effects are not yet known
// to have committed. An entry on the list is never evicted.
type PendingList[K any, V any] struct {
	refs     []pendingRef[K, V]
	capacity int
}

func newPendingList[K any, V any](capacity int) *PendingList[K, V] {
	return &PendingList[K, V]{
		refs:     make([]pendingRef[K, V], 0, capacity),
		capacity: capacity,
	}
}

// Len returns the number of outstanding references.
func (p *PendingList[K, V]) Len() int {
	return len(p.refs)
}

// add records e. It returns false when the list is full.
func (p *PendingList[K, V]) add(e *Entry[K, V]) bool {
	if len(p.refs) >= p.capacity {
		return false
	}
	e.pending = true
	p.refs = append(p.refs, pendingRef[K, V]{entry: e, gen: e.gen})
	return true
}

// release drops every reference. Stale references (entry freed or
// recycled since it was recorded) are skipped.
func (p *PendingList[K, V]) release() {
	for i := range p.refs {
		ref := p.refs[i]
		if ref.entry.alive && ref.entry.gen == ref.gen {
			ref.entry.pending = false
		}
		p.refs[i] = pendingRef[K, V]{}
	}
	p.refs = p.refs[:0]
}
