package cache

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
)

// Cache errors.
var (
	// ErrCacheFull is returned when no entry can be evicted even after a
	// pending flush (capacity zero or a barrier that failed to drain).
	ErrCacheFull = errors.New("cache: full")

	// ErrCreate wraps errors reported by the Create callback.
	ErrCreate = errors.New("cache: create failed")

	// ErrClosed is returned by Acquire after Close.
	ErrClosed = errors.New("cache: closed")
)

// Callbacks tie a Cache to the backend that owns its resources.
type Callbacks[K any, V any] struct {
	// Compare orders keys. It must return a negative number when a < b,
	// zero when a and b describe the same resource, and a positive number
	// otherwise.
	Compare func(a, b K) int

	// Create builds the resource for key (e.g. uploads a gradient ramp).
	Create func(key K) (V, error)

	// Free destroys a resource. It is never called for a pending entry.
	Free func(key K, value V)

	// Barrier blocks until every command submitted so far has retired.
	// A nil Barrier means submission is synchronous.
	Barrier func() error
}

// Entry is a cached resource. The cache owns the entry; callers hold it
// only until the next barrier.
type Entry[K any, V any] struct {
	key K

	// Value is the resource. Mutable per-draw state (a gradient matrix)
	// may be rewritten in place; the key must never change.
	Value V

	node    *lruNode[*Entry[K, V]]
	gen     uint64
	pending bool
	alive   bool
}

// Key returns the key the entry was created for.
func (e *Entry[K, V]) Key() K {
	return e.key
}

// Cache is an ordered LRU resource cache with deferred release.
//
// Entries are kept sorted by Compare so lookups are binary searches, and
// linked in an LRU list for eviction. Cache must not be copied after
// creation.
type Cache[K any, V any] struct {
	cb       Callbacks[K, V]
	capacity int
	entries  []*Entry[K, V] // sorted by cb.Compare
	lru      *lruList[*Entry[K, V]]
	pending  *PendingList[K, V]
	closed   bool

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	barriers  atomic.Uint64
	failures  atomic.Uint64
}

// New creates a cache holding at most capacity entries. The pending list
// is bounded by the same capacity.
func New[K any, V any](capacity int, cb Callbacks[K, V]) *Cache[K, V] {
	return NewWithPending(capacity, capacity, cb)
}

// NewWithPending creates a cache with an explicit pending list bound.
// A pendingCapacity <= 0 uses capacity.
func NewWithPending[K any, V any](capacity, pendingCapacity int, cb Callbacks[K, V]) *Cache[K, V] {
	if cb.Compare == nil || cb.Create == nil {
		panic("cache: Compare and Create callbacks are required")
	}
	if capacity < 0 {
		capacity = 0
	}
	if pendingCapacity <= 0 {
		pendingCapacity = capacity
	}
	return &Cache[K, V]{
		cb:       cb,
		capacity: capacity,
		entries:  make([]*Entry[K, V], 0, capacity),
		lru:      newLRUList[*Entry[K, V]](),
		pending:  newPendingList[K, V](pendingCapacity),
	}
}

// Acquire returns the entry for key, creating it on a miss.
//
// The returned entry is marked recently used and registered in the pending
// list, so it survives until the next Flush even if later Acquire calls
// put the cache under eviction pressure. When the cache is full and every
// entry is pending, Acquire runs the barrier, drains the pending list and
// retries once.
//
// A Create failure returns an error wrapping ErrCreate and inserts
// nothing. Room made for the new entry is not restored: on a full cache
// the evicted entry stays freed.
func (c *Cache[K, V]) Acquire(key K) (*Entry[K, V], error) {
	if c.closed {
		return nil, ErrClosed
	}

	i, found := c.search(key)
	if found {
		e := c.entries[i]
		c.hits.Add(1)
		c.lru.MoveToFront(e.node)
		if err := c.track(e); err != nil {
			return nil, err
		}
		return e, nil
	}
	c.misses.Add(1)

	if len(c.entries) >= c.capacity {
		if !c.evictOne() {
			if err := c.Flush(); err != nil {
				return nil, err
			}
			if !c.evictOne() {
				return nil, ErrCacheFull
			}
		}
		// Eviction shifted the slice; recompute the insertion point.
		i, _ = c.search(key)
	}

	v, err := c.cb.Create(key)
	if err != nil {
		c.failures.Add(1)
		return nil, fmt.Errorf("%w: %w", ErrCreate, err)
	}

	e := &Entry[K, V]{key: key, Value: v, alive: true}
	e.node = c.lru.PushFront(e)
	c.entries = slices.Insert(c.entries, i, e)

	if err := c.track(e); err != nil {
		return nil, err
	}
	return e, nil
}

// Contains reports whether key is cached without touching LRU order.
func (c *Cache[K, V]) Contains(key K) bool {
	_, found := c.search(key)
	return found
}

// IsPending reports whether e is referenced from the pending list.
func (c *Cache[K, V]) IsPending(e *Entry[K, V]) bool {
	return e != nil && e.alive && e.pending
}

// Flush is the eviction barrier: it waits for all in-flight device work via
// the Barrier callback, then releases every pending reference.
func (c *Cache[K, V]) Flush() error {
	c.barriers.Add(1)
	if c.cb.Barrier != nil {
		if err := c.cb.Barrier(); err != nil {
			return fmt.Errorf("cache: barrier: %w", err)
		}
	}
	c.pending.release()
	return nil
}

// ReleasePending drops pending references without running the barrier.
// Callers use it after they have already waited for the device themselves.
func (c *Cache[K, V]) ReleasePending() {
	c.pending.release()
}

// PendingLen returns the number of outstanding pending references.
func (c *Cache[K, V]) PendingLen() int {
	return c.pending.Len()
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	return len(c.entries)
}

// Capacity returns the maximum number of entries.
func (c *Cache[K, V]) Capacity() int {
	return c.capacity
}

// Close flushes pending work and frees every entry. Close is safe to call
// multiple times.
func (c *Cache[K, V]) Close() error {
	if c.closed {
		return nil
	}
	err := c.Flush()
	for _, e := range c.entries {
		c.free(e)
	}
	c.entries = c.entries[:0]
	c.lru.Clear()
	c.closed = true
	return err
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Len:          len(c.entries),
		Capacity:     c.capacity,
		Hits:         hits,
		Misses:       misses,
		HitRate:      rate,
		Evictions:    c.evictions.Load(),
		Barriers:     c.barriers.Load(),
		CreateErrors: c.failures.Load(),
	}
}

// search finds key in the sorted entry slice.
func (c *Cache[K, V]) search(key K) (int, bool) {
	return slices.BinarySearchFunc(c.entries, key, func(e *Entry[K, V], k K) int {
		return c.cb.Compare(e.key, k)
	})
}

// track registers e in the pending list, flushing once if the list is full.
func (c *Cache[K, V]) track(e *Entry[K, V]) error {
	if e.pending {
		return nil
	}
	if c.pending.add(e) {
		return nil
	}
	if err := c.Flush(); err != nil {
		return err
	}
	if !c.pending.add(e) {
		return ErrCacheFull
	}
	return nil
}

// evictOne frees the least recently used entry that is not pending.
// Returns false if every entry is pending.
func (c *Cache[K, V]) evictOne() bool {
	for n := c.lru.Back(); n != nil; n = n.prev {
		e := n.item
		if e.pending {
			continue
		}
		i, found := c.search(e.key)
		if !found {
			return false
		}
		c.entries = slices.Delete(c.entries, i, i+1)
		c.lru.Remove(e.node)
		c.free(e)
		c.evictions.Add(1)
		return true
	}
	return false
}

// free destroys e and invalidates outstanding weak references to it.
func (c *Cache[K, V]) free(e *Entry[K, V]) {
	e.alive = false
	e.pending = false
	e.gen++
	if c.cb.Free != nil {
		c.cb.Free(e.key, e.Value)
	}
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Capacity is the maximum number of entries.
	Capacity int
	// Hits is the number of Acquire calls served from the cache.
	Hits uint64
	// Misses is the number of Acquire calls that had to create.
	Misses uint64
	// HitRate is the hit rate 0.0 to 1.0.
	HitRate float64
	// Evictions is the number of entries freed by LRU pressure.
	Evictions uint64
	// Barriers is the number of pending flushes.
	Barriers uint64
	// CreateErrors is the number of failed Create callbacks.
	CreateErrors uint64
}
