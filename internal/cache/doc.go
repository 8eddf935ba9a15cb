// Package cache provides the GPU resource cache used by hardware draw units.
//
// A [Cache] maps structurally identical resource parameters (a gradient's
// stops, an image source identity) to an expensive device-side resource.
// Keys are looked up with an ordered comparison, entries are evicted in
// least-recently-used order, and every entry handed out by [Cache.Acquire]
// is recorded in the cache's [PendingList].
//
// # Pending entries
//
// GPU submission is asynchronous. A resource returned by Acquire may still
// be read by commands the device has not retired, so it is kept alive until
// the next synchronization barrier:
//
//	c := cache.New(16, cache.Callbacks[Key, *Gradient]{
//		Compare: compareKeys,
//		Create:  uploadGradient,
//		Free:    destroyGradient,
//		Barrier: gpu.Finish,
//	})
//	e, err := c.Acquire(key) // e is pending until c.Flush
//
// Eviction never selects a pending entry. When the cache is full and every
// entry is pending, Acquire runs the barrier, drains the pending list and
// retries once.
//
// # Thread Safety
//
// Cache is owned by a single draw unit and is NOT safe for concurrent
// mutation. Stats may be read from any goroutine.
//
// [Sharded] caches host-side derived data shared by several units and is
// safe for concurrent use.
package cache
