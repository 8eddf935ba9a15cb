package drawsched

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
)

// Allocator provides layer draw buffers.
type Allocator interface {
	// AllocateLayerBuffer returns a buffer covering l.Bounds(), or an error
	// wrapping ErrOutOfMemory.
	AllocateLayerBuffer(l *Layer) (*Buffer, error)

	// FreeLayerBuffer returns a buffer obtained from AllocateLayerBuffer.
	FreeLayerBuffer(b *Buffer)
}

// HeapAllocator allocates buffers on the Go heap within a byte budget.
//
// HeapAllocator is safe for concurrent use.
type HeapAllocator struct {
	mu     sync.Mutex
	budget int64 // 0 = unlimited
	used   int64
	format gputypes.TextureFormat
}

// NewHeapAllocator creates an allocator limited to budget bytes.
// A budget of 0 means unlimited.
func NewHeapAllocator(budget int64, format gputypes.TextureFormat) *HeapAllocator {
	return &HeapAllocator{budget: budget, format: format}
}

// AllocateLayerBuffer implements Allocator.
func (a *HeapAllocator) AllocateLayerBuffer(l *Layer) (*Buffer, error) {
	size := BytesFor(l.Bounds())
	a.mu.Lock()
	if a.budget > 0 && a.used+size > a.budget {
		used := a.used
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: layer %q needs %d bytes, %d of %d in use",
			ErrOutOfMemory, l.Name(), size, used, a.budget)
	}
	a.used += size
	a.mu.Unlock()
	return NewBuffer(l.Bounds(), a.format), nil
}

// FreeLayerBuffer implements Allocator.
func (a *HeapAllocator) FreeLayerBuffer(b *Buffer) {
	if b == nil {
		return
	}
	a.mu.Lock()
	a.used -= b.Size()
	if a.used < 0 {
		a.used = 0
	}
	a.mu.Unlock()
}

// Used returns the number of bytes currently allocated.
func (a *HeapAllocator) Used() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}
