package cache

import (
	"cmp"
	"testing"
)

func benchCallbacks() Callbacks[int, int] {
	return Callbacks[int, int]{
		Compare: cmp.Compare[int],
		Create:  func(k int) (int, error) { return k, nil },
	}
}

func BenchmarkCacheAcquireHit(b *testing.B) {
	c := New(1000, benchCallbacks())
	for i := 0; i < 100; i++ {
		_, _ = c.Acquire(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Acquire(50)
	}
}

func BenchmarkCacheAcquireChurn(b *testing.B) {
	c := New(64, benchCallbacks())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Acquire(i % 256)
		if i%32 == 0 {
			c.ReleasePending()
		}
	}
}
