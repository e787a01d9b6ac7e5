// Package buffer provides a fixed-capacity ring buffer used to retain the
// most recent consumer metrics samples. Writes never block; once the buffer
// is full the oldest sample is overwritten.
package buffer

import (
	"sync"
	"sync/atomic"
)

// Ring is a thread-safe fixed-capacity ring buffer. The zero value is not
// usable; construct with NewRing.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position

	writes atomic.Int64
	drops  atomic.Int64
}

// NewRing creates a ring buffer holding at most capacity items.
// Capacities below 1 are raised to 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Append adds an item, overwriting the oldest entry when full.
func (r *Ring[T]) Append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == r.capacity {
		r.drops.Add(1)
	} else {
		r.size++
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.writes.Add(1)
}

// Last returns up to n of the most recent items in insertion order
// (oldest first). n <= 0 returns nil; n larger than the current size
// returns everything retained.
func (r *Ring[T]) Last(n int) []T {
	if n <= 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.size {
		n = r.size
	}
	if n == 0 {
		return nil
	}

	result := make([]T, n)
	// head points past the newest item; walk back n slots
	start := (r.head - n + r.capacity*2) % r.capacity
	for i := 0; i < n; i++ {
		result[i] = r.items[(start+i)%r.capacity]
	}
	return result
}

// Len returns the number of items currently retained.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the maximum number of items the ring retains.
func (r *Ring[T]) Cap() int {
	return r.capacity // immutable
}

// Clear drops all retained items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}

// Stats reports lifetime write and overwrite counts.
func (r *Ring[T]) Stats() (writes, drops int64) {
	return r.writes.Load(), r.drops.Load()
}
