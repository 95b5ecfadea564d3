// Package history keeps bounded, insertion-ordered message logs.
package history

import "sync"

// DefaultSize is how many entries a Ring keeps when no size is configured.
const DefaultSize = 25

// Ring is a fixed-capacity circular buffer. When full, Push drops the oldest
// entry. All methods are safe for concurrent use.
type Ring[T any] struct {
	mu    sync.RWMutex
	buf   []T
	head  int
	count int
}

// NewRing creates a ring holding at most size entries. Non-positive sizes
// fall back to DefaultSize.
func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = DefaultSize
	}
	return &Ring[T]{buf: make([]T, size)}
}

func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	idx := (r.head + r.count) % len(r.buf)
	r.buf[idx] = item
	if r.count == len(r.buf) {
		r.head = (r.head + 1) % len(r.buf)
	} else {
		r.count++
	}
	r.mu.Unlock()
}

// Snapshot returns a copy of the entries, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	r.mu.RUnlock()
	return out
}

func (r *Ring[T]) Len() int {
	r.mu.RLock()
	n := r.count
	r.mu.RUnlock()
	return n
}

func (r *Ring[T]) Cap() int {
	return len(r.buf)
}
