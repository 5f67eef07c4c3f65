// Package ring implements the fixed-capacity single-producer/single-consumer
// queue that connects every stage of the recording pipeline. It is the only
// synchronization primitive on the hot path: a producer publishing a slot
// release-stores its cursor, and the consumer's acquire-load of that cursor
// is what makes the slot's contents visible without a lock.
package ring

import (
	"fmt"
	"sync/atomic"
)

// SPSC is a bounded queue with exactly one producer goroutine and one
// consumer goroutine. Capacity must be a power of two; one slot is always
// kept empty as a sentinel, so the usable capacity is Cap()-1.
type SPSC[T any] struct {
	buf  []T
	mask uint64
	head atomic.Uint64 // next slot the producer will write
	tail atomic.Uint64 // next slot the consumer will read
}

// New builds an SPSC ring of the given capacity, which must be a power of
// two and at least 2. A capacity that fails this check is a configuration
// mistake, not a runtime condition, so it is reported as an error rather
// than silently rounded up.
func New[T any](capacity int) (*SPSC[T], error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("ring: capacity must be a power of two >= 2, got %d", capacity)
	}
	return &SPSC[T]{
		buf:  make([]T, capacity),
		mask: uint64(capacity - 1),
	}, nil
}

// Cap returns the usable capacity (total slots minus the sentinel slot).
func (r *SPSC[T]) Cap() int {
	return len(r.buf) - 1
}

// Push stores item in the next slot and publishes it to the consumer.
// Returns false without blocking if the ring is full.
func (r *SPSC[T]) Push(item T) bool {
	head := r.head.Load()
	tail := r.tail.Load() // acquire: see the consumer's most recent progress
	if (head+1)&r.mask == tail&r.mask {
		return false
	}
	r.buf[head&r.mask] = item
	r.head.Store(head + 1) // release: publish the slot to the consumer
	return true
}

// Pop removes and returns the oldest item, or false without blocking if the
// ring is empty.
func (r *SPSC[T]) Pop() (T, bool) {
	var zero T
	tail := r.tail.Load()
	head := r.head.Load() // acquire: see the producer's most recent publish
	if tail == head {
		return zero, false
	}
	item := r.buf[tail&r.mask]
	r.buf[tail&r.mask] = zero // drop the reference so it can be GC'd
	r.tail.Store(tail + 1)    // release: free the slot for reuse
	return item, true
}

// Size is an observation-only snapshot of the item count, in [0, Cap()].
// It may read slightly stale cursors and must never be used to decide
// whether a Push or Pop will succeed.
func (r *SPSC[T]) Size() int {
	head := r.head.Load()
	tail := r.tail.Load()
	return int((head - tail) & r.mask)
}

// FillFactor is Size()/Cap(), in [0.0, 1.0].
func (r *SPSC[T]) FillFactor() float64 {
	cap := r.Cap()
	if cap == 0 {
		return 0
	}
	return float64(r.Size()) / float64(cap)
}
