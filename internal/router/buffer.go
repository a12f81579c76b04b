package router

import (
	"sync"
)

// GrowableBuffer is a thread-safe FIFO ring that doubles its capacity once
// it is 70% full, up to an optional ceiling. At the ceiling a full buffer
// evicts its oldest item so a stalled consumer cannot exhaust memory.
type GrowableBuffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int // next read
	count  int
	maxCap int // 0 = unbounded
	closed bool

	received int64
	sent     int64
	dropped  int64
	resizes  int
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	Dropped       int64
	ResizeCount   int
}

// NewGrowableBuffer creates a buffer with the given initial capacity. A
// positive maxCapacity bounds growth.
func NewGrowableBuffer[T any](initialCapacity, maxCapacity int) *GrowableBuffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if maxCapacity > 0 && maxCapacity < initialCapacity {
		maxCapacity = initialCapacity
	}
	b := &GrowableBuffer[T]{
		ring:   make([]T, initialCapacity),
		maxCap: maxCapacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send appends item. It returns false if the buffer is closed.
func (b *GrowableBuffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	capacity := len(b.ring)
	threshold := max(capacity*70/100, 1)
	if b.count+1 >= threshold && b.canGrow() {
		b.resize(capacity * 2)
		capacity = len(b.ring)
	}

	if b.count == capacity {
		// At the ceiling and full: overwrite the oldest entry.
		var zero T
		b.ring[b.head] = zero
		b.head = (b.head + 1) % capacity
		b.count--
		b.dropped++
	}

	b.ring[(b.head+b.count)%capacity] = item
	b.count++
	b.received++
	b.cond.Signal()
	return true
}

// Receive blocks until an item is available. It returns false once the
// buffer is closed and empty.
func (b *GrowableBuffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// TryReceive returns the oldest item without blocking.
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// DrainTo removes up to max items (all if max <= 0) in FIFO order.
func (b *GrowableBuffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.count
	if n == 0 {
		return nil
	}
	if max > 0 && max < n {
		n = max
	}
	out := make([]T, n)
	for i := range out {
		out[i] = b.pop()
	}
	return out
}

// Close stops accepting items and wakes blocked receivers. Items already
// buffered can still be received.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of buffered items.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity.
func (b *GrowableBuffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ring)
}

// Stats returns buffer statistics.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:         b.count,
		Capacity:      len(b.ring),
		TotalReceived: b.received,
		TotalSent:     b.sent,
		Dropped:       b.dropped,
		ResizeCount:   b.resizes,
	}
}

func (b *GrowableBuffer[T]) canGrow() bool {
	return b.maxCap == 0 || len(b.ring) < b.maxCap
}

// pop removes the oldest item. Caller holds mu and has checked count > 0.
func (b *GrowableBuffer[T]) pop() T {
	var zero T
	item := b.ring[b.head]
	b.ring[b.head] = zero
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	b.sent++
	return item
}

// resize moves the items into a ring of the given size, clamped to the
// ceiling. Caller holds mu.
func (b *GrowableBuffer[T]) resize(size int) {
	if b.maxCap > 0 && size > b.maxCap {
		size = b.maxCap
	}
	ring := make([]T, size)
	for i := 0; i < b.count; i++ {
		ring[i] = b.ring[(b.head+i)%len(b.ring)]
	}
	b.ring = ring
	b.head = 0
	b.resizes++
}
