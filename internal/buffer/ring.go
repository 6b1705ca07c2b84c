// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package buffer holds the bounded sample store shared by the sampling loop
// (single producer) and the streaming session (single consumer).
//
// Push never blocks and never fails: when the ring is full the oldest entry
// is overwritten. DrainUpTo never waits for data. The mutex is held only for
// the copy in or out of the ring.
package buffer

import "sync"

// Ring is a fixed-capacity FIFO that drops the oldest element on overflow.
type Ring[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int // next write position
	tail    int // next read position
	size    int
	dropped uint64
}

// New creates a ring holding at most capacity elements.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == len(r.items) {
		r.tail = (r.tail + 1) % len(r.items)
		r.size--
		r.dropped++
	}
	r.items[r.head] = v
	r.head = (r.head + 1) % len(r.items)
	r.size++
}

// DrainUpTo removes and returns up to n of the oldest elements, oldest first.
// The result is empty, never nil, when there is nothing to return.
func (r *Ring[T]) DrainUpTo(n int) []T {
	if n <= 0 {
		return []T{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.size {
		n = r.size
	}
	out := make([]T, n)
	var zero T
	for i := range out {
		out[i] = r.items[r.tail]
		r.items[r.tail] = zero
		r.tail = (r.tail + 1) % len(r.items)
	}
	r.size -= n
	return out
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Dropped returns how many elements were evicted by overflow so far.
func (r *Ring[T]) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
