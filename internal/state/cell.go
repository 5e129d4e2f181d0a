// Package state holds the latest-value cells that the capture loop
// publishes and consumers read.
package state

import "sync"

// Cell is a latest-value slot. Every Store overwrites the previous value;
// intermediate values are never queued. It is safe for concurrent use.
type Cell[T any] struct {
	mu      sync.RWMutex
	value   T
	version uint64
	subs    map[chan struct{}]struct{}
}

// NewCell creates a cell holding initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{
		value: initial,
		subs:  make(map[chan struct{}]struct{}),
	}
}

// Load returns the current value.
func (c *Cell[T]) Load() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// LoadVersion returns the current value and the number of stores so far.
func (c *Cell[T]) LoadVersion() (T, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.version
}

// Version returns the number of stores so far.
func (c *Cell[T]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Store replaces the value and wakes subscribers.
func (c *Cell[T]) Store(v T) {
	c.mu.Lock()
	c.value = v
	c.version++
	for ch := range c.subs {
		// Capacity 1: a pending wake-up already covers this store.
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	c.mu.Unlock()
}

// Subscribe returns a channel that receives a signal after stores, with
// consecutive stores coalesced into one signal, and a function that ends
// the subscription.
func (c *Cell[T]) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
		})
	}
}
