// Package observe holds the two presentation primitives every controller
// exposes: a continuously readable state value and a one-shot effect queue.
package observe

import "sync"

// Value is a latest-value cell. All writes are serialized; readers always see
// the most recent value but may miss intermediate ones.
//
// S should be treated as immutable once stored: Update receives a copy and
// returns the replacement.
type Value[S any] struct {
	mu      sync.Mutex
	v       S
	changed chan struct{}
}

// NewValue returns a Value holding initial.
func NewValue[S any](initial S) *Value[S] {
	return &Value[S]{v: initial, changed: make(chan struct{})}
}

// Load returns the current value.
func (c *Value[S]) Load() S {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

// Watch returns the current value together with a channel that is closed on
// the next Update.
func (c *Value[S]) Watch() (S, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v, c.changed
}

// Update replaces the value with fn(current) and wakes every watcher.
// fn runs under the write lock and must not call back into c.
func (c *Value[S]) Update(fn func(S) S) S {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = fn(c.v)
	close(c.changed)
	c.changed = make(chan struct{})
	return c.v
}
