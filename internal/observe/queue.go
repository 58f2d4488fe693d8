package observe

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Queue.Next once the queue is closed and drained.
var ErrClosed = errors.New("observe: queue closed")

// Queue is an unbounded FIFO of one-shot notifications. Each pushed item is
// handed to exactly one Next caller and is never replayed.
type Queue[E any] struct {
	mu     sync.Mutex
	items  []E
	ready  chan struct{}
	closed bool
}

// NewQueue returns an empty queue.
func NewQueue[E any]() *Queue[E] {
	return &Queue[E]{ready: make(chan struct{}, 1)}
}

// Push appends e. It reports false if the queue is already closed.
func (q *Queue[E]) Push(e E) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, e)
	q.signal()
	return true
}

// Next blocks until an item is available, the queue is closed and drained,
// or ctx is done.
func (q *Queue[E]) Next(ctx context.Context) (E, error) {
	for {
		if e, ok, err := q.take(); ok || err != nil {
			return e, err
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			var zero E
			return zero, ctx.Err()
		}
	}
}

// Close stops accepting items. Items already queued can still be taken.
func (q *Queue[E]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.signal()
}

func (q *Queue[E]) take() (E, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero E
	if len(q.items) == 0 {
		if q.closed {
			q.signal()
			return zero, false, ErrClosed
		}
		return zero, false, nil
	}
	e := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// Keep other waiters moving.
		q.signal()
	}
	return e, true, nil
}

// signal must be called with q.mu held.
func (q *Queue[E]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
