// Package live turns callback-style snapshot listeners into pull-based
// streams that can be cancelled from the consumer side.
package live

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrDone is returned by Next after a finite stream has yielded every item.
	ErrDone = errors.New("live: stream done")

	// ErrClosed is returned by Next once the consumer closed the stream.
	ErrClosed = errors.New("live: stream closed")
)

// Registration is the handle a listener source returns on registration.
// Remove deregisters the listener.
type Registration interface {
	Remove()
}

// RegistrationFunc adapts a plain function to Registration.
type RegistrationFunc func()

func (f RegistrationFunc) Remove() { f() }

// Listener receives one pushed element or a terminal error.
type Listener[T any] func(v T, err error)

// RegisterFunc attaches a listener to a push source.
type RegisterFunc[T any] func(Listener[T]) Registration

// Stream is a pull-based sequence over a push-based listener.
//
// The listener is registered on the first call to Next. It is removed exactly
// once: when the consumer calls Close, or when the source reports an error.
// Elements are delivered in the order the source pushed them; a terminal
// error is returned only after every earlier element has been consumed.
type Stream[T any] struct {
	register RegisterFunc[T]
	activate sync.Once

	mu     sync.Mutex
	items  []T
	err    error
	closed bool
	reg    Registration
	ready  chan struct{}
}

// Listen wraps register in a Stream. Nothing is registered until Next.
func Listen[T any](register RegisterFunc[T]) *Stream[T] {
	return &Stream[T]{register: register, ready: make(chan struct{}, 1)}
}

// Just returns a stream that yields v once and then completes.
func Just[T any](v T) *Stream[T] {
	return &Stream[T]{items: []T{v}, err: ErrDone, ready: make(chan struct{}, 1)}
}

// Fail returns a stream whose first Next reports err.
func Fail[T any](err error) *Stream[T] {
	return &Stream[T]{err: err, ready: make(chan struct{}, 1)}
}

// Next blocks until the next element, a terminal error, or ctx is done.
// A completed stream reports ErrDone; a closed stream reports ErrClosed.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	s.activate.Do(s.start)

	for {
		s.mu.Lock()
		var zero T
		switch {
		case s.closed:
			s.mu.Unlock()
			return zero, ErrClosed
		case len(s.items) > 0:
			v := s.items[0]
			s.items[0] = zero
			s.items = s.items[1:]
			s.mu.Unlock()
			return v, nil
		case s.err != nil:
			err := s.err
			s.mu.Unlock()
			return zero, err
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Close releases the listener and wakes any blocked Next. It is safe to call
// more than once and from any goroutine.
func (s *Stream[T]) Close() {
	// A stream closed before activation must never register.
	s.activate.Do(func() {})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.items = nil
	reg := s.reg
	s.reg = nil
	s.signal()
	s.mu.Unlock()

	if reg != nil {
		reg.Remove()
	}
}

func (s *Stream[T]) start() {
	if s.register == nil {
		return
	}
	// The source may push synchronously from inside register, so the lock is
	// not held here.
	reg := s.register(s.deliver)
	if reg == nil {
		return
	}

	s.mu.Lock()
	if s.closed || s.err != nil {
		s.mu.Unlock()
		reg.Remove()
		return
	}
	s.reg = reg
	s.mu.Unlock()
}

func (s *Stream[T]) deliver(v T, err error) {
	s.mu.Lock()
	if s.closed || s.err != nil {
		s.mu.Unlock()
		return
	}
	var reg Registration
	if err != nil {
		s.err = err
		reg = s.reg
		s.reg = nil
	} else {
		s.items = append(s.items, v)
	}
	s.signal()
	s.mu.Unlock()

	if reg != nil {
		reg.Remove()
	}
}

// signal must be called with s.mu held.
func (s *Stream[T]) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}
