// Package events provides the unbounded many-producer, single-consumer queue
// used to carry engine callbacks into Go consumers.
//
// Producers run on engine threads and must never block there, so Send
// never waits: it appends under a short mutex and wakes the consumer.
// Backpressure, when needed, is the consumer's job.
//
//	ch := events.New[status.Status]()
//	tx := ch.Sender()
//
//	// engine thread
//	_ = tx.Send(status.Ready)
//
//	// consumer goroutine
//	for {
//	    s, err := ch.Recv(ctx)
//	    if err != nil {
//	        break // events.ErrClosed once every sender closed and the queue drained
//	    }
//	    apply(s)
//	}
package events

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Send after the consumer dropped the channel or the
// sender was closed, and by Recv once all senders closed and the queue drained.
var ErrClosed = errors.New("events: channel closed")

// Channel is the consumer end of a queue.
type Channel[T any] struct {
	mu      sync.Mutex
	queue   []T
	head    int
	senders int
	opened  bool
	dropped bool
	wake    chan struct{}
}

// New creates an empty channel with no senders.
func New[T any]() *Channel[T] {
	return &Channel[T]{
		wake: make(chan struct{}, 1),
	}
}

// Sender is one producer end of a Channel.
type Sender[T any] struct {
	ch     *Channel[T]
	mu     sync.Mutex
	closed bool
}

// Sender registers and returns a new producer end.
// Senders created after the last one closed do not reopen the channel.
func (c *Channel[T]) Sender() *Sender[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Sender[T]{ch: c}
	if c.opened && c.senders == 0 {
		s.closed = true
		return s
	}
	c.opened = true
	c.senders++
	return s
}

// Send enqueues v without blocking.
func (s *Sender[T]) Send(v T) error {
	// Held across push so Close cannot release the channel in between.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.ch.push(v)
}

// Close releases this producer end. It is idempotent.
func (s *Sender[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.ch.release()
}

func (c *Channel[T]) push(v T) error {
	c.mu.Lock()
	if c.dropped {
		c.mu.Unlock()
		return ErrClosed
	}
	c.queue = append(c.queue, v)
	c.mu.Unlock()

	c.signal()
	return nil
}

func (c *Channel[T]) release() {
	c.mu.Lock()
	c.senders--
	c.mu.Unlock()

	c.signal()
}

func (c *Channel[T]) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// pop returns the next value, or closed=true when no value will ever come.
func (c *Channel[T]) pop() (v T, ok bool, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.head < len(c.queue) {
		v = c.queue[c.head]
		var zero T
		c.queue[c.head] = zero
		c.head++
		if c.head == len(c.queue) {
			c.queue = c.queue[:0]
			c.head = 0
		}
		return v, true, false
	}
	return v, false, c.dropped || (c.opened && c.senders == 0)
}

// Recv waits for the next value in send order.
// It returns ErrClosed once all senders closed and the queue is drained,
// and ctx.Err() if ctx ends first.
func (c *Channel[T]) Recv(ctx context.Context) (T, error) {
	for {
		v, ok, closed := c.pop()
		if ok {
			return v, nil
		}
		if closed {
			return v, ErrClosed
		}

		select {
		case <-c.wake:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryRecv returns the next value if one is queued.
func (c *Channel[T]) TryRecv() (T, bool) {
	v, ok, _ := c.pop()
	return v, ok
}

// Len returns the number of queued values.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) - c.head
}

// Close drops the consumer end. Queued values are discarded and every
// later Send fails with ErrClosed.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	c.dropped = true
	c.queue = nil
	c.head = 0
	c.mu.Unlock()

	c.signal()
}
