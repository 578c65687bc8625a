// Package broadcast implements a single-producer, multi-consumer fan-out
// channel with bounded per-receiver buffering. Each item accepted by the
// Sender is delivered to every Receiver registered at the time of the send,
// in send order, exactly once per Receiver.
//
// Backpressure discipline: Send blocks while any receiver's buffer is full,
// propagating consumer slowness upstream to the producer. A receiver which
// never drains therefore stalls the sender indefinitely; receivers which are
// done must Close to detach.
package broadcast

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned by Send after the Channel has been closed.
var ErrClosed = errors.New("broadcast channel is closed")

// DefaultCapacity is the receiver buffer capacity used when a non-positive
// capacity is requested.
const DefaultCapacity = 50

// Channel fans out items of type T from one Sender to many Receivers.
// A Channel is used for a single logical stream incarnation: once closed,
// it stays closed, and a new Channel must be created to stream again.
type Channel[T any] struct {
	name string

	mu        sync.Mutex
	receivers map[*Receiver[T]]struct{}
	done      chan struct{}
	closed    bool
}

// New returns a Channel with the given name, used for observability only.
func New[T any](name string) *Channel[T] {
	return &Channel[T]{
		name:      name,
		receivers: make(map[*Receiver[T]]struct{}),
		done:      make(chan struct{}),
	}
}

// Name of the Channel.
func (c *Channel[T]) Name() string { return c.name }

// NewSender returns a Sender of the Channel. The Channel supports a single
// producer: concurrent Sends from multiple goroutines lose the per-receiver
// ordering guarantee.
func (c *Channel[T]) NewSender() *Sender[T] { return &Sender[T]{c: c} }

// NewReceiver registers and returns a Receiver with the given buffer
// capacity. Non-positive capacities use DefaultCapacity. The Receiver
// observes all items sent after its registration. If the Channel is already
// closed the Receiver is immediately drained.
func (c *Channel[T]) NewReceiver(capacity int) *Receiver[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	var r = &Receiver[T]{
		c:      c,
		buf:    make(chan T, capacity),
		closed: make(chan struct{}),
	}
	c.mu.Lock()
	if !c.closed {
		c.receivers[r] = struct{}{}
	}
	c.mu.Unlock()
	return r
}

// Close the Channel. Close is idempotent. Blocked Sends are woken and return
// ErrClosed; blocked and future Recvs drain buffered items and then return
// io.EOF. Items already buffered remain readable.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.done)
		c.receivers = nil
	}
	c.mu.Unlock()
}

// IsClosed returns whether the Channel has been closed.
func (c *Channel[T]) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// snapshot returns the current receiver set. Sends deliver to this snapshot,
// so a Receiver added mid-Send first observes the following item.
func (c *Channel[T]) snapshot() []*Receiver[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out = make([]*Receiver[T], 0, len(c.receivers))
	for r := range c.receivers {
		out = append(out, r)
	}
	return out
}

func (c *Channel[T]) drop(r *Receiver[T]) {
	c.mu.Lock()
	delete(c.receivers, r)
	c.mu.Unlock()
}

// Sender is the producer-side handle of a Channel.
type Sender[T any] struct {
	c *Channel[T]
}

// Send delivers the item to every registered Receiver, blocking while any
// receiver's buffer is full. It returns ErrClosed if the Channel is or
// becomes closed, or the context error if |ctx| is cancelled first.
func (s *Sender[T]) Send(ctx context.Context, item T) error {
	for _, r := range s.c.snapshot() {
		select {
		case r.buf <- item:
		case <-r.closed:
			// Receiver detached. Skip it.
		case <-s.c.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	// A Send against an already-closed Channel must fail even when there
	// are no receivers to deliver to.
	select {
	case <-s.c.done:
		return ErrClosed
	default:
		return nil
	}
}

// Receiver is a consumer-side handle of a Channel, with its own bounded
// buffer of undelivered items.
type Receiver[T any] struct {
	c   *Channel[T]
	buf chan T

	closeOnce sync.Once
	closed    chan struct{}
}

// Recv returns the next item. After the Channel is closed, Recv drains
// items buffered before the close and then returns io.EOF. Recv returns
// the context error if |ctx| is cancelled while waiting.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T

	// Fast path: drain buffered items before observing closure, so that a
	// close does not discard items already accepted on our behalf.
	select {
	case item := <-r.buf:
		return item, nil
	default:
	}

	select {
	case item := <-r.buf:
		return item, nil
	case <-r.closed:
		return zero, io.EOF
	case <-r.c.done:
		// The Channel closed while we waited. A send may have raced the
		// close, so check the buffer once more.
		select {
		case item := <-r.buf:
			return item, nil
		default:
			return zero, io.EOF
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close detaches the Receiver from the Channel, unblocking the Sender if it
// was waiting on this Receiver's buffer. Close is idempotent. Subsequent
// Recvs drain items already buffered, then return io.EOF.
func (r *Receiver[T]) Close() {
	r.closeOnce.Do(func() {
		close(r.closed)
		r.c.drop(r)
	})
}
