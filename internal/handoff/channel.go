// Package handoff provides an unbounded, lock-protected FIFO channel whose
// handles can be cloned and shared between a signal handler and the
// goroutines that wait for it.
//
// Unlike a native Go channel, a [Channel] never blocks the sender, reports a
// terminal error instead of hanging when the other side is gone, and keeps
// the sending and receiving capability bundled in one cloneable handle.
package handoff

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

var (
	// ErrPoisoned is returned by every operation on a channel whose lock was
	// held by a goroutine that panicked or exited inside a critical section.
	ErrPoisoned = errors.New("handoff: channel lock poisoned")
	// ErrNoReceivers is returned by Send when every receive capability has
	// been released, so the value could never be consumed.
	ErrNoReceivers = errors.New("handoff: no receivers remain")
	// ErrNoSenders is returned by Receive and TryReceive when every send
	// capability has been released and the queue is empty. It is terminal.
	ErrNoSenders = errors.New("handoff: no senders remain")
	// ErrHandleClosed is returned when a handle is used after releasing the
	// capability the operation needs.
	ErrHandleClosed = errors.New("handoff: handle closed")
)

// ///////////////////////////////////////////////
// Shared Queue
// ///////////////////////////////////////////////

// queue is the state shared by every handle of one channel.
type queue[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	// buf is a ring buffer; head indexes the oldest item and n counts items.
	buf  []T
	head int
	n    int

	senders   int
	receivers int
	poisoned  bool
}

const minCapacity = 8

// push appends v at the tail, growing the ring when full.
func (q *queue[T]) push(v T) {
	if q.n == len(q.buf) {
		size := max(minCapacity, 2*len(q.buf))
		grown := make([]T, size)
		for i := range q.n {
			grown[i] = q.buf[(q.head+i)%len(q.buf)]
		}
		q.buf = grown
		q.head = 0
	}
	q.buf[(q.head+q.n)%len(q.buf)] = v
	q.n++
}

// pop removes and returns the oldest item. The caller checks q.n > 0.
func (q *queue[T]) pop() T {
	var zero T
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return v
}

// locked runs fn with the queue lock held. A panic or Goexit inside fn
// poisons the queue and wakes every blocked receiver before the lock is
// released; the panic keeps propagating to the caller.
func (q *queue[T]) locked(fn func() error) (err error) {
	q.mu.Lock()
	if q.poisoned {
		q.mu.Unlock()
		return ErrPoisoned
	}
	completed := false
	defer func() {
		if !completed {
			q.poisoned = true
			q.cond.Broadcast()
		}
		q.mu.Unlock()
	}()
	err = fn()
	completed = true
	return err
}

// release drops one send and/or receive reference. It runs even on a
// poisoned queue so that counts stay accurate.
func (q *queue[T]) release(send, recv bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if send {
		q.senders--
		if q.senders == 0 {
			// Receivers parked in Wait must observe the terminal state.
			q.cond.Broadcast()
		}
	}
	if recv {
		q.receivers--
		// A receiver may be parked on the handle that just gave up its
		// receive capability.
		q.cond.Broadcast()
	}
}

// ///////////////////////////////////////////////
// Handle Capabilities
// ///////////////////////////////////////////////

// caps records which capabilities a handle still holds. It lives apart from
// the handle so the runtime cleanup registered for an unreachable handle can
// release them without keeping the handle alive.
type caps struct {
	send atomic.Bool
	recv atomic.Bool
}

// releaser is implemented by *queue[T]; it lets the cleanup function stay
// non-generic over the handle.
type releaser interface {
	release(send, recv bool)
}

func releaseAll(c *caps, q releaser) {
	send := c.send.Swap(false)
	recv := c.recv.Swap(false)
	if send || recv {
		q.release(send, recv)
	}
}

// ///////////////////////////////////////////////
// Channel
// ///////////////////////////////////////////////

// Channel is one handle on a shared FIFO queue. Every handle created by
// [New] or [Channel.Clone] refers to the same queue and lock.
//
// A handle holds a send capability, a receive capability, or both. The
// queue reports [ErrNoReceivers] once no open handle can receive and
// [ErrNoSenders] once no open handle can send and nothing is pending.
// Handles must be released with [Channel.Close] (or the narrower
// [Channel.CloseSend] / [Channel.CloseReceive]); a handle that becomes
// unreachable while still open is released by a runtime cleanup.
//
// Send is safe to call from a signal handler registered through the
// signals package: it takes the queue lock only for the short critical
// section needed to append, and never waits for a receiver.
type Channel[T any] struct {
	q    *queue[T]
	caps *caps
}

// New creates a channel and returns its first handle, holding both the send
// and the receive capability.
func New[T any]() *Channel[T] {
	q := &queue[T]{senders: 1, receivers: 1}
	q.cond = sync.NewCond(&q.mu)
	return newHandle(q, true, true)
}

func newHandle[T any](q *queue[T], send, recv bool) *Channel[T] {
	c := &Channel[T]{q: q, caps: &caps{}}
	c.caps.send.Store(send)
	c.caps.recv.Store(recv)
	runtime.AddCleanup(c, func(cp *caps) { releaseAll(cp, q) }, c.caps)
	return c
}

// Clone returns a new handle on the same queue holding the same
// capabilities as c. Cloning a fully closed handle yields a closed handle.
func (c *Channel[T]) Clone() *Channel[T] {
	c.q.mu.Lock()
	send := c.caps.send.Load()
	recv := c.caps.recv.Load()
	if send {
		c.q.senders++
	}
	if recv {
		c.q.receivers++
	}
	c.q.mu.Unlock()
	return newHandle(c.q, send, recv)
}

// Close releases both capabilities held by this handle. It is idempotent.
func (c *Channel[T]) Close() {
	releaseAll(c.caps, c.q)
}

// CloseSend releases only the send capability, turning c into a receive-only
// handle. It is idempotent.
func (c *Channel[T]) CloseSend() {
	if c.caps.send.Swap(false) {
		c.q.release(true, false)
	}
}

// CloseReceive releases only the receive capability, turning c into a
// send-only handle. It is idempotent.
func (c *Channel[T]) CloseReceive() {
	if c.caps.recv.Swap(false) {
		c.q.release(false, true)
	}
}

// Send appends v to the tail of the queue and wakes at most one blocked
// receiver. It returns [ErrNoReceivers] when no handle can ever receive v.
func (c *Channel[T]) Send(v T) error {
	if !c.caps.send.Load() {
		return ErrHandleClosed
	}
	return c.q.locked(func() error {
		if c.q.receivers == 0 {
			return ErrNoReceivers
		}
		c.q.push(v)
		c.q.cond.Signal()
		return nil
	})
}

// Receive blocks until an item is available and returns the oldest one. It
// returns [ErrNoSenders] once every send capability is released and the
// queue is empty, including when that happens while Receive is waiting.
// Releasing the receive capability of c while Receive waits on it makes
// Receive return [ErrHandleClosed].
func (c *Channel[T]) Receive() (T, error) {
	var v T
	if !c.caps.recv.Load() {
		return v, ErrHandleClosed
	}
	err := c.q.locked(func() error {
		for c.q.n == 0 {
			if c.q.senders == 0 {
				return ErrNoSenders
			}
			c.q.cond.Wait()
			if c.q.poisoned {
				return ErrPoisoned
			}
			if !c.caps.recv.Load() {
				return ErrHandleClosed
			}
		}
		v = c.q.pop()
		return nil
	})
	return v, err
}

// TryReceive returns the oldest item without waiting. ok is false when the
// queue is empty but senders remain. The terminal condition is reported as
// [ErrNoSenders], as for [Channel.Receive].
func (c *Channel[T]) TryReceive() (v T, ok bool, err error) {
	if !c.caps.recv.Load() {
		return v, false, ErrHandleClosed
	}
	err = c.q.locked(func() error {
		if c.q.n == 0 {
			if c.q.senders == 0 {
				return ErrNoSenders
			}
			return nil
		}
		v = c.q.pop()
		ok = true
		return nil
	})
	return v, ok, err
}

// Drain removes pending items in FIFO order and passes each to fn, stopping
// early when fn returns false. It never waits for new items and reports how
// many items were handed to fn. fn runs with the queue lock held and must not
// use this channel; a panic in fn poisons the channel.
func (c *Channel[T]) Drain(fn func(T) bool) (int, error) {
	if !c.caps.recv.Load() {
		return 0, ErrHandleClosed
	}
	count := 0
	err := c.q.locked(func() error {
		for c.q.n > 0 {
			v := c.q.pop()
			count++
			if !fn(v) {
				break
			}
		}
		return nil
	})
	return count, err
}

// Len reports the number of pending items.
func (c *Channel[T]) Len() (int, error) {
	n := 0
	err := c.q.locked(func() error {
		n = c.q.n
		return nil
	})
	return n, err
}
