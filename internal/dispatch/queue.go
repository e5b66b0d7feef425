// Package dispatch implements the bounded waiter queue and the Dispatcher
// goroutine that pairs waiting connect requests with completed outbound
// connections using Power-of-Two-Choices endpoint selection.
//
// Grounded on original_source/src/balancer/dispatchq.rs (the
// sendq/recvq split) and src/balancer/dispatcher.rs (init_connecting,
// select_endpoint), translated from Rust's Sink/Stream futures into Go
// channels driven by one long-lived dispatcher goroutine per destination,
// which is the natural Go rendering of "single-threaded cooperative
// multitasking per reactor" (spec.md §5).
package dispatch

import (
	"net"
	"sync"
)

// Waiter is a one-shot request for an outbound connection: the dispatcher
// delivers exactly one Result on Conn, or the channel is abandoned if the
// requester cancels (spec.md §3, "Waiter").
type Waiter struct {
	Conn chan Result
}

// Result is what a Waiter receives: either an established connection or a
// terminal error.
type Result struct {
	Conn net.Conn
	Err  error
}

// NewWaiter allocates a Waiter with a single-slot buffered channel so the
// dispatcher's send never blocks on a requester that has stopped listening.
func NewWaiter() *Waiter {
	return &Waiter{Conn: make(chan Result, 1)}
}

// Queue is the dispatch queue from spec.md §3-4.E: a bounded send-queue of
// buffered Waiters plus an unbounded recv-queue of claims from completed
// outbound connections, FIFO on both sides.
//
// Unlike the Rust original's cooperative poll-driven channelq/dispatchq
// pair, Queue is a mutex-guarded pair of FIFO slices: buffered waiters, and
// pending claims each represented by a one-slot channel. Offer rejects
// when the waiter slice is at capacity instead of blocking.
type Queue struct {
	mu       sync.Mutex
	capacity int
	waiters  []*Waiter
	claims   []chan *Waiter
}

func NewQueue(capacity int) *Queue {
	return &Queue{capacity: capacity}
}

// Offer appends w to the send-queue if there is room, immediately pairing it
// with a pending claim in FIFO order if one exists. Returns false
// (rejected) if the queue is at capacity.
func (q *Queue) Offer(w *Waiter) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.claims) > 0 {
		ch := q.claims[0]
		q.claims = q.claims[1:]
		ch <- w
		return true
	}

	if len(q.waiters) >= q.capacity {
		return false
	}
	q.waiters = append(q.waiters, w)
	return true
}

// Claim returns a channel that will receive the next buffered waiter, in
// FIFO order relative to other claims and to Offer's enqueue order.
func (q *Queue) Claim() <-chan *Waiter {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan *Waiter, 1)
	if len(q.waiters) > 0 {
		w := q.waiters[0]
		q.waiters = q.waiters[1:]
		ch <- w
		return ch
	}
	q.claims = append(q.claims, ch)
	return ch
}

// Len reports the current number of buffered waiters (for the waiters
// gauge).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

// AvailableCapacity reports how many more waiters Offer would currently
// accept.
func (q *Queue) AvailableCapacity() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity - len(q.waiters)
}
