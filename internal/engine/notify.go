package engine

import (
	"sync"
	"time"
)

// Notification describes one successfully routed record.
//
// Only successful routings are announced. Not-ready and already-routed
// outcomes are silent, and failures go to the operational log, never to
// the notification sink.
type Notification struct {
	AttemptID   string
	SourceRow   int
	ContentKey  string
	Destination string
	DestRow     int
	When        time.Time
}

// Notifier is the sink for routed-record notifications.
//
// Notify must never block and must never fail: a notification is a
// side effect, not part of the routing outcome. Implementations that
// can fall behind should drop notifications rather than stall the
// engine.
type Notifier interface {
	Notify(n Notification)
}

// Discard drops every notification. It is the engine default when no
// sink is configured.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(Notification) {}

// defaultQueueLimit bounds a Queue. Notifications are advisory, so
// overflow drops the oldest entry instead of blocking the engine.
const defaultQueueLimit = 1024

// Queue is a bounded thread-safe FIFO of notifications.
//
// The engine publishes into the queue from inside routing attempts;
// consumers (the watch loop, the HTTP server) drain it from their own
// goroutines.
//
// The queue uses a channel for signaling to enable context-aware
// waiting in consumer loops (prevents goroutine hangs on context
// cancellation).
type Queue struct {
	mu     sync.Mutex
	notes  []Notification
	limit  int
	closed bool
	signal chan struct{} // Signals availability (buffered, size 1)
}

// NewQueue creates an empty notification queue with the default limit.
func NewQueue() *Queue {
	return &Queue{
		notes:  make([]Notification, 0, 64),
		limit:  defaultQueueLimit,
		signal: make(chan struct{}, 1),
	}
}

// Notify adds a notification to the back of the queue.
// Thread-safe, non-blocking: when the queue is full the oldest entry is
// dropped, and after Close the notification is discarded.
func (q *Queue) Notify(n Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	if len(q.notes) >= q.limit {
		q.notes[0] = Notification{}
		q.notes = q.notes[1:]
	}
	q.notes = append(q.notes, n)

	// Signal availability (non-blocking - buffer of 1 coalesces multiple signals)
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryNext attempts to dequeue without blocking.
// Returns (Notification{}, false) if the queue is empty.
func (q *Queue) TryNext() (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.notes) == 0 {
		return Notification{}, false
	}

	n := q.notes[0]

	// Zero the slot so the string fields can be collected before the
	// underlying array is reallocated.
	q.notes[0] = Notification{}

	if len(q.notes) == 1 {
		q.notes = q.notes[:0]
	} else {
		q.notes = q.notes[1:]
	}

	return n, true
}

// Wait returns a channel that signals when notifications may be
// available. Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryNext
//	}
func (q *Queue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.notes)
}

// Close signals that no more notifications will be published.
// Wakes any blocked waiters by closing the signal channel.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return // Already closed
	}

	q.closed = true
	close(q.signal) // Wakes all waiters
}
