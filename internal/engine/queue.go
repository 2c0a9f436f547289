package engine

import (
	"context"
	"sync"

	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/store"
)

// Call is a request to run one method. The engine assigns seq and id.
type Call struct {
	RequestID string       // Optional; generated when empty
	From      string       // 0x-prefixed sender address
	Method    ir.MethodRef
	Args      ir.IRObject
}

// outcome is what the Run loop hands back to a waiting submitter.
type outcome struct {
	entry store.Entry
	err   error
}

// request is a queued call plus the channel its submitter waits on.
type request struct {
	ctx  context.Context
	call Call
	done chan outcome // buffered, size 1
}

// requestQueue is a thread-safe FIFO queue of submitted calls.
//
// The queue is unbounded so Submit never blocks on a slow Run loop; the
// submitter blocks on its own done channel instead.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type requestQueue struct {
	mu       sync.Mutex
	requests []*request
	closed   bool
	signal   chan struct{} // Signals availability (buffered, size 1)
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		requests: make([]*request, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a request to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *requestQueue) Enqueue(r *request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.requests = append(q.requests, r)

	// Non-blocking: a buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front request without blocking.
// Returns (nil, false) if the queue is empty.
func (q *requestQueue) TryDequeue() (*request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return nil, false
	}

	r := q.requests[0]
	// Nil out the slot so the backing array does not retain the request.
	q.requests[0] = nil

	if len(q.requests) == 1 {
		q.requests = q.requests[:0]
	} else {
		q.requests = q.requests[1:]
	}

	return r, true
}

// Wait returns a channel that signals when requests may be available.
// The channel is closed when the queue is closed.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Close stops accepting requests and wakes any waiter. It returns the
// requests still queued so the caller can fail them.
func (q *requestQueue) Close() []*request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.signal)

	pending := q.requests
	q.requests = nil
	return pending
}
