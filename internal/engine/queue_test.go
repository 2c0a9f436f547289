package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequest(id string) *request {
	return &request{
		ctx:  context.Background(),
		call: Call{RequestID: id},
		done: make(chan outcome, 1),
	}
}

func TestQueue_FIFO(t *testing.T) {
	q := newRequestQueue()
	for _, id := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(newTestRequest(id)))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		r, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, r.call.RequestID)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestQueue_SignalCoalesces(t *testing.T) {
	q := newRequestQueue()
	q.Enqueue(newTestRequest("a"))
	q.Enqueue(newTestRequest("b"))

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a pending signal")
	}

	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce into one")
	default:
	}
}

func TestQueue_CloseReturnsPending(t *testing.T) {
	q := newRequestQueue()
	q.Enqueue(newTestRequest("a"))
	q.Enqueue(newTestRequest("b"))

	pending := q.Close()
	assert.Len(t, pending, 2)
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Enqueue(newTestRequest("c")))

	// Closed signal channel never blocks.
	select {
	case <-q.Wait():
	default:
		t.Fatal("closed queue should wake waiters")
	}

	assert.Nil(t, q.Close(), "second close is a no-op")
}
