package engine

import "sync/atomic"

// Clock is the monotonic logical clock that orders transactions.
//
// Every transaction is stamped with a strictly increasing seq from this
// clock, so ordering never depends on wall time and replay reproduces it.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// In practice only the Run loop calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
// Used to resume after the last stored seq.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
