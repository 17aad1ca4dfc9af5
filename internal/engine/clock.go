package engine

import "sync/atomic"

// Clock hands out the seq stamped on each binding attempt. A larger seq
// means the attempt started later; traces record seqs instead of times.
//
// Only the engine goroutine advances it in practice, but reads from other
// goroutines (panic reports, tests) are safe.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first Next is 1.
func NewClock() *Clock { return NewClockAt(0) }

// NewClockAt returns a clock whose first Next is start+1.
func NewClockAt(start int64) *Clock {
	var c Clock
	c.seq.Store(start)
	return &c
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 { return c.seq.Add(1) }

// Current is the last seq handed out, or the start value if none.
func (c *Clock) Current() int64 { return c.seq.Load() }
