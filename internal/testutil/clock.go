package testutil

import (
	"sync"
	"time"

	"github.com/roach88/haybind/internal/watch"
)

// ManualClock is a watch.Clock that only moves when the test advances it.
//
// Tickers fire during Advance, at most once per call, the way a real
// ticker drops ticks a slow reader misses. This makes poll timing
// deterministic: a poll happens exactly when the test says so.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*ManualTicker
}

var _ watch.Clock = (*ManualClock)(nil)

// NewManualClock returns a clock reading start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTicker returns a ticker with period d.
func (c *ManualClock) NewTicker(d time.Duration) watch.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &ManualTicker{
		c:      make(chan time.Time, 1),
		period: d,
		next:   c.now.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the clock forward by d and fires every ticker whose next
// tick falls within the new time.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*ManualTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.fire(now)
	}
}

// Tickers returns the number of tickers that have not been stopped.
func (c *ManualClock) Tickers() int {
	c.mu.Lock()
	tickers := append([]*ManualTicker(nil), c.tickers...)
	c.mu.Unlock()

	n := 0
	for _, t := range tickers {
		if !t.Stopped() {
			n++
		}
	}
	return n
}

// ManualTicker is the ticker handed out by ManualClock.
type ManualTicker struct {
	mu      sync.Mutex
	c       chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

func (t *ManualTicker) C() <-chan time.Time { return t.c }

// Reset changes the period; the next tick is one period after the last
// scheduled one was due.
func (t *ManualTicker) Reset(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next = t.next.Add(d - t.period)
	t.period = d
	t.stopped = false
}

func (t *ManualTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Stopped reports whether Stop was called.
func (t *ManualTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Period returns the current period.
func (t *ManualTicker) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

func (t *ManualTicker) fire(now time.Time) {
	t.mu.Lock()
	if t.stopped || now.Before(t.next) {
		t.mu.Unlock()
		return
	}
	for !now.Before(t.next) {
		t.next = t.next.Add(t.period)
	}
	t.mu.Unlock()

	select {
	case t.c <- now:
	default:
	}
}
