package binding

import (
	"sync"
	"sync/atomic"
)

// Trigger announces that a Cell changed. It is a monotonic version
// counter plus a coalescing signal: any number of bumps between two reads
// of Changed() produce a single wake-up.
type Trigger struct {
	version atomic.Uint64
	signal  chan struct{} // buffered, size 1

	mu        sync.Mutex
	listeners map[int]func(uint64)
	nextID    int
}

// NewTrigger returns a trigger at version 0.
func NewTrigger() *Trigger {
	return &Trigger{
		signal:    make(chan struct{}, 1),
		listeners: make(map[int]func(uint64)),
	}
}

// Bump increments the version, signals Changed and runs listeners.
// Listeners run synchronously on the caller's goroutine, which for cells
// is the engine goroutine.
func (t *Trigger) Bump() uint64 {
	v := t.version.Add(1)

	select {
	case t.signal <- struct{}{}:
	default:
	}

	t.mu.Lock()
	fns := make([]func(uint64), 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
	return v
}

// Version returns the number of bumps so far.
func (t *Trigger) Version() uint64 {
	return t.version.Load()
}

// Changed returns a channel that receives after one or more bumps.
func (t *Trigger) Changed() <-chan struct{} {
	return t.signal
}

// Listen registers fn to run on every bump. The returned function
// unregisters it.
func (t *Trigger) Listen(fn func(version uint64)) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.listeners, id)
	}
}
