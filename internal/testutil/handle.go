package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/haystack"
)

// FakeHandle is a client.Handle driven by the test: Push delivers a
// change, Fail reports a poll error. It counts Close calls so tests can
// assert a handle is released exactly once.
//
// Thread-safety: FakeHandle is safe for concurrent use.
type FakeHandle struct {
	mu       sync.Mutex
	label    string
	ids      []haystack.Ref
	interval time.Duration
	snapshot haystack.Grid
	onChange []func()
	onError  []func(error)
	closes   int
	closeErr error
}

var _ client.Handle = (*FakeHandle)(nil)

// NewFakeHandle returns an open handle with an initial snapshot.
func NewFakeHandle(label string, ids []haystack.Ref, snapshot haystack.Grid) *FakeHandle {
	return &FakeHandle{label: label, ids: ids, snapshot: snapshot}
}

func (h *FakeHandle) PollInterval() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interval
}

func (h *FakeHandle) SetPollInterval(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interval = d
}

func (h *FakeHandle) OnChange(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

func (h *FakeHandle) OnError(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = append(h.onError, fn)
}

func (h *FakeHandle) Snapshot() haystack.Grid {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closes > 0 {
		panic("testutil: Snapshot on closed handle " + h.label)
	}
	return h.snapshot
}

func (h *FakeHandle) Close(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	return h.closeErr
}

// Push replaces the snapshot and runs change callbacks.
func (h *FakeHandle) Push(g haystack.Grid) {
	h.mu.Lock()
	h.snapshot = g
	fns := append([]func(){}, h.onChange...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Fail runs error callbacks.
func (h *FakeHandle) Fail(err error) {
	h.mu.Lock()
	fns := append([]func(error){}, h.onError...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

// SetCloseError makes Close return err.
func (h *FakeHandle) SetCloseError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeErr = err
}

// Label returns the label the handle was opened with.
func (h *FakeHandle) Label() string { return h.label }

// IDs returns the watched ids.
func (h *FakeHandle) IDs() []haystack.Ref { return h.ids }

// CloseCount returns how many times Close was called.
func (h *FakeHandle) CloseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

// Listeners returns the number of registered change callbacks.
func (h *FakeHandle) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.onChange)
}
