// Package watch implements polling subscriptions: a Handle re-reads a
// fixed set of records on an interval and notifies listeners when the
// result changes.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/haystack"
)

// DefaultPollInterval is the interval of a handle until SetPollInterval is
// called.
const DefaultPollInterval = 5 * time.Second

// ErrClosed is returned by Poll on a closed handle.
var ErrClosed = errors.New("watch: handle closed")

// Reader is the read a handle polls with.
type Reader interface {
	ReadByIDs(ctx context.Context, ids []haystack.Ref) (haystack.Grid, error)
}

// Option configures a Handle or Manager.
type Option func(*options)

type options struct {
	clock    Clock
	logger   *slog.Logger
	interval time.Duration
}

// WithClock sets the clock tickers come from. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger for poll failures. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithInterval sets the initial poll interval.
func WithInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

func buildOptions(opts []Option) options {
	o := options{clock: SystemClock{}, logger: slog.Default(), interval: DefaultPollInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Handle is a polling subscription over a fixed id set.
//
// A poll that reads a grid with a different canonical key from the last
// snapshot replaces the snapshot and runs every OnChange callback. Failed
// polls run OnError callbacks and keep the previous snapshot. Callbacks
// run on the handle's poll goroutine, one poll at a time.
//
// Thread-safety: all methods are safe for concurrent use.
type Handle struct {
	reader Reader
	label  string
	ids    []haystack.Ref
	clock  Clock
	logger *slog.Logger

	mu       sync.Mutex
	interval time.Duration
	snapshot haystack.Grid
	key      string
	onChange []func()
	onError  []func(error)
	closed   bool
	polls    uint64

	pollMu sync.Mutex // serializes polls

	intervals chan time.Duration // latest requested interval, size 1
	stop      chan struct{}
	done      chan struct{}
}

var _ client.Handle = (*Handle)(nil)

// Open reads ids once, so the snapshot is populated before Open returns,
// then starts polling. Fails when the initial read fails.
func Open(ctx context.Context, r Reader, label string, ids []haystack.Ref, opts ...Option) (*Handle, error) {
	o := buildOptions(opts)
	initial, err := r.ReadByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		reader:    r,
		label:     label,
		ids:       append([]haystack.Ref(nil), ids...),
		clock:     o.clock,
		logger:    o.logger.With("watch", label),
		interval:  o.interval,
		snapshot:  initial,
		key:       haystack.GridKey(initial),
		intervals: make(chan time.Duration, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go h.loop(context.WithoutCancel(ctx))
	return h, nil
}

// Label returns the label the handle was opened with.
func (h *Handle) Label() string { return h.label }

// IDs returns the watched ids.
func (h *Handle) IDs() []haystack.Ref { return h.ids }

// PollInterval returns the current poll interval.
func (h *Handle) PollInterval() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interval
}

// SetPollInterval changes the poll interval. Non-positive values are
// ignored.
func (h *Handle) SetPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	h.mu.Lock()
	if h.closed || d == h.interval {
		h.mu.Unlock()
		return
	}
	h.interval = d
	h.mu.Unlock()

	// Keep only the latest request.
	for {
		select {
		case h.intervals <- d:
			return
		default:
		}
		select {
		case <-h.intervals:
		default:
		}
	}
}

// OnChange registers a callback run after each poll that saw a change.
func (h *Handle) OnChange(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// OnError registers a callback run after each failed poll.
func (h *Handle) OnError(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = append(h.onError, fn)
}

// Snapshot returns the last successfully polled grid.
func (h *Handle) Snapshot() haystack.Grid {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot
}

// Polls returns the number of completed polls, successful or not.
func (h *Handle) Polls() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.polls
}

// Poll reads the watched records now and notifies on change. The poll
// loop calls it on every tick; tests and the CLI may call it directly.
// Returns whether the snapshot changed.
func (h *Handle) Poll(ctx context.Context) (bool, error) {
	h.pollMu.Lock()
	defer h.pollMu.Unlock()

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return false, ErrClosed
	}

	g, err := h.reader.ReadByIDs(ctx, h.ids)

	h.mu.Lock()
	h.polls++
	if err != nil {
		fns := append([]func(error){}, h.onError...)
		h.mu.Unlock()
		h.logger.Warn("poll failed", "error", err)
		for _, fn := range fns {
			fn(err)
		}
		return false, err
	}
	key := haystack.GridKey(g)
	if key == h.key {
		h.mu.Unlock()
		return false, nil
	}
	h.snapshot, h.key = g, key
	fns := append([]func(){}, h.onChange...)
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return true, nil
}

// Close stops polling. Only the first call has an effect; it waits for an
// in-progress poll to finish or ctx to end.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	close(h.stop)
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Handle) loop(ctx context.Context) {
	defer close(h.done)

	ticker := h.clock.NewTicker(h.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case d := <-h.intervals:
			ticker.Reset(d)
		case <-ticker.C():
			// Errors reach OnError callbacks inside Poll.
			_, _ = h.Poll(ctx)
		}
	}
}
