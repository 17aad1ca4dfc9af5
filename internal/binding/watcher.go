package binding

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/engine"
	"github.com/roach88/haybind/internal/haystack"
)

// WatchRequest describes a live binding.
type WatchRequest struct {
	Query Query

	// Label names the subscription. Empty uses the filter or expression
	// text, or a generated "watch-<uuid>" for id queries.
	Label string

	// PollInterval is applied to the handle. Non-positive uses the
	// environment default.
	PollInterval time.Duration
}

var errNoHandle = errors.New("subscription returned no handle")

// watchAttempt is one watch lifecycle: an optional resolution phase, then
// a subscription phase owning at most one handle.
//
// The handle is guarded by mu rather than owned by the loop: a stopped
// engine drops continuations, and the handle must still be closed once.
type watchAttempt struct {
	attempt
	ctx     context.Context
	env     *Environment
	label   string
	interim bool // the resolution phase committed rows

	mu       sync.Mutex
	handle   client.Handle
	released bool
}

// adopt hands h to the attempt. It returns false once the attempt has
// been released; the caller then owns h and must close it.
func (a *watchAttempt) adopt(h client.Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return false
	}
	a.handle = h
	return true
}

// detach marks the attempt released and returns its handle, if any.
// Only the first call returns a handle.
func (a *watchAttempt) detach() client.Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.released = true
	h := a.handle
	a.handle = nil
	return h
}

// snapshot reads the attempt's handle while it is still attached, so a
// released handle is never read.
func (a *watchAttempt) snapshot() (haystack.Grid, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handle == nil {
		return nil, false
	}
	return a.handle.Snapshot(), true
}

// Watcher is the live controller: it resolves a query to a set of ids,
// subscribes to them and re-commits the grid on every pushed change.
//
// CompletedCount increments once per attempt: when the subscription opens,
// when resolution or subscription fails, or when the query matches no
// records. UpdateCount increments on every push.
type Watcher struct {
	eng    *engine.Engine
	cell   *Cell
	logger *slog.Logger

	key     string
	refresh uint64
	cur     *watchAttempt
	closed  bool

	// live mirrors cur for Close, which may run while the loop is gone.
	mu      sync.Mutex
	live    *watchAttempt
	closing atomic.Bool

	lastCtx context.Context
	lastReq WatchRequest
	lastKey string
}

// NewWatcher returns a watcher running on eng. Its cell starts loading.
func NewWatcher(eng *engine.Engine) *Watcher {
	return &Watcher{
		eng:    eng,
		cell:   NewCell(),
		logger: eng.Logger().With("component", "watcher"),
	}
}

// Watch starts a new attempt when req (or ctx's environment) differs from
// the previous call, and does nothing otherwise.
// Thread-safe: may be called from any goroutine.
func (w *Watcher) Watch(ctx context.Context, req WatchRequest) {
	env := EnvironmentFrom(ctx)
	depsKey := dependencyKey(env, []any{req.Query, req.Label, req.PollInterval})
	w.eng.Post(func() {
		if w.closed || w.closing.Load() {
			return
		}
		w.lastCtx, w.lastReq, w.lastKey = ctx, req, depsKey
		key := depsKey + "/" + uitoa(w.refresh)
		if key == w.key && w.cur != nil {
			return
		}
		w.key = key
		w.start()
	})
}

// Refresh re-runs the latest watch from scratch: the old handle is closed
// and a new one opened.
func (w *Watcher) Refresh() {
	w.eng.Post(func() {
		if w.closed || w.closing.Load() || w.lastCtx == nil {
			return
		}
		w.refresh++
		w.key = w.lastKey + "/" + uitoa(w.refresh)
		w.start()
	})
}

// Close tears down the current attempt and releases its handle. Later
// calls to Watch and Refresh are ignored.
//
// The attempt is cancelled and its handle released right away, so a
// handle is closed even when the engine stops before the posted cleanup
// runs. A handle still being created is closed by its creator.
func (w *Watcher) Close() {
	w.mu.Lock()
	first := w.closing.CompareAndSwap(false, true)
	a := w.live
	w.live = nil
	w.mu.Unlock()
	if !first {
		return
	}
	if a != nil {
		a.token.Cancel()
		w.release(a)
	}
	w.eng.Post(func() {
		w.closed = true
		w.teardown()
	})
}

// State returns the latest committed state.
func (w *Watcher) State() State {
	return w.cell.Read()
}

// Changed signals after one or more commits.
func (w *Watcher) Changed() <-chan struct{} {
	return w.cell.Trigger().Changed()
}

// Cell returns the watcher's result cell.
func (w *Watcher) Cell() *Cell {
	return w.cell
}

// Echo patches tag of the record id in the current data, as if a push had
// delivered it. Used by writers to show a written value before the next
// poll. Returns false when there is no live attempt or no such row.
// CRITICAL: Called only on the engine goroutine.
func (w *Watcher) Echo(id haystack.Ref, tags map[string]haystack.Value) bool {
	a := w.cur
	if a == nil || a.token.Cancelled() {
		return false
	}
	data := w.cell.Read().Data
	for tag, v := range tags {
		patched, ok := data.Patch(id.ID, tag, v)
		if !ok {
			return false
		}
		data = patched
	}
	return w.cell.Commit(a.token, func(s *State) { s.Data = data })
}

// Engine returns the engine the watcher runs on.
func (w *Watcher) Engine() *engine.Engine {
	return w.eng
}

// start supersedes the current attempt and launches a new one.
// CRITICAL: Called only on the engine goroutine.
func (w *Watcher) start() {
	w.teardown()

	env := EnvironmentFrom(w.lastCtx)
	req := w.lastReq
	a := &watchAttempt{
		attempt: attempt{seq: w.eng.Clock().Next(), token: NewToken()},
		ctx:     context.WithoutCancel(w.lastCtx),
		env:     env,
		label:   w.label(req),
	}
	w.mu.Lock()
	if w.closing.Load() {
		w.mu.Unlock()
		a.token.Cancel()
		return
	}
	w.live = a
	w.mu.Unlock()
	w.cur = a
	if !w.cell.Read().IsLoading {
		w.cell.Commit(a.token, func(s *State) { s.IsLoading = true })
	}
	w.logger.Debug("watch attempt started", "seq", a.seq, "label", a.label)

	if q, ok := req.Query.(ByIDs); ok {
		w.subscribe(a, append([]haystack.Ref(nil), q.IDs...), req.PollInterval)
		return
	}

	fn := Func(env, req.Query)
	text := ""
	if req.Query != nil {
		text = req.Query.Text()
	}
	w.eng.Go(func() engine.Task {
		data, err := runQuery(a.ctx, fn)
		return func() { w.resolved(a, text, data, err, req.PollInterval) }
	})
}

// resolved finishes the resolution phase: the interim grid is committed
// so it renders while the subscription opens.
func (w *Watcher) resolved(a *watchAttempt, text string, data haystack.Grid, err error, poll time.Duration) {
	if a.token.Cancelled() {
		w.logger.Debug("discarded superseded resolution", "seq", a.seq)
		return
	}
	if err != nil {
		w.cell.Commit(a.token, func(s *State) {
			s.Err = newResolutionError(text, err)
			s.CompletedCount++
			s.IsLoading = false
		})
		return
	}

	ids := data.IDs()
	if len(ids) == 0 {
		w.cell.Commit(a.token, func(s *State) {
			s.Data = haystack.EmptyGrid()
			s.Err = nil
			s.CompletedCount++
			s.IsLoading = false
		})
		return
	}

	a.interim = w.cell.Commit(a.token, func(s *State) {
		s.Data = data
		s.IsLoading = false
	})
	w.subscribe(a, ids, poll)
}

// subscribe starts the subscription phase.
func (w *Watcher) subscribe(a *watchAttempt, ids []haystack.Ref, poll time.Duration) {
	if len(ids) == 0 {
		w.cell.Commit(a.token, func(s *State) {
			s.Data = haystack.EmptyGrid()
			s.Err = nil
			s.CompletedCount++
			s.IsLoading = false
		})
		return
	}

	subs := a.env.Client.Subscriptions()
	w.eng.Go(func() engine.Task {
		h, err := subs.Make(a.ctx, a.label, ids)
		if h != nil && (err != nil || !a.adopt(h)) {
			w.closeHandle(a, h)
			h = nil
		}
		return func() { w.opened(a, h, err, poll) }
	})
}

// opened finishes handle creation. A handle created for an attempt that
// was superseded meanwhile is released immediately and never used.
//
// h is nil when Make failed or the attempt was released first; in both
// cases the creating goroutine has already closed any handle it got.
func (w *Watcher) opened(a *watchAttempt, h client.Handle, err error, poll time.Duration) {
	if err == nil && h == nil && !a.token.Cancelled() {
		err = errNoHandle
	}
	if err != nil {
		committed := w.cell.Commit(a.token, func(s *State) {
			s.Err = newSubscriptionError(ErrCodeSubscribeFailed, a.label, err)
			s.CompletedCount++
			s.IsLoading = false
		})
		if !committed {
			w.logger.Debug("discarded superseded subscribe failure", "seq", a.seq, "error", err)
		}
		return
	}
	if a.token.Cancelled() {
		w.logger.Debug("releasing handle of superseded attempt", "seq", a.seq, "label", a.label)
		w.release(a)
		return
	}

	h.SetPollInterval(a.env.pollInterval(poll))
	h.OnChange(func() {
		w.eng.Post(func() { w.pushed(a) })
	})
	h.OnError(func(err error) {
		w.eng.Post(func() {
			w.cell.Commit(a.token, func(s *State) {
				s.Err = newSubscriptionError(ErrCodePollFailed, a.label, err)
			})
		})
	})

	snap, ok := a.snapshot()
	if !ok {
		return
	}
	w.cell.Commit(a.token, func(s *State) {
		// An empty first snapshot keeps this attempt's interim rows; it
		// never keeps rows left over from an earlier attempt.
		if !a.interim || len(snap) > 0 {
			s.Data = snap
		}
		s.Err = nil
		s.CompletedCount++
		s.IsLoading = false
	})
	w.logger.Debug("subscription opened", "seq", a.seq, "label", a.label, "poll", h.PollInterval())
}

// pushed re-commits the handle's snapshot after a change notification.
func (w *Watcher) pushed(a *watchAttempt) {
	if a.token.Cancelled() {
		return
	}
	snap, ok := a.snapshot()
	if !ok {
		return
	}
	w.cell.Commit(a.token, func(s *State) {
		s.Data = snap
		s.Err = nil
		s.UpdateCount++
	})
}

// teardown cancels the current attempt, resets the cell and releases the
// attempt's handle. A handle still being created is closed by the
// goroutine creating it.
func (w *Watcher) teardown() {
	a := w.cur
	if a == nil {
		return
	}
	a.token.Cancel()
	w.cur = nil
	w.mu.Lock()
	if w.live == a {
		w.live = nil
	}
	w.mu.Unlock()
	w.cell.reset()
	w.release(a)
}

// release detaches the attempt's handle and closes it off the loop.
// Later calls find nothing to close.
func (w *Watcher) release(a *watchAttempt) {
	h := a.detach()
	if h == nil {
		return
	}
	w.eng.Go(func() engine.Task {
		w.closeHandle(a, h)
		return nil
	})
}

// closeHandle closes h on the calling goroutine.
func (w *Watcher) closeHandle(a *watchAttempt, h client.Handle) {
	if err := h.Close(a.ctx); err != nil {
		w.logger.Warn("closing subscription failed", "seq", a.seq, "label", a.label, "error", err)
	}
}

// label picks the subscription label for req.
func (w *Watcher) label(req WatchRequest) string {
	if req.Label != "" {
		return req.Label
	}
	switch q := req.Query.(type) {
	case ByFilter:
		if q.Filter != "" {
			return q.Filter
		}
	case ByExpr:
		if q.Expr != "" {
			return q.Expr
		}
	}
	return w.eng.NewLabel("watch")
}
