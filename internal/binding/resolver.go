package binding

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/roach88/haybind/internal/engine"
	"github.com/roach88/haybind/internal/haystack"
)

// attempt is one resolution lifecycle. Only the controller's current
// attempt may commit to its cell.
type attempt struct {
	seq   int64
	token *Token
}

// Resolver is the one-shot controller: it resolves a query once per
// dependency change and keeps the result in its Cell.
//
// All fields below the cell are owned by the engine goroutine.
type Resolver struct {
	eng    *engine.Engine
	cell   *Cell
	logger *slog.Logger

	key     string
	refresh uint64
	cur     *attempt
	closed  bool

	// Inputs of the latest Resolve, replayed by Refresh.
	lastCtx  context.Context
	lastFn   QueryFunc
	lastDeps string
}

// NewResolver returns a resolver running on eng. Its cell starts loading.
func NewResolver(eng *engine.Engine) *Resolver {
	return &Resolver{
		eng:    eng,
		cell:   NewCell(),
		logger: eng.Logger().With("component", "resolver"),
	}
}

// Resolve starts a new attempt running fn when deps (or the environment
// carried by ctx) differ from the previous call, and does nothing
// otherwise. deps are compared by value.
//
// fn runs on its own goroutine with a context that ignores ctx's
// cancellation: superseded reads finish but their results are discarded.
// Thread-safe: may be called from any goroutine.
func (r *Resolver) Resolve(ctx context.Context, fn QueryFunc, deps ...any) {
	depsKey := dependencyKey(EnvironmentFrom(ctx), deps)
	r.eng.Post(func() {
		if r.closed {
			return
		}
		r.lastCtx, r.lastFn, r.lastDeps = ctx, fn, depsKey
		key := depsKey + "/" + uitoa(r.refresh)
		if key == r.key && r.cur != nil {
			return
		}
		r.key = key
		r.start()
	})
}

// ResolveQuery resolves q through the client of ctx's environment.
func (r *Resolver) ResolveQuery(ctx context.Context, q Query) {
	env := EnvironmentFrom(ctx)
	fn := Func(env, q)
	text := q.Text()
	r.Resolve(ctx, func(ctx context.Context) (haystack.Grid, error) {
		g, err := fn(ctx)
		if err != nil {
			return nil, newResolutionError(text, err)
		}
		return g, nil
	}, q)
}

// Refresh forces a new attempt with the latest query function even though
// no dependency changed. Does nothing before the first Resolve.
func (r *Resolver) Refresh() {
	r.eng.Post(func() {
		if r.closed || r.lastFn == nil {
			return
		}
		r.refresh++
		r.key = r.lastDeps + "/" + uitoa(r.refresh)
		r.start()
	})
}

// Close tears down the current attempt. Later calls to Resolve and
// Refresh are ignored.
func (r *Resolver) Close() {
	r.eng.Post(func() {
		if r.closed {
			return
		}
		r.closed = true
		r.teardown()
	})
}

// State returns the latest committed state.
func (r *Resolver) State() State {
	return r.cell.Read()
}

// Changed signals after one or more commits.
func (r *Resolver) Changed() <-chan struct{} {
	return r.cell.Trigger().Changed()
}

// Cell returns the resolver's result cell.
func (r *Resolver) Cell() *Cell {
	return r.cell
}

// start supersedes the current attempt and launches a new one.
// CRITICAL: Called only on the engine goroutine.
func (r *Resolver) start() {
	r.teardown()

	a := &attempt{seq: r.eng.Clock().Next(), token: NewToken()}
	r.cur = a
	if !r.cell.Read().IsLoading {
		r.cell.Commit(a.token, func(s *State) { s.IsLoading = true })
	}
	r.logger.Debug("attempt started", "seq", a.seq)

	fn := r.lastFn
	ioCtx := context.WithoutCancel(r.lastCtx)
	r.eng.Go(func() engine.Task {
		data, err := runQuery(ioCtx, fn)
		return func() { r.settle(a, data, err) }
	})
}

// settle commits the outcome of a if it is still current.
func (r *Resolver) settle(a *attempt, data haystack.Grid, err error) {
	committed := r.cell.Commit(a.token, func(s *State) {
		if err != nil {
			s.Err = newResolutionError("", err)
		} else {
			s.Data = data
			s.Err = nil
		}
		s.CompletedCount++
		s.IsLoading = false
	})
	if !committed {
		r.logger.Debug("discarded superseded result", "seq", a.seq, "error", err)
		return
	}
	r.logger.Debug("attempt settled", "seq", a.seq, "rows", data.Len(), "error", err)
}

// teardown cancels the current attempt and resets the cell's loading flag
// and error without a rerender.
func (r *Resolver) teardown() {
	if r.cur == nil {
		return
	}
	r.cur.token.Cancel()
	r.cur = nil
	r.cell.reset()
}

// runQuery calls fn, turning a panic into an error.
func runQuery(ctx context.Context, fn QueryFunc) (data haystack.Grid, err error) {
	defer func() {
		if p := recover(); p != nil {
			data = nil
			err = &ResolutionError{Code: ErrCodeQueryPanic, Message: fmt.Sprint(p)}
		}
	}()
	data, err = fn(ctx)
	if err == nil && data == nil {
		data = haystack.EmptyGrid()
	}
	return data, err
}

func uitoa(n uint64) string {
	return strconv.FormatUint(n, 10)
}
