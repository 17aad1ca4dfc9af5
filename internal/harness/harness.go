package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/engine"
	"github.com/roach88/haybind/internal/haystack"
	"github.com/roach88/haybind/internal/scalar"
	"github.com/roach88/haybind/internal/store"
	"github.com/roach88/haybind/internal/testutil"
	"github.com/roach88/haybind/internal/watch"
)

// settleTimeout bounds the wait after each step.
const settleTimeout = 10 * time.Second

// Binding kinds recorded in snapshots.
const (
	KindResolve = "resolve"
	KindWatch   = "watch"
	KindPoint   = "point"
	KindTag     = "tag"
)

// bound is a binding opened by a step.
type bound struct {
	kind    string
	state   func() binding.State
	refresh func()
	close   func()
	scalar  scalar.Scalar
}

// Harness runs scenarios against a real store and engine.
// It runs with a manual watch clock so subscriptions only poll on poll
// steps, and sequential labels so generated watch labels are stable.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	ctx      context.Context
	bindings map[string]*bound
	logger   *slog.Logger
}

// Option configures a harness run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger of the engine and store. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh database in a temporary directory.
//
// Execution flow:
// 1. Open the store and seed records
// 2. Start the engine and build the environment
// 3. Execute steps, settling and snapshotting after each
// 4. Evaluate assertions
// 5. Close every binding
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	dir, err := os.MkdirTemp("", "haybind-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	clock := testutil.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	st, err := store.Open(filepath.Join(dir, "harness.db"),
		store.WithNow(clock.Now),
		store.WithLogger(cfg.logger),
		store.WithWatchOptions(watch.WithClock(clock)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	recs := make([]haystack.Dict, 0, len(scenario.Seed))
	for i, raw := range scenario.Seed {
		rec, err := haystack.DictFromNative(raw)
		if err != nil {
			return nil, fmt.Errorf("seed[%d]: %w", i, err)
		}
		recs = append(recs, rec)
	}
	if err := st.Put(context.Background(), recs...); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	eng := engine.New(
		engine.WithLogger(cfg.logger),
		engine.WithLabelGenerator(testutil.NewSequentialLabels("h")),
	)
	runCtx, cancel := context.WithCancel(context.Background())
	go eng.Run(runCtx)
	defer func() {
		cancel()
		<-eng.Done()
	}()

	env := binding.NewEnvironment(st, envOptions(scenario.Env)...)
	h := &Harness{
		store:    st,
		engine:   eng,
		ctx:      binding.WithEnvironment(context.Background(), env),
		bindings: make(map[string]*bound),
		logger:   cfg.logger.With("component", "harness", "scenario", scenario.Name),
	}
	defer h.closeAll()

	result := NewResult()
	for i, step := range scenario.Steps {
		stepErr := h.apply(step)
		if err := h.settle(); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
		snap := StepSnapshot{Step: i, Op: step.Op, Name: step.Name, Bindings: h.snapshot()}
		if stepErr != nil {
			var stepFail *stepError
			if !errors.As(stepErr, &stepFail) {
				return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, stepErr)
			}
			snap.Err = stepFail.code
		}
		result.Trace = append(result.Trace, snap)
		h.logger.Debug("step completed", "step", i, "op", step.Op, "name", step.Name)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func envOptions(spec EnvSpec) []binding.EnvOption {
	opts := []binding.EnvOption{
		binding.WithEnvironmentID("harness"),
		binding.WithOpsOnly(spec.OpsOnly),
	}
	if spec.PollInterval > 0 {
		opts = append(opts, binding.WithPollInterval(spec.PollInterval))
	}
	level := spec.WriteLevel
	if level == 0 {
		level = client.DefaultWriteLevel
	}
	return append(opts, binding.WithWriteDefaults(level, spec.Who))
}

// stepError is an expected step outcome recorded in the trace rather
// than aborting the run: a rejected write or a failed direct store call.
type stepError struct {
	code string
	err  error
}

func (e *stepError) Error() string { return e.code + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func (h *Harness) apply(step Step) error {
	ctx := h.ctx
	switch step.Op {
	case OpResolve:
		q, err := stepQuery(step)
		if err != nil {
			return err
		}
		r := binding.NewResolver(h.engine)
		r.ResolveQuery(ctx, q)
		return h.add(step.Name, &bound{kind: KindResolve, state: r.State, refresh: r.Refresh, close: r.Close})

	case OpWatch:
		q, err := stepQuery(step)
		if err != nil {
			return err
		}
		w := binding.NewWatcher(h.engine)
		w.Watch(ctx, binding.WatchRequest{Query: q, Label: step.Label, PollInterval: step.Poll})
		return h.add(step.Name, &bound{kind: KindWatch, state: w.State, refresh: w.Refresh, close: w.Close})

	case OpPoint, OpTag:
		rec, err := h.record(step.ID)
		if err != nil {
			return err
		}
		var opts []scalar.Option
		if step.Label != "" {
			opts = append(opts, scalar.WithLabel(step.Label))
		}
		if step.Poll > 0 {
			opts = append(opts, scalar.WithPollInterval(step.Poll))
		}
		var s scalar.Scalar
		var w *binding.Watcher
		kind := KindPoint
		if step.Op == OpTag {
			t := scalar.NewTag(ctx, h.engine, rec, step.Tag, opts...)
			s, w, kind = t, t.Watcher(), KindTag
		} else {
			p := scalar.NewPoint(ctx, h.engine, rec, opts...)
			s, w = p, p.Watcher()
		}
		return h.add(step.Name, &bound{kind: kind, state: s.State, refresh: w.Refresh, close: s.Close, scalar: s})

	case OpWrite:
		b, err := h.lookup(step.Name)
		if err != nil {
			return err
		}
		if b.scalar == nil {
			return fmt.Errorf("binding %q is not writable", step.Name)
		}
		v, err := stepValue(step.Value)
		if err != nil {
			return err
		}
		opts := client.WriteOptions{Level: step.Level, Who: step.Who, Duration: step.Duration}
		if err := b.scalar.Writer()(ctx, v, opts); err != nil {
			var we *binding.WriteError
			if errors.As(err, &we) {
				return &stepError{code: string(we.Code), err: err}
			}
			return err
		}
		return nil

	case OpCommit:
		v, err := stepValue(step.Value)
		if err != nil {
			return err
		}
		if _, err := h.store.TagCommit(ctx, ref(step.ID), step.Tag, v); err != nil {
			return &stepError{code: "COMMIT_FAILED", err: err}
		}
		return nil

	case OpStoreWrite:
		v, err := stepValue(step.Value)
		if err != nil {
			return err
		}
		opts := client.WriteOptions{Level: step.Level, Who: step.Who, Duration: step.Duration}
		if _, err := h.store.PointWrite(ctx, ref(step.ID), v, opts); err != nil {
			return &stepError{code: "WRITE_FAILED", err: err}
		}
		return nil

	case OpPoll:
		if err := h.store.Watches().PollAll(ctx); err != nil {
			return &stepError{code: "POLL_FAILED", err: err}
		}
		return nil

	case OpRefresh:
		b, err := h.lookup(step.Name)
		if err != nil {
			return err
		}
		b.refresh()
		return nil

	case OpClose:
		b, err := h.lookup(step.Name)
		if err != nil {
			return err
		}
		b.close()
		delete(h.bindings, step.Name)
		return nil
	}
	return fmt.Errorf("unknown op %q", step.Op)
}

func (h *Harness) add(name string, b *bound) error {
	if _, ok := h.bindings[name]; ok {
		b.close()
		return fmt.Errorf("binding %q already exists", name)
	}
	h.bindings[name] = b
	return nil
}

func (h *Harness) lookup(name string) (*bound, error) {
	b, ok := h.bindings[name]
	if !ok {
		return nil, fmt.Errorf("unknown binding %q", name)
	}
	return b, nil
}

func (h *Harness) record(id string) (haystack.Dict, error) {
	g, err := h.store.ReadByIDs(h.ctx, []haystack.Ref{ref(id)})
	if err != nil {
		return nil, err
	}
	return g[0], nil
}

func (h *Harness) settle() error {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	return h.engine.Settle(ctx)
}

// snapshot captures every open binding. Runs after settle, so no
// attempt is mid-flight.
func (h *Harness) snapshot() map[string]BindingSnapshot {
	out := make(map[string]BindingSnapshot, len(h.bindings))
	for name, b := range h.bindings {
		s := b.state()
		snap := BindingSnapshot{
			Kind:      b.kind,
			Loading:   s.IsLoading,
			Completed: s.CompletedCount,
			Updates:   s.UpdateCount,
			Rows:      rowIDs(s.Data),
			Error:     errorCode(s.Err),
		}
		if b.scalar != nil {
			snap.Value = b.scalar.Value()
		}
		out[name] = snap
	}
	return out
}

func (h *Harness) closeAll() {
	names := make([]string, 0, len(h.bindings))
	for name := range h.bindings {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		h.bindings[name].close()
	}
	if err := h.settle(); err != nil {
		h.logger.Warn("settle after close failed", "error", err)
	}
}

func stepQuery(step Step) (binding.Query, error) {
	switch {
	case len(step.IDs) > 0:
		ids := make([]haystack.Ref, len(step.IDs))
		for i, id := range step.IDs {
			ids[i] = ref(id)
		}
		return binding.ByIDs{IDs: ids}, nil
	case step.Filter != "":
		return binding.ByFilter{Filter: step.Filter}, nil
	case step.Expr != "":
		return binding.ByExpr{Expr: step.Expr}, nil
	}
	return nil, fmt.Errorf("%s %q: no query", step.Op, step.Name)
}

// stepValue converts a YAML value. An absent value stays nil.
func stepValue(v any) (haystack.Value, error) {
	if v == nil {
		return nil, nil
	}
	return haystack.FromNative(v)
}

// ref accepts "@id" and "id".
func ref(id string) haystack.Ref {
	if len(id) > 0 && id[0] == '@' {
		id = id[1:]
	}
	return haystack.Ref{ID: id}
}

func rowIDs(g haystack.Grid) []string {
	out := make([]string, 0, len(g))
	for _, row := range g {
		if r, ok := row.ID(); ok {
			out = append(out, r.ID)
		}
	}
	return out
}

// errorCode extracts the binding error code, or the message for errors
// without one.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var re *binding.ResolutionError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	var se *binding.SubscriptionError
	if errors.As(err, &se) {
		return string(se.Code)
	}
	var we *binding.WriteError
	if errors.As(err, &we) {
		return string(we.Code)
	}
	return err.Error()
}
