package engine

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Engine is the single-writer event loop every binding runs on.
//
// Bindings keep all of their mutable state (result cells, attempts,
// subscription handles) on the engine goroutine. Work that blocks, such as
// a server read or opening a subscription, runs on its own goroutine via
// Go, and its continuation is posted back to the loop. Between two tasks
// nothing else touches binding state, which gives the cooperative,
// statement-atomic scheduling model bindings are written against.
//
// Thread-safety model:
//   - Post(), Do(), Flush(), Settle(), Go(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Do(), Flush(), Settle(): must NOT be called from a task (deadlock)
//
// INVARIANTS:
//   - Tasks run one at a time in FIFO order
//   - A panicking task is logged and the loop keeps running
type Engine struct {
	queue  *taskQueue
	clock  *Clock
	labels LabelGenerator
	logger *slog.Logger

	inflight atomic.Int64 // goroutines started by Go that have not posted yet

	stopOnce sync.Once
	done     chan struct{} // closed when Run returns
	running  atomic.Bool
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithLogger sets the logger for task failures and lifecycle events.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithLabelGenerator sets the generator used by NewLabel.
// Default: UUIDv7Generator.
func WithLabelGenerator(g LabelGenerator) Option {
	return func(e *Engine) {
		e.labels = g
	}
}

// WithClock sets the attempt clock. Used by tests to start at a known seq.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine. Call Run on a dedicated goroutine before posting
// work that needs to complete.
func New(opts ...Option) *Engine {
	e := &Engine{
		queue:  newTaskQueue(),
		clock:  NewClock(),
		labels: UUIDv7Generator{},
		logger: slog.Default(),
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Post submits a task to run on the engine goroutine.
// Thread-safe: may be called from any goroutine, including from a task.
//
// Returns false if the engine has been stopped; the task will never run.
func (e *Engine) Post(t Task) bool {
	return e.queue.Enqueue(t)
}

// Go runs work on a new goroutine and posts the continuation it returns
// (if any) back to the loop. Settle waits for such work to finish.
//
// If the engine stops before the continuation is posted, the continuation
// is dropped.
func (e *Engine) Go(work func() Task) {
	e.inflight.Add(1)
	go func() {
		// Post before decrementing so Settle never observes zero in-flight
		// work with the continuation still unposted.
		defer e.inflight.Add(-1)
		if next := work(); next != nil {
			e.Post(next)
		}
	}()
}

// Do posts fn and waits for it to run.
//
// Returns a RuntimeError with ErrCodeStopped if the engine stops first, or
// ctx.Err() if ctx is done first (fn may still run later in that case).
func (e *Engine) Do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !e.Post(func() {
		defer close(ran)
		fn()
	}) {
		return errStopped
	}

	select {
	case <-ran:
		return nil
	case <-e.done:
		// Run drains the queue before closing done when stopped via Stop,
		// so fn may have run after all.
		select {
		case <-ran:
			return nil
		default:
			return errStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every task posted before the call has run.
func (e *Engine) Flush(ctx context.Context) error {
	return e.Do(ctx, func() {})
}

// settlePoll is how often Settle re-checks for outstanding work.
const settlePoll = time.Millisecond

// Settle waits until the loop is idle and no Go work is outstanding.
//
// Work that never finishes (a read blocked on a test gate, for example)
// keeps Settle waiting until ctx is done. Subscription polls are not
// tracked; a change pushed after Settle returns runs later as usual.
func (e *Engine) Settle(ctx context.Context) error {
	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()

	for {
		if err := e.Flush(ctx); err != nil {
			return err
		}
		// inflight first: a goroutine posts before it decrements, so a
		// zero here means its continuation is already visible to Idle.
		if e.inflight.Load() == 0 && e.queue.Idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Clock returns the engine's attempt clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// NewLabel returns a fresh label, prefixed as "<prefix>-<label>" when
// prefix is non-empty.
// Thread-safe: delegates to the label generator.
func (e *Engine) NewLabel(prefix string) string {
	label := e.labels.Generate()
	if prefix == "" {
		return label
	}
	return prefix + "-" + label
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// QueueLen returns the number of tasks waiting to run.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run starts the single-writer event loop.
// Blocks until ctx is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine, at most once.
//
// ERROR HANDLING: A panicking task is recovered and logged with its stack,
// and the loop moves on to the next task. Bindings never lose their loop
// because one continuation misbehaved.
//
// After Stop, tasks already queued are drained before Run returns. After
// ctx is cancelled, queued tasks are abandoned.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		panic("engine: Run called twice")
	}
	defer close(e.done)

	e.logger.Debug("engine starting")

	for {
		if t, ok := e.queue.TryDequeue(); ok {
			e.runTask(t)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Debug("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed, which
			// makes this case fire immediately on every iteration.
			if e.queue.Len() == 0 && e.stopped() {
				e.logger.Debug("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the task queue, which will cause Run() to return once drained.
func (e *Engine) Stop() {
	e.stopOnce.Do(e.queue.Close)
}

// Done returns a channel closed when Run has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) stopped() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed
}

// runTask executes one task, recovering panics.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) runTask(t Task) {
	defer e.queue.Done()
	defer func() {
		if r := recover(); r != nil {
			err := newTaskPanic(r, e.clock.Current())
			e.logger.Error("task failed",
				"error", err,
				"seq", err.Seq,
				"stack", string(debug.Stack()),
			)
		}
	}()
	t()
}
