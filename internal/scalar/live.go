package scalar

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/engine"
	"github.com/roach88/haybind/internal/haystack"
)

// live is the subscription shared by Point and Tag.
type live struct {
	eng    *engine.Engine
	w      *binding.Watcher
	env    *binding.Environment
	rec    haystack.Dict
	id     haystack.Ref
	hasID  bool
	opts   options
	logger *slog.Logger

	// written holds accepted writes that had no live row to land on. They
	// patch the input record shown while the first subscription loads.
	mu      sync.Mutex
	written map[string]haystack.Value
}

// newLive watches rec's id. A record without an id is never subscribed
// and keeps reporting itself.
func newLive(ctx context.Context, eng *engine.Engine, rec haystack.Dict, kind string, opts []Option) *live {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	l := &live{
		eng:    eng,
		w:      binding.NewWatcher(eng),
		env:    binding.EnvironmentFrom(ctx),
		rec:    rec,
		opts:   o,
		logger: eng.Logger().With("component", "scalar", "kind", kind),
	}
	l.id, l.hasID = rec.ID()
	if !l.hasID {
		l.logger.Warn("record has no id, not subscribing", "dis", rec.Dis())
		return l
	}
	l.w.Watch(ctx, binding.WatchRequest{
		Query:        binding.ByIDs{IDs: []haystack.Ref{l.id}},
		Label:        o.label,
		PollInterval: o.poll,
	})
	return l
}

// entity returns the live row, or the input record while loading.
func (l *live) entity() haystack.Dict {
	s := l.w.State()
	if l.hasID {
		if row, ok := s.Data.Find(l.id.ID); ok {
			l.mu.Lock()
			l.written = nil
			l.mu.Unlock()
			return row
		}
	}
	if s.IsLoading {
		return l.fallback()
	}
	return nil
}

func (l *live) fallback() haystack.Dict {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := l.rec
	for tag, v := range l.written {
		rec = rec.With(tag, v)
	}
	return rec
}

func (l *live) value(tag string) haystack.Value {
	return l.entity().Get(tag)
}

// echo shows an accepted write before the next poll. With no live row
// yet the write patches the loading fallback instead. The write already
// succeeded, so a failed echo is only logged.
func (l *live) echo(ctx context.Context, tags map[string]haystack.Value) {
	err := l.eng.Do(ctx, func() {
		if l.w.Echo(l.id, tags) {
			return
		}
		l.mu.Lock()
		if l.written == nil {
			l.written = make(map[string]haystack.Value, len(tags))
		}
		for tag, v := range tags {
			l.written[tag] = v
		}
		l.mu.Unlock()
		if l.w.State().IsLoading {
			l.w.Cell().Trigger().Bump()
		}
		l.logger.Debug("echo found no live row, patched fallback", "id", l.id.ID)
	})
	if err != nil {
		l.logger.Debug("echo skipped", "id", l.id.ID, "error", err)
	}
}

func (l *live) noTarget(tag string) error {
	return &binding.WriteError{
		Code:    binding.ErrCodeNoTarget,
		Message: "record has no id",
		Tag:     tag,
	}
}

func (l *live) State() binding.State      { return l.w.State() }
func (l *live) Changed() <-chan struct{}  { return l.w.Changed() }
func (l *live) Watcher() *binding.Watcher { return l.w }
func (l *live) Close()                    { l.w.Close() }
