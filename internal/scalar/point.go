package scalar

import (
	"context"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/engine"
	"github.com/roach88/haybind/internal/haystack"
)

// CurValTag holds a point's current value.
const CurValTag = "curVal"

// Point tracks the curVal of a point record.
type Point struct {
	*live
}

// NewPoint subscribes to rec's id through the client of ctx's
// environment.
func NewPoint(ctx context.Context, eng *engine.Engine, rec haystack.Dict, opts ...Option) *Point {
	return &Point{live: newLive(ctx, eng, rec, KindPoint, opts)}
}

// Value returns the live curVal, the input record's curVal while loading,
// or nil once the point is gone.
func (p *Point) Value() haystack.Value {
	return p.value(CurValTag)
}

// Entity returns the live point record.
func (p *Point) Entity() haystack.Dict {
	return p.entity()
}

// Writer returns the point's write function.
func (p *Point) Writer() WriteFunc {
	return p.write
}

func (p *Point) write(ctx context.Context, v haystack.Value, opts client.WriteOptions) error {
	if !p.hasID {
		return p.noTarget("")
	}
	opts = mergeWrite(opts, p.opts.write, p.env)
	if _, err := p.env.Client.PointWrite(ctx, p.id, v, opts); err != nil {
		return binding.NewWriteError(p.id.ID, "", err)
	}
	p.logger.Debug("point written", "id", p.id.ID, "level", opts.Level, "who", opts.Who)

	// Releasing a level exposes a lower one we do not know yet.
	if v == nil {
		return nil
	}
	p.echo(ctx, map[string]haystack.Value{CurValTag: v})
	return nil
}
