package scalar

import (
	"context"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/engine"
	"github.com/roach88/haybind/internal/haystack"
)

// Scalar is a single derived value.
type Scalar interface {
	// Value returns the current value.
	Value() haystack.Value
	// Entity returns the record the value comes from, or nil.
	Entity() haystack.Dict
	// Writer returns the write function, or nil when the value is not
	// writable.
	Writer() WriteFunc
	State() binding.State
	Changed() <-chan struct{}
	Close()
}

var (
	_ Scalar = (*Point)(nil)
	_ Scalar = (*Tag)(nil)
	_ Scalar = Static{}
)

// Dispatch derives a Scalar from v. A Dict whose _resolve metadata names
// a point or tag resolution is tracked live; anything else, including a
// record with unreadable metadata, is returned as a Static.
func Dispatch(ctx context.Context, eng *engine.Engine, v haystack.Value) Scalar {
	rec, ok := v.(haystack.Dict)
	if !ok {
		return Static{V: v}
	}
	res, err := ParseResolution(rec)
	if err != nil {
		eng.Logger().Warn("ignoring resolution metadata", "dis", rec.Dis(), "error", err)
		return Static{V: v}
	}
	switch r := res.(type) {
	case PointResolution:
		return NewPoint(ctx, eng, rec, r.options()...)
	case TagResolution:
		return NewTag(ctx, eng, rec, r.ReadTag, r.options()...)
	}
	return Static{V: v}
}

// Static is a value passed through unchanged: no entity, no writer.
type Static struct {
	V haystack.Value
}

func (s Static) Value() haystack.Value  { return s.V }
func (Static) Entity() haystack.Dict    { return nil }
func (Static) Writer() WriteFunc        { return nil }
func (Static) Changed() <-chan struct{} { return nil }
func (Static) Close()                   {}

// State reports a settled, empty result.
func (Static) State() binding.State {
	return binding.State{Data: haystack.EmptyGrid()}
}
