package scalar

import (
	"context"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/engine"
	"github.com/roach88/haybind/internal/haystack"
)

// Tag tracks one tag of a record. Writes go to WriteTag, which defaults
// to the tag read.
type Tag struct {
	*live
	readTag  string
	writeTag string
}

// NewTag subscribes to rec's id and reads readTag from it.
func NewTag(ctx context.Context, eng *engine.Engine, rec haystack.Dict, readTag string, opts ...Option) *Tag {
	t := &Tag{live: newLive(ctx, eng, rec, KindTag, opts), readTag: readTag}
	t.writeTag = t.opts.writeTag
	if t.writeTag == "" {
		t.writeTag = readTag
	}
	return t
}

// ReadTag returns the tag the value is read from.
func (t *Tag) ReadTag() string { return t.readTag }

// WriteTag returns the tag writes go to.
func (t *Tag) WriteTag() string { return t.writeTag }

func (t *Tag) Value() haystack.Value {
	return t.value(t.readTag)
}

func (t *Tag) Entity() haystack.Dict {
	return t.entity()
}

func (t *Tag) Writer() WriteFunc {
	return t.write
}

func (t *Tag) write(ctx context.Context, v haystack.Value, _ client.WriteOptions) error {
	if !t.hasID {
		return t.noTarget(t.writeTag)
	}
	if _, err := t.env.Client.TagCommit(ctx, t.id, t.writeTag, v); err != nil {
		return binding.NewWriteError(t.id.ID, t.writeTag, err)
	}

	echoed := v
	if echoed == nil {
		echoed = haystack.Remove{}
	}
	t.echo(ctx, map[string]haystack.Value{t.readTag: echoed, t.writeTag: echoed})
	return nil
}
