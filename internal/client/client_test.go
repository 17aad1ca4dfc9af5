package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/haybind/internal/haystack"
)

func TestUnavailable(t *testing.T) {
	ctx := context.Background()
	var c Client = Unavailable{}

	_, err := c.ReadByFilter(ctx, "point")
	assert.ErrorIs(t, err, ErrNoClient)

	_, err = c.ReadByIDs(ctx, []haystack.Ref{{ID: "p1"}})
	assert.ErrorIs(t, err, ErrNoClient)

	_, err = c.Evaluate(ctx, "readAll(point)")
	assert.ErrorIs(t, err, ErrNoClient)

	_, err = c.PointWrite(ctx, haystack.Ref{ID: "p1"}, haystack.Number{Val: 1}, WriteOptions{})
	assert.ErrorIs(t, err, ErrNoClient)

	_, err = c.TagCommit(ctx, haystack.Ref{ID: "p1"}, "dis", nil)
	assert.ErrorIs(t, err, ErrNoClient)

	h, err := c.Subscriptions().Make(ctx, "label", nil)
	assert.ErrorIs(t, err, ErrNoClient)
	assert.Nil(t, h)
}
