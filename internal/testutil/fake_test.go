package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/haystack"
)

func sampleRecords() []haystack.Dict {
	return []haystack.Dict{
		haystack.NewDict("id", "@p1", "point", "m:", "curVal", "n:4"),
		haystack.NewDict("id", "@p2", "point", "m:", "curVal", "n:7"),
		haystack.NewDict("id", "@e1", "equip", "m:"),
	}
}

func TestFakeClient_Reads(t *testing.T) {
	ctx := context.Background()
	f := NewFakeClient(sampleRecords()...)

	g, err := f.ReadByFilter(ctx, "point")
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())

	g, err = f.Evaluate(ctx, "readAll(equip)")
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())

	_, err = f.Evaluate(ctx, "bogus()")
	assert.ErrorIs(t, err, ErrNotFound)

	g, err = f.ReadByIDs(ctx, []haystack.Ref{{ID: "p2"}, {ID: "p1"}})
	require.NoError(t, err)
	assert.Equal(t, []haystack.Ref{{ID: "p2"}, {ID: "p1"}}, g.IDs())

	_, err = f.ReadByIDs(ctx, []haystack.Ref{{ID: "nope"}})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Len(t, f.Calls(), 5)
	assert.Len(t, f.CallsOf(OpEvaluate), 2)
}

func TestFakeClient_Writes(t *testing.T) {
	ctx := context.Background()
	f := NewFakeClient(sampleRecords()...)

	_, err := f.PointWrite(ctx, haystack.Ref{ID: "p1"}, haystack.Number{Val: 5}, client.WriteOptions{Level: 8})
	require.NoError(t, err)
	row, _ := f.Records().Find("p1")
	assert.Equal(t, haystack.Number{Val: 5}, row["curVal"])

	_, err = f.TagCommit(ctx, haystack.Ref{ID: "p1"}, "curVal", nil)
	require.NoError(t, err)
	row, _ = f.Records().Find("p1")
	assert.False(t, row.Has("curVal"))

	assert.Equal(t, 8, f.CallsOf(OpPointWrite)[0].Opts.Level)
}

func TestFakeClient_Gated(t *testing.T) {
	f := NewFakeClient()
	f.Gate()

	done := make(chan haystack.Grid)
	go func() {
		g, _ := f.ReadByFilter(context.Background(), "point")
		done <- g
	}()

	call := f.Next(t)
	assert.Equal(t, OpReadByFilter, call.Op)
	assert.Equal(t, "point", call.Arg)

	want := haystack.Grid{haystack.NewDict("id", "@x")}
	call.Return(want, nil)
	assert.Equal(t, want, <-done)
	f.NoPending(t)
}

func TestFakeClient_GatedContextCancel(t *testing.T) {
	f := NewFakeClient()
	f.Gate()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		_, err := f.Evaluate(ctx, "x")
		errCh <- err
	}()
	f.Next(t)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestFakeHandle(t *testing.T) {
	f := NewFakeClient(sampleRecords()...)
	h, err := f.Subscriptions().Make(context.Background(), "lbl", []haystack.Ref{{ID: "p1"}})
	require.NoError(t, err)
	fh := h.(*FakeHandle)

	changes := 0
	var lastErr error
	h.OnChange(func() { changes++ })
	h.OnError(func(err error) { lastErr = err })

	fh.Push(haystack.Grid{haystack.NewDict("id", "@p1", "curVal", "n:9")})
	assert.Equal(t, 1, changes)
	assert.Equal(t, haystack.Number{Val: 9}, h.Snapshot()[0]["curVal"])

	boom := errors.New("boom")
	fh.Fail(boom)
	assert.Equal(t, boom, lastErr)

	require.NoError(t, h.Close(context.Background()))
	assert.Equal(t, 1, fh.CloseCount())
	assert.Panics(t, func() { h.Snapshot() }, "closed handles must not be read")
	assert.Equal(t, "lbl", fh.Label())
	assert.Len(t, f.Handles(), 1)
}
