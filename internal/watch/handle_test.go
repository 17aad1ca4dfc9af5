package watch_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/haybind/internal/haystack"
	"github.com/roach88/haybind/internal/testutil"
	"github.com/roach88/haybind/internal/watch"
)

var (
	p1 = haystack.NewDict("id", "@p1", "point", "m:", "curVal", "n:4")
	p2 = haystack.NewDict("id", "@p2", "point", "m:", "curVal", "n:7")
)

func refs(ids ...string) []haystack.Ref {
	out := make([]haystack.Ref, len(ids))
	for i, id := range ids {
		out[i] = haystack.Ref{ID: id}
	}
	return out
}

// flakyReader fails while failing is set.
type flakyReader struct {
	*testutil.FakeClient
	failing atomic.Bool
}

func (r *flakyReader) ReadByIDs(ctx context.Context, ids []haystack.Ref) (haystack.Grid, error) {
	if r.failing.Load() {
		return nil, errors.New("connection refused")
	}
	return r.FakeClient.ReadByIDs(ctx, ids)
}

func openHandle(t *testing.T, r watch.Reader, opts ...watch.Option) *watch.Handle {
	t.Helper()
	h, err := watch.Open(context.Background(), r, "test", refs("p1", "p2"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close(context.Background()) })
	return h
}

func TestOpen_ReadsInitialSnapshot(t *testing.T) {
	fake := testutil.NewFakeClient(p1, p2)
	h := openHandle(t, fake, watch.WithClock(testutil.NewManualClock(time.Unix(0, 0))))

	assert.Equal(t, haystack.Grid{p1, p2}, h.Snapshot())
	assert.Equal(t, "test", h.Label())
	assert.Equal(t, refs("p1", "p2"), h.IDs())
	assert.Equal(t, watch.DefaultPollInterval, h.PollInterval())
	assert.Zero(t, h.Polls())
}

func TestOpen_InitialReadFailure(t *testing.T) {
	fake := testutil.NewFakeClient(p1)
	_, err := watch.Open(context.Background(), fake, "test", refs("p1", "missing"))
	assert.ErrorIs(t, err, testutil.ErrNotFound)
}

func TestHandle_PollDetectsChanges(t *testing.T) {
	fake := testutil.NewFakeClient(p1, p2)
	h := openHandle(t, fake, watch.WithClock(testutil.NewManualClock(time.Unix(0, 0))))

	var changes atomic.Int32
	h.OnChange(func() { changes.Add(1) })

	changed, err := h.Poll(context.Background())
	require.NoError(t, err)
	assert.False(t, changed, "same rows are not a change")

	updated := p2.With("curVal", haystack.Number{Val: 8})
	fake.SetRecord(updated)
	changed, err = h.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, haystack.Grid{p1, updated}, h.Snapshot())
	assert.Equal(t, int32(1), changes.Load())
	assert.Equal(t, uint64(2), h.Polls())
}

func TestHandle_PollFailureKeepsSnapshot(t *testing.T) {
	r := &flakyReader{FakeClient: testutil.NewFakeClient(p1, p2)}
	h := openHandle(t, r, watch.WithClock(testutil.NewManualClock(time.Unix(0, 0))))

	var mu sync.Mutex
	var errs []error
	h.OnError(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	})

	r.failing.Store(true)
	changed, err := h.Poll(context.Background())
	require.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, haystack.Grid{p1, p2}, h.Snapshot())

	mu.Lock()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "connection refused")
	mu.Unlock()

	r.failing.Store(false)
	changed, err = h.Poll(context.Background())
	require.NoError(t, err)
	assert.False(t, changed, "recovery alone is not a change")
}

func TestHandle_TicksDrivePolls(t *testing.T) {
	clock := testutil.NewManualClock(time.Unix(0, 0))
	fake := testutil.NewFakeClient(p1, p2)
	h := openHandle(t, fake, watch.WithClock(clock))

	changed := make(chan struct{}, 1)
	h.OnChange(func() { changed <- struct{}{} })
	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, time.Second, time.Millisecond)

	clock.Advance(time.Second)
	assert.Never(t, func() bool { return h.Polls() > 0 }, 20*time.Millisecond, time.Millisecond)

	fake.SetRecord(p1.With("curVal", haystack.Number{Val: 5}))
	clock.Advance(4 * time.Second)
	require.Eventually(t, func() bool { return h.Polls() == 1 }, time.Second, time.Millisecond)
	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("change not delivered")
	}
}

func TestHandle_SetPollInterval(t *testing.T) {
	fake := testutil.NewFakeClient(p1, p2)
	h := openHandle(t, fake,
		watch.WithClock(testutil.NewManualClock(time.Unix(0, 0))),
		watch.WithInterval(time.Minute))

	assert.Equal(t, time.Minute, h.PollInterval())
	h.SetPollInterval(2 * time.Second)
	assert.Equal(t, 2*time.Second, h.PollInterval())
	h.SetPollInterval(0)
	h.SetPollInterval(-time.Second)
	assert.Equal(t, 2*time.Second, h.PollInterval())
}

func TestHandle_Close(t *testing.T) {
	clock := testutil.NewManualClock(time.Unix(0, 0))
	fake := testutil.NewFakeClient(p1, p2)
	h, err := watch.Open(context.Background(), fake, "test", refs("p1"), watch.WithClock(clock))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, h.Close(context.Background()))
	require.NoError(t, h.Close(context.Background()))
	assert.True(t, h.Closed())
	assert.Zero(t, clock.Tickers(), "poll loop stopped its ticker")

	_, err = h.Poll(context.Background())
	assert.ErrorIs(t, err, watch.ErrClosed)

	clock.Advance(time.Hour)
	assert.Zero(t, h.Polls())
}
