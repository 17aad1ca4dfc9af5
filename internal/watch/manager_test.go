package watch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/haybind/internal/haystack"
	"github.com/roach88/haybind/internal/testutil"
	"github.com/roach88/haybind/internal/watch"
)

func TestManager_TracksOpenHandles(t *testing.T) {
	fake := testutil.NewFakeClient(p1, p2)
	m := watch.NewManager(fake, watch.WithClock(testutil.NewManualClock(time.Unix(0, 0))))
	ctx := context.Background()

	a, err := m.Make(ctx, "a", refs("p1"))
	require.NoError(t, err)
	b, err := m.Make(ctx, "b", refs("p2"))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Open())
	assert.Equal(t, 2, m.Opened())
	assert.Equal(t, 1, a.Snapshot().Len())

	require.NoError(t, a.Close(ctx))
	assert.Equal(t, 1, m.Open())
	assert.Equal(t, 2, m.Opened())

	require.NoError(t, m.CloseAll(ctx))
	assert.Zero(t, m.Open())
	require.NoError(t, b.Close(ctx), "closing twice is harmless")
}

func TestManager_MakeFailureNamesLabel(t *testing.T) {
	fake := testutil.NewFakeClient(p1)
	m := watch.NewManager(fake)

	_, err := m.Make(context.Background(), "ahu-1", refs("missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"ahu-1"`)
	assert.ErrorIs(t, err, testutil.ErrNotFound)
	assert.Zero(t, m.Open())
	assert.Zero(t, m.Opened())
}

func TestManager_PollAll(t *testing.T) {
	fake := testutil.NewFakeClient(p1, p2)
	m := watch.NewManager(fake, watch.WithClock(testutil.NewManualClock(time.Unix(0, 0))))
	ctx := context.Background()

	a, err := m.Make(ctx, "a", refs("p1"))
	require.NoError(t, err)
	b, err := m.Make(ctx, "b", refs("p2"))
	require.NoError(t, err)
	defer m.CloseAll(ctx)

	var changed []string
	a.OnChange(func() { changed = append(changed, "a") })
	b.OnChange(func() { changed = append(changed, "b") })

	fake.SetRecord(p2.With("curVal", haystack.Number{Val: 8}))
	require.NoError(t, m.PollAll(ctx))
	assert.Equal(t, []string{"b"}, changed, "callbacks ran before PollAll returned")
	assert.Equal(t, haystack.Number{Val: 8}, b.Snapshot()[0]["curVal"])

	require.NoError(t, m.PollAll(ctx))
	assert.Equal(t, []string{"b"}, changed)
}
