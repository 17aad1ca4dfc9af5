package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/haybind/internal/haystack"
)

// testClock is a settable wall clock for expiry tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createSeededStore returns a store holding the site/equip/point fixture.
func createSeededStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := createTestStore(t, opts...)
	require.NoError(t, s.Put(context.Background(), fixture()...))
	return s
}

func fixture() []haystack.Dict {
	return []haystack.Dict{
		haystack.NewDict("id", "@site", "site", "m:", "dis", "HQ", "area", "n:5000 ft²"),
		haystack.NewDict("id", "@ahu", "equip", "m:", "ahu", "m:", "siteRef", "@site", "dis", "AHU-1"),
		haystack.NewDict("id", "@temp", "point", "m:", "sensor", "m:", "temp", "m:",
			"equipRef", "@ahu", "curVal", "n:72.5 °F", "dis", "Zone Temp"),
		haystack.NewDict("id", "@sp", "point", "m:", "writable", "m:", "sp", "m:",
			"equipRef", "@ahu", "relinquishDefault", "n:70 °F", "curVal", "n:70 °F", "dis", "Zone SP"),
	}
}

func ids(g haystack.Grid) []string {
	out := make([]string, 0, len(g))
	for _, rec := range g {
		if r, ok := rec.ID(); ok {
			out = append(out, r.ID)
		}
	}
	return out
}
