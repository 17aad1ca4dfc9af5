package binding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/engine"
	"github.com/roach88/haybind/internal/haystack"
	"github.com/roach88/haybind/internal/testutil"
)

var (
	p1 = haystack.NewDict("id", "@p1", "point", "m:", "curVal", "n:4", "dis", "Point 1")
	p2 = haystack.NewDict("id", "@p2", "point", "m:", "curVal", "n:7", "dis", "Point 2")
	e1 = haystack.NewDict("id", "@e1", "equip", "m:")
)

// startEngine runs an engine for the duration of the test.
func startEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng := engine.New(engine.WithLabelGenerator(testutil.NewSequentialLabels("gen")))
	ctx, cancel := context.WithCancel(context.Background())
	go eng.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-eng.Done()
	})
	return eng
}

// envContext returns a context whose environment uses c.
func envContext(c client.Client, opts ...EnvOption) context.Context {
	opts = append([]EnvOption{WithEnvironmentID("test")}, opts...)
	return WithEnvironment(context.Background(), NewEnvironment(c, opts...))
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// settle waits until no task or I/O is outstanding.
func settle(t *testing.T, eng *engine.Engine) {
	t.Helper()
	require.NoError(t, eng.Settle(waitCtx(t)))
}

// flush waits until every task posted so far has run.
func flush(t *testing.T, eng *engine.Engine) {
	t.Helper()
	require.NoError(t, eng.Flush(waitCtx(t)))
}

// waitState polls until cond holds for the cell's state.
func waitState(t *testing.T, c *Cell, cond func(State) bool) State {
	t.Helper()
	require.Eventually(t, func() bool { return cond(c.Read()) }, 5*time.Second, time.Millisecond)
	return c.Read()
}

// recorder captures every committed state in order.
type recorder struct {
	mu     sync.Mutex
	states []State
}

func record(c *Cell) *recorder {
	r := &recorder{}
	c.Trigger().Listen(func(uint64) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.states = append(r.states, c.Read())
	})
	return r
}

func (r *recorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) loading() []bool {
	var out []bool
	for _, s := range r.all() {
		out = append(out, s.IsLoading)
	}
	return out
}

// nextCalls collects n gated calls keyed by Arg; goroutines issue calls
// in no particular order.
func nextCalls(t *testing.T, f *testutil.FakeClient, n int) map[string]*testutil.Call {
	t.Helper()
	out := make(map[string]*testutil.Call, n)
	for i := 0; i < n; i++ {
		c := f.Next(t)
		out[c.Arg] = c
	}
	return out
}

func grid(rows ...haystack.Dict) haystack.Grid {
	return haystack.Grid(rows)
}
