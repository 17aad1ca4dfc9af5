package scalar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/engine"
	"github.com/roach88/haybind/internal/haystack"
	"github.com/roach88/haybind/internal/testutil"
)

// mockClient answers reads and subscriptions from a FakeClient and
// records writes as mock calls.
type mockClient struct {
	mock.Mock
	fake *testutil.FakeClient
}

var _ client.Client = (*mockClient)(nil)

func newMockClient(records ...haystack.Dict) *mockClient {
	return &mockClient{fake: testutil.NewFakeClient(records...)}
}

func (m *mockClient) ReadByFilter(ctx context.Context, text string) (haystack.Grid, error) {
	return m.fake.ReadByFilter(ctx, text)
}

func (m *mockClient) ReadByIDs(ctx context.Context, ids []haystack.Ref) (haystack.Grid, error) {
	return m.fake.ReadByIDs(ctx, ids)
}

func (m *mockClient) Evaluate(ctx context.Context, expr string) (haystack.Grid, error) {
	return m.fake.Evaluate(ctx, expr)
}

func (m *mockClient) Subscriptions() client.Subscriptions {
	return m.fake.Subscriptions()
}

func (m *mockClient) PointWrite(ctx context.Context, id haystack.Ref, value haystack.Value, opts client.WriteOptions) (haystack.Grid, error) {
	args := m.Called(ctx, id, value, opts)
	if g, ok := args.Get(0).(haystack.Grid); ok {
		return g, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) TagCommit(ctx context.Context, id haystack.Ref, tag string, value haystack.Value) (haystack.Grid, error) {
	args := m.Called(ctx, id, tag, value)
	if g, ok := args.Get(0).(haystack.Grid); ok {
		return g, args.Error(1)
	}
	return nil, args.Error(1)
}

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

func envContext(c client.Client, opts ...binding.EnvOption) context.Context {
	opts = append([]binding.EnvOption{binding.WithEnvironmentID("test")}, opts...)
	return binding.WithEnvironment(context.Background(), binding.NewEnvironment(c, opts...))
}

func settle(t *testing.T, eng *engine.Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, eng.Settle(ctx))
}
