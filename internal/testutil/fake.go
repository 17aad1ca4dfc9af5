package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/filter"
	"github.com/roach88/haybind/internal/haystack"
)

// ErrNotFound is returned by FakeClient for unknown ids and unsupported
// expressions.
var ErrNotFound = errors.New("not found")

// Op names a FakeClient operation.
type Op string

const (
	OpReadByFilter Op = "readByFilter"
	OpReadByIDs    Op = "readByIds"
	OpEvaluate     Op = "eval"
	OpPointWrite   Op = "pointWrite"
	OpTagCommit    Op = "tagCommit"
	OpMake         Op = "make"
)

// Call is one request made to a FakeClient.
//
// When the client is gated the caller blocks until the test answers the
// call with Return or Open, which lets tests choose completion order.
type Call struct {
	Op    Op
	Arg   string // filter, expression, label or tag name
	IDs   []haystack.Ref
	Value haystack.Value
	Opts  client.WriteOptions

	reply chan reply
}

type reply struct {
	grid   haystack.Grid
	handle client.Handle
	err    error
}

// Return answers a gated read, eval or write call.
func (c *Call) Return(g haystack.Grid, err error) {
	c.reply <- reply{grid: g, err: err}
}

// Open answers a gated Make call.
func (c *Call) Open(h client.Handle, err error) {
	c.reply <- reply{handle: h, err: err}
}

// FakeClient is an in-memory client.Client for tests.
//
// Ungated, it answers from Records: ReadByIDs by id, ReadByFilter by
// matching the filter, Evaluate for readAll(<filter>), writes by patching
// the record, and Make with a FakeHandle over the current records.
// Gated, every call is queued for the test to answer via Next.
//
// Thread-safety: FakeClient is safe for concurrent use.
type FakeClient struct {
	mu      sync.Mutex
	records haystack.Grid
	gated   bool
	calls   []Call
	handles []*FakeHandle

	pending chan *Call
}

var _ client.Client = (*FakeClient)(nil)

// NewFakeClient returns an ungated client holding records.
func NewFakeClient(records ...haystack.Dict) *FakeClient {
	return &FakeClient{
		records: haystack.Grid(records),
		pending: make(chan *Call, 64),
	}
}

// Gate makes every later call block until the test answers it.
func (f *FakeClient) Gate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gated = true
}

// Next returns the next gated call, failing the test after a timeout.
func (f *FakeClient) Next(t testing.TB) *Call {
	t.Helper()
	select {
	case c := <-f.pending:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a client call")
		return nil
	}
}

// NoPending fails the test if a gated call is waiting.
func (f *FakeClient) NoPending(t testing.TB) {
	t.Helper()
	select {
	case c := <-f.pending:
		t.Fatalf("unexpected pending call %s %q", c.Op, c.Arg)
	default:
	}
}

// Calls returns every call made so far, in order.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the calls made with op.
func (f *FakeClient) CallsOf(op Op) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Handles returns every handle the ungated client has opened.
func (f *FakeClient) Handles() []*FakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeHandle(nil), f.handles...)
}

// Records returns the current records.
func (f *FakeClient) Records() haystack.Grid {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records.Clone()
}

// SetRecord inserts or replaces a record by id.
func (f *FakeClient) SetRecord(rec haystack.Dict) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := rec.ID()
	for i, row := range f.records {
		if r, ok := row.ID(); ok && r.ID == id.ID {
			f.records[i] = rec
			return
		}
	}
	f.records = append(f.records, rec)
}

// record logs c and reports whether it must wait for the test.
func (f *FakeClient) record(c *Call) bool {
	f.mu.Lock()
	logged := *c
	logged.reply = nil
	f.calls = append(f.calls, logged)
	gated := f.gated
	f.mu.Unlock()

	if gated {
		c.reply = make(chan reply, 1)
		f.pending <- c
	}
	return gated
}

func (f *FakeClient) await(ctx context.Context, c *Call) (reply, error) {
	select {
	case r := <-c.reply:
		return r, nil
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

func (f *FakeClient) ReadByFilter(ctx context.Context, text string) (haystack.Grid, error) {
	c := &Call{Op: OpReadByFilter, Arg: text}
	if f.record(c) {
		r, err := f.await(ctx, c)
		if err != nil {
			return nil, err
		}
		return r.grid, r.err
	}
	return f.match(text)
}

func (f *FakeClient) ReadByIDs(ctx context.Context, ids []haystack.Ref) (haystack.Grid, error) {
	c := &Call{Op: OpReadByIDs, IDs: ids}
	if f.record(c) {
		r, err := f.await(ctx, c)
		if err != nil {
			return nil, err
		}
		return r.grid, r.err
	}
	return f.byIDs(ids)
}

func (f *FakeClient) Evaluate(ctx context.Context, expr string) (haystack.Grid, error) {
	c := &Call{Op: OpEvaluate, Arg: expr}
	if f.record(c) {
		r, err := f.await(ctx, c)
		if err != nil {
			return nil, err
		}
		return r.grid, r.err
	}
	inner, ok := strings.CutPrefix(expr, "readAll(")
	if !ok || !strings.HasSuffix(inner, ")") {
		return nil, fmt.Errorf("eval %q: %w", expr, ErrNotFound)
	}
	return f.match(strings.TrimSuffix(inner, ")"))
}

func (f *FakeClient) PointWrite(ctx context.Context, id haystack.Ref, value haystack.Value, opts client.WriteOptions) (haystack.Grid, error) {
	c := &Call{Op: OpPointWrite, IDs: []haystack.Ref{id}, Value: value, Opts: opts}
	if f.record(c) {
		r, err := f.await(ctx, c)
		if err != nil {
			return nil, err
		}
		return r.grid, r.err
	}
	return f.patch(id, "curVal", value)
}

func (f *FakeClient) TagCommit(ctx context.Context, id haystack.Ref, tag string, value haystack.Value) (haystack.Grid, error) {
	c := &Call{Op: OpTagCommit, Arg: tag, IDs: []haystack.Ref{id}, Value: value}
	if f.record(c) {
		r, err := f.await(ctx, c)
		if err != nil {
			return nil, err
		}
		return r.grid, r.err
	}
	return f.patch(id, tag, value)
}

func (f *FakeClient) Subscriptions() client.Subscriptions { return fakeSubs{f} }

type fakeSubs struct{ f *FakeClient }

func (s fakeSubs) Make(ctx context.Context, label string, ids []haystack.Ref) (client.Handle, error) {
	f := s.f
	c := &Call{Op: OpMake, Arg: label, IDs: ids}
	if f.record(c) {
		r, err := f.await(ctx, c)
		if err != nil {
			return nil, err
		}
		return r.handle, r.err
	}
	snap, err := f.byIDs(ids)
	if err != nil {
		return nil, err
	}
	h := NewFakeHandle(label, ids, snap)
	f.mu.Lock()
	f.handles = append(f.handles, h)
	f.mu.Unlock()
	return h, nil
}

func (f *FakeClient) match(text string) (haystack.Grid, error) {
	pred, err := filter.Parse(text)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	resolve := func(ref haystack.Ref) (haystack.Dict, bool) { return f.records.Find(ref.ID) }
	out := haystack.EmptyGrid()
	for _, row := range f.records {
		if filter.Match(pred, row, resolve) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *FakeClient) byIDs(ids []haystack.Ref) (haystack.Grid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(haystack.Grid, 0, len(ids))
	for _, id := range ids {
		row, ok := f.records.Find(id.ID)
		if !ok {
			return nil, fmt.Errorf("read @%s: %w", id.ID, ErrNotFound)
		}
		out = append(out, row)
	}
	return out, nil
}

func (f *FakeClient) patch(id haystack.Ref, tag string, v haystack.Value) (haystack.Grid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v == nil {
		v = haystack.Remove{}
	}
	patched, ok := f.records.Patch(id.ID, tag, v)
	if !ok {
		return nil, fmt.Errorf("write @%s: %w", id.ID, ErrNotFound)
	}
	f.records = patched
	row, _ := patched.Find(id.ID)
	return haystack.Grid{row}, nil
}
