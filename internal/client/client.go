// Package client defines the boundary between bindings and the Haystack
// server they read from: one-shot reads, evaluation, writes and live
// subscriptions.
//
// Bindings consume these interfaces only. The repository ships one
// implementation backed by a local SQLite database (package store) with
// polling subscriptions (package watch).
package client

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/haybind/internal/haystack"
)

// DefaultWriteLevel is the lowest-priority level of a Haystack point
// priority array. Point writes use it unless the caller picks a level.
const DefaultWriteLevel = 16

// ErrNoClient is returned by every operation of Unavailable.
var ErrNoClient = errors.New("no haystack client configured")

// Reader performs one-shot reads.
type Reader interface {
	// ReadByFilter returns every record matching a Haystack filter.
	ReadByFilter(ctx context.Context, filter string) (haystack.Grid, error)

	// ReadByIDs returns one row per id, in id order. Unknown ids are an
	// error.
	ReadByIDs(ctx context.Context, ids []haystack.Ref) (haystack.Grid, error)

	// Evaluate runs a server-side expression yielding a grid.
	Evaluate(ctx context.Context, expr string) (haystack.Grid, error)
}

// WriteOptions qualifies a point write.
type WriteOptions struct {
	// Level is the priority array slot, 1 (highest) to 17. Zero means
	// DefaultWriteLevel.
	Level int

	// Who identifies the writer.
	Who string

	// Duration limits how long the write holds its slot. Zero is
	// permanent.
	Duration time.Duration
}

// Writer performs explicit writes.
type Writer interface {
	// PointWrite writes a value into a point's priority array. A nil value
	// releases the slot.
	PointWrite(ctx context.Context, id haystack.Ref, value haystack.Value, opts WriteOptions) (haystack.Grid, error)

	// TagCommit sets one tag on a record. A nil value removes the tag.
	TagCommit(ctx context.Context, id haystack.Ref, tag string, value haystack.Value) (haystack.Grid, error)
}

// Client is everything a binding may ask of a Haystack server.
type Client interface {
	Reader
	Writer
	Subscriptions() Subscriptions
}

// Subscriptions opens live handles.
type Subscriptions interface {
	// Make opens a handle watching ids. The label shows up in server-side
	// diagnostics.
	Make(ctx context.Context, label string, ids []haystack.Ref) (Handle, error)
}

// Handle is a live subscription over a fixed id set. A handle is owned by
// whoever made it and must be closed exactly once.
type Handle interface {
	// PollInterval is how often the server is polled for changes.
	PollInterval() time.Duration
	SetPollInterval(d time.Duration)

	// OnChange registers a callback run after each poll that observed a
	// change. Callbacks run on the handle's goroutine.
	OnChange(fn func())

	// OnError registers a callback run when a poll fails.
	OnError(fn func(error))

	// Snapshot returns the latest polled records.
	Snapshot() haystack.Grid

	// Close stops polling and releases server-side resources.
	Close(ctx context.Context) error
}

// Unavailable is the client used when none is configured. Every call
// fails with ErrNoClient.
type Unavailable struct{}

var _ Client = Unavailable{}

func (Unavailable) ReadByFilter(context.Context, string) (haystack.Grid, error) {
	return nil, ErrNoClient
}

func (Unavailable) ReadByIDs(context.Context, []haystack.Ref) (haystack.Grid, error) {
	return nil, ErrNoClient
}

func (Unavailable) Evaluate(context.Context, string) (haystack.Grid, error) {
	return nil, ErrNoClient
}

func (Unavailable) PointWrite(context.Context, haystack.Ref, haystack.Value, WriteOptions) (haystack.Grid, error) {
	return nil, ErrNoClient
}

func (Unavailable) TagCommit(context.Context, haystack.Ref, string, haystack.Value) (haystack.Grid, error) {
	return nil, ErrNoClient
}

func (Unavailable) Subscriptions() Subscriptions { return unavailableSubs{} }

type unavailableSubs struct{}

func (unavailableSubs) Make(context.Context, string, []haystack.Ref) (Handle, error) {
	return nil, ErrNoClient
}
