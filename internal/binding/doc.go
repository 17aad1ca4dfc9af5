// Package binding binds a consumer to server-resident Haystack data: a
// one-shot query result (Resolver) or a live, polled result (Watcher).
//
// # Attempts
//
// Every dependency change starts a new attempt. An attempt owns a Token;
// starting a newer attempt or closing the controller cancels it. Each
// continuation of an attempt checks its token before it touches the
// result Cell, so a superseded read that finishes late is discarded even
// when completions arrive out of order. In-flight I/O is never aborted.
//
// # Scheduling
//
// Controllers run on an engine.Engine. All controller state and every
// Cell write live on the engine goroutine; public methods post to it and
// are safe from any goroutine. I/O runs via engine.Go and comes back as a
// task, which is the only suspension point of an attempt.
//
// # State
//
// A Cell holds one State:
//
//	Data           last successful grid
//	IsLoading      true from attempt start until it settles or is superseded
//	CompletedCount attempts that settled, success or failure
//	UpdateCount    changes pushed by a live subscription
//	Err            outcome of the last settled attempt
//
// Each commit bumps the cell's Trigger once, however many fields changed.
//
// # Errors
//
// Read failures become a *ResolutionError and subscription failures a
// *SubscriptionError, both delivered through State.Err and never returned
// to the caller. Writes (package scalar) return a *WriteError.
package binding
