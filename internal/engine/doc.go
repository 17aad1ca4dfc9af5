// Package engine implements the event loop that bindings run on.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// All binding state lives on one goroutine. Anything that mutates a result
// cell, starts or tears down an attempt, or touches a subscription handle
// is a Task posted to the loop. This gives bindings the scheduling model
// they are written against:
//   - Between two tasks nothing else runs, so a task is atomic
//   - Suspension points are explicit: blocking work runs via Engine.Go and
//     its continuation is a new task
//   - A continuation checks its attempt's cancellation token before it
//     mutates anything
//
// Task Flow:
//  1. Callers (any goroutine) Post tasks or Do them and wait
//  2. Engine.Run dequeues tasks one at a time in FIFO order
//  3. Tasks start I/O with Engine.Go; results come back as tasks
//  4. Subscription handles push changes by posting tasks
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Attempts are stamped with a monotonic seq from Clock.Next(). Ordering
// questions ("which attempt started last?") compare seqs, never wall time.
//
// Log and Continue:
// A panicking task is recovered and logged; the loop keeps serving every
// other binding.
package engine
