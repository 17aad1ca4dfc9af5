package binding

import (
	"sync"

	"github.com/roach88/haybind/internal/haystack"
)

// State is a snapshot of a binding's result.
//
// Data holds the last successful result and survives later failures; Err
// describes only the most recent settled attempt.
type State struct {
	Data           haystack.Grid
	IsLoading      bool
	CompletedCount uint64
	UpdateCount    uint64
	Err            error
}

// Cell is the shared result of one binding. Writes happen on the engine
// goroutine; Read is safe from anywhere.
type Cell struct {
	mu      sync.RWMutex
	state   State
	trigger *Trigger
}

// NewCell returns a cell in the initial state: no rows, loading, zero
// counts, no error.
func NewCell() *Cell {
	return &Cell{
		state:   State{Data: haystack.EmptyGrid(), IsLoading: true},
		trigger: NewTrigger(),
	}
}

// Read returns the latest committed state. The grid is shared and must be
// treated as read-only.
func (c *Cell) Read() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Commit applies update and bumps the trigger once. The commit is dropped
// and Commit returns false when tok is cancelled.
func (c *Cell) Commit(tok *Token, update func(*State)) bool {
	if tok.Cancelled() {
		return false
	}
	c.mu.Lock()
	update(&c.state)
	if c.state.Data == nil {
		c.state.Data = haystack.EmptyGrid()
	}
	c.mu.Unlock()

	c.trigger.Bump()
	return true
}

// Trigger returns the cell's change trigger.
func (c *Cell) Trigger() *Trigger {
	return c.trigger
}

// reset clears the loading flag and error without bumping the trigger.
// Teardown calls it so the next attempt starts from a clean baseline.
func (c *Cell) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.IsLoading = false
	c.state.Err = nil
}
