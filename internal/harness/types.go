package harness

import (
	"github.com/roach88/haybind/internal/haystack"
)

// BindingSnapshot is one binding's observable state after a step.
type BindingSnapshot struct {
	Kind      string         `json:"kind"`
	Loading   bool           `json:"loading"`
	Completed uint64         `json:"completed"`
	Updates   uint64         `json:"updates"`
	Rows      []string       `json:"rows"`
	Error     string         `json:"error,omitempty"`
	Value     haystack.Value `json:"value,omitempty"`
}

// StepSnapshot is the trace entry recorded after a settled step.
type StepSnapshot struct {
	Step     int                        `json:"step"`
	Op       string                     `json:"op"`
	Name     string                     `json:"name,omitempty"`
	Err      string                     `json:"err,omitempty"`
	Bindings map[string]BindingSnapshot `json:"bindings"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// Trace holds one snapshot per step, in step order.
	Trace []StepSnapshot `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []StepSnapshot{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Final returns the last snapshot, or nil for an empty trace.
func (r *Result) Final() *StepSnapshot {
	if len(r.Trace) == 0 {
		return nil
	}
	return &r.Trace[len(r.Trace)-1]
}
