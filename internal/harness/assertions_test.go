package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/haybind/internal/haystack"
)

func ptr[T any](v T) *T { return &v }

func sampleResult() *Result {
	r := NewResult()
	r.Trace = []StepSnapshot{
		{Step: 0, Op: OpPoint, Name: "sp", Bindings: map[string]BindingSnapshot{
			"sp": {Kind: KindPoint, Loading: true, Rows: []string{}},
		}},
		{Step: 1, Op: OpPoll, Bindings: map[string]BindingSnapshot{
			"sp": {Kind: KindPoint, Completed: 1, Updates: 1, Rows: []string{"sp"},
				Value: haystack.Number{Val: 72, Unit: "°F"}},
		}},
	}
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Binding: "sp", Step: ptr(0), Loading: ptr(true), Completed: ptr(uint64(0))},
		{Binding: "sp", Loading: ptr(false), Updates: ptr(uint64(1)), Rows: []string{"sp"}, Error: ptr(""), Value: "n:72 °F"},
		{Binding: "other", Closed: true},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name string
		a    Assertion
		want string
	}{
		{"loading", Assertion{Binding: "sp", Loading: ptr(true)}, "sp.loading after step 1"},
		{"completed", Assertion{Binding: "sp", Completed: ptr(uint64(3))}, "Expected: 3"},
		{"updates", Assertion{Binding: "sp", Step: ptr(0), Updates: ptr(uint64(1))}, "after step 0"},
		{"rows", Assertion{Binding: "sp", Rows: []string{}}, "sp.rows"},
		{"error", Assertion{Binding: "sp", Error: ptr("READ_FAILED")}, "Actual: no error"},
		{"value", Assertion{Binding: "sp", Value: "n:70 °F"}, "sp.value"},
		{"closed", Assertion{Binding: "sp", Closed: true}, "binding open"},
		{"missing", Assertion{Binding: "ghost"}, "no such binding"},
		{"step range", Assertion{Binding: "sp", Step: ptr(5)}, "step 5 not in trace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.a})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestEvaluateAssertions_EmptyTrace(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Binding: "x"}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "empty trace")
}
