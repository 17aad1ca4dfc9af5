package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/haybind/internal/haystack"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Binding  string
	Step     int
	Field    string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s.%s after step %d\n", e.Binding, e.Field, e.Step)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against the trace and returns
// one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	snap := result.Final()
	if a.Step != nil {
		if *a.Step < 0 || *a.Step >= len(result.Trace) {
			return fmt.Errorf("assertion on %s: step %d not in trace", a.Binding, *a.Step)
		}
		snap = &result.Trace[*a.Step]
	}
	if snap == nil {
		return fmt.Errorf("assertion on %s: empty trace", a.Binding)
	}

	fail := func(field, expected, actual string) *AssertionError {
		return &AssertionError{Binding: a.Binding, Step: snap.Step, Field: field, Expected: expected, Actual: actual}
	}

	b, open := snap.Bindings[a.Binding]
	if a.Closed {
		if open {
			return fail("closed", "binding closed", "binding open")
		}
		return nil
	}
	if !open {
		return fail("state", "binding open", "no such binding")
	}

	if a.Loading != nil && *a.Loading != b.Loading {
		return fail("loading", fmt.Sprint(*a.Loading), fmt.Sprint(b.Loading))
	}
	if a.Completed != nil && *a.Completed != b.Completed {
		return fail("completed", fmt.Sprint(*a.Completed), fmt.Sprint(b.Completed))
	}
	if a.Updates != nil && *a.Updates != b.Updates {
		return fail("updates", fmt.Sprint(*a.Updates), fmt.Sprint(b.Updates))
	}
	if a.Rows != nil && !slices.Equal(a.Rows, b.Rows) {
		return fail("rows", fmt.Sprint(a.Rows), fmt.Sprint(b.Rows))
	}
	if a.Error != nil && *a.Error != b.Error {
		return fail("error", quoted(*a.Error), quoted(b.Error))
	}
	if a.Value != nil {
		want, err := haystack.FromNative(a.Value)
		if err != nil {
			return fmt.Errorf("assertion on %s: value: %w", a.Binding, err)
		}
		if !haystack.Equal(want, b.Value) {
			return fail("value", describe(want), describe(b.Value))
		}
	}
	return nil
}

func quoted(s string) string {
	if s == "" {
		return "no error"
	}
	return s
}

func describe(v haystack.Value) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%v (%s)", haystack.ToNative(v), v.Kind())
}
