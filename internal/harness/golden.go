package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/haybind/internal/haystack"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Trace        []StepSnapshot `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because haystack.MarshalCanonical only handles Haystack values and plain Go data.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, step := range s.Trace {
		bindings := make(map[string]any, len(step.Bindings))
		for name, b := range step.Bindings {
			m := map[string]any{
				"kind":      b.Kind,
				"loading":   b.Loading,
				"completed": b.Completed,
				"updates":   b.Updates,
				"rows":      b.Rows,
			}
			if b.Error != "" {
				m["error"] = b.Error
			}
			if b.Kind == KindPoint || b.Kind == KindTag {
				m["value"] = b.Value
			}
			bindings[name] = m
		}
		stepMap := map[string]any{
			"step":     step.Step,
			"op":       step.Op,
			"bindings": bindings,
		}
		if step.Name != "" {
			stepMap["name"] = step.Name
		}
		if step.Err != "" {
			stepMap["err"] = step.Err
		}
		traceList[i] = stepMap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// MarshalTrace renders a result's trace in canonical JSON.
func MarshalTrace(name string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	return haystack.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check assertions. Test failure
// (via goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
