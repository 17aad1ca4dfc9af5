package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion failures:\n%v", result.Errors)
			assert.Len(t, result.Trace, len(scenario.Steps))
		})
	}
}

func TestRun_FailingAssertionIsReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: failing
description: expects the wrong row count
seed:
  - id: "@p1"
    point: "m:"
steps:
  - op: resolve
    name: points
    filter: point
assertions:
  - binding: points
    rows: [p1, p2]
  - binding: nothing
    loading: true
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "points.rows")
	assert.Contains(t, result.Errors[0], "[p1 p2]")
	assert.Contains(t, result.Errors[1], "no such binding")
}

func TestRun_StepErrors(t *testing.T) {
	tests := []struct {
		name  string
		steps string
		want  string
	}{
		{"unknown binding", "  - op: refresh\n    name: ghost\n", `unknown binding "ghost"`},
		{"duplicate name", "  - op: resolve\n    name: a\n    filter: point\n  - op: resolve\n    name: a\n    filter: point\n", "already exists"},
		{"write to resolver", "  - op: resolve\n    name: a\n    filter: point\n  - op: write\n    name: a\n    value: 1\n", "not writable"},
		{"point on unknown record", "  - op: point\n    name: a\n    id: \"@nope\"\n", "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario, err := ParseScenario([]byte("name: x\ndescription: x\nsteps:\n" + tt.steps))
			require.NoError(t, err)

			_, err = Run(scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_RecordedStepErrors(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: recorded
description: direct store failures are traced, not fatal
seed:
  - id: "@e1"
    equip: "m:"
steps:
  - op: store_write
    id: "@e1"
    value: 1
  - op: commit
    id: "@nope"
    tag: dis
    value: x
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "WRITE_FAILED", result.Trace[0].Err)
	assert.Equal(t, "COMMIT_FAILED", result.Trace[1].Err)
	assert.True(t, result.Pass)
}
