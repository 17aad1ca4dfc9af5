package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: basic
description: one watch
env:
  opsOnly: true
  pollInterval: 2s
  writeLevel: 10
  who: me
seed:
  - id: "@p1"
    point: "m:"
steps:
  - op: watch
    name: p
    ids: ["@p1"]
    poll: 1s
assertions:
  - binding: p
    step: 0
    loading: false
    completed: 1
    error: ""
`))
	require.NoError(t, err)

	assert.Equal(t, "basic", s.Name)
	assert.Equal(t, EnvSpec{OpsOnly: true, PollInterval: 2 * time.Second, WriteLevel: 10, Who: "me"}, s.Env)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, []string{"@p1"}, s.Steps[0].IDs)
	assert.Equal(t, time.Second, s.Steps[0].Poll)
	require.Len(t, s.Assertions, 1)
	a := s.Assertions[0]
	require.NotNil(t, a.Step)
	assert.Equal(t, 0, *a.Step)
	require.NotNil(t, a.Loading)
	assert.False(t, *a.Loading)
	require.NotNil(t, a.Error)
	assert.Equal(t, "", *a.Error)
	assert.Nil(t, a.Updates)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\ndescription: x\nstep: []\n", "field step not found"},
		{"no name", "description: x\nsteps: [{op: poll}]\n", "name is required"},
		{"no description", "name: x\nsteps: [{op: poll}]\n", "description is required"},
		{"no steps", "name: x\ndescription: x\n", "steps list is required"},
		{"no op", "name: x\ndescription: x\nsteps: [{name: a}]\n", "op is required"},
		{"unknown op", "name: x\ndescription: x\nsteps: [{op: jump}]\n", `unknown op "jump"`},
		{"two queries", "name: x\ndescription: x\nsteps: [{op: watch, name: a, filter: p, expr: e}]\n", "exactly one of"},
		{"no query", "name: x\ndescription: x\nsteps: [{op: resolve, name: a}]\n", "exactly one of"},
		{"point without id", "name: x\ndescription: x\nsteps: [{op: point, name: a}]\n", "name and id are required"},
		{"tag without tag", "name: x\ndescription: x\nsteps: [{op: tag, name: a, id: \"@a\"}]\n", "tag is required"},
		{"commit without tag", "name: x\ndescription: x\nsteps: [{op: commit, id: \"@a\"}]\n", "id and tag are required"},
		{"close without name", "name: x\ndescription: x\nsteps: [{op: close}]\n", "name is required"},
		{"assertion without binding", "name: x\ndescription: x\nsteps: [{op: poll}]\nassertions: [{loading: true}]\n", "binding is required"},
		{"assertion step range", "name: x\ndescription: x\nsteps: [{op: poll}]\nassertions: [{binding: a, step: 1}]\n", "out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\ndescription: x\nsteps: [{op: poll}]\n"), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, OpPoll, s.Steps[0].Op)
}
