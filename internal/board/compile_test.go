package board

import (
	"testing"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/haystack"
)

func compileOne(t *testing.T, src, name string) (*Binding, error) {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return CompileBinding(v.LookupPath(cue.ParsePath("binding." + name)))
}

func TestCompileBinding_Filter(t *testing.T) {
	b, err := compileOne(t, `
		binding: zoneTemps: {
			filter: "point and temp"
			live:   true
			poll:   "2s"
			label:  "zones"
		}
	`, "zoneTemps")
	require.NoError(t, err)

	assert.Equal(t, "zoneTemps", b.Name)
	assert.Equal(t, binding.ByFilter{Filter: "point and temp"}, b.Query)
	assert.True(t, b.Live)
	assert.Equal(t, 2*time.Second, b.Poll)
	assert.Equal(t, binding.WatchRequest{
		Query:        binding.ByFilter{Filter: "point and temp"},
		Label:        "zones",
		PollInterval: 2 * time.Second,
	}, b.Request())
}

func TestCompileBinding_IDs(t *testing.T) {
	b, err := compileOne(t, `binding: ahu: ids: ["@ahu", "sp"]`, "ahu")
	require.NoError(t, err)

	assert.Equal(t, binding.ByIDs{IDs: []haystack.Ref{{ID: "ahu"}, {ID: "sp"}}}, b.Query)
	assert.False(t, b.Live)
	assert.Zero(t, b.Poll)
}

func TestCompileBinding_Expr(t *testing.T) {
	b, err := compileOne(t, `binding: all: expr: "readAll(point)"`, "all")
	require.NoError(t, err)
	assert.Equal(t, binding.ByExpr{Expr: "readAll(point)"}, b.Query)
}

func TestCompileBinding_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
		msg   string
	}{
		{"no query", `binding: x: label: "a"`, "query", "one of ids, filter or expr is required"},
		{"two queries", `binding: x: {filter: "point", expr: "readAll(point)"}`, "query", "only one"},
		{"bad filter", `binding: x: filter: "point and"`, "filter", "expected tag name"},
		{"empty ids", `binding: x: ids: []`, "ids", "must not be empty"},
		{"ids not list", `binding: x: ids: "@a"`, "ids", "list of strings"},
		{"empty id", `binding: x: ids: ["@"]`, "ids", "empty id"},
		{"blank expr", `binding: x: expr: "  "`, "expr", "must not be empty"},
		{"bad poll", `binding: x: {filter: "point", poll: "soon"}`, "poll", "positive duration"},
		{"zero poll", `binding: x: {filter: "point", poll: "0s"}`, "poll", "positive duration"},
		{"unknown field", `binding: x: {filter: "point", refresh: true}`, "binding", `unknown field "refresh"`},
		{"not struct", `binding: x: "point"`, "binding", "must be a struct"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileOne(t, tt.src, "x")
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			assert.Contains(t, ce.Message, tt.msg)
		})
	}
}

func TestCompileBinding_WrongType(t *testing.T) {
	_, err := compileOne(t, `binding: x: {filter: "point", live: "yes"}`, "x")
	require.Error(t, err)
}
