package filtersql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/haybind/internal/filter"
	"github.com/roach88/haybind/internal/haystack"
)

func compile(t *testing.T, text string) Query {
	t.Helper()
	q, err := NewCompiler().Compile(filter.MustParse(text))
	require.NoError(t, err)
	return q
}

func TestCompile_Has(t *testing.T) {
	q := compile(t, "point")

	assert.Contains(t, q.SQL, "SELECT id, tags FROM entities WHERE")
	assert.Contains(t, q.SQL, "json_type(tags, ?)")
	assert.Equal(t, []any{`$."point"`}, q.Params)
	assert.True(t, q.Exact)
}

func TestCompile_AlwaysOrdered(t *testing.T) {
	for _, text := range []string{"point", "not point", "a or b", "x == 1", "equipRef->siteRef"} {
		t.Run(text, func(t *testing.T) {
			q := compile(t, text)
			assert.Contains(t, q.SQL, "ORDER BY seq ASC, id ASC COLLATE BINARY")
		})
	}
}

func TestCompile_Missing(t *testing.T) {
	q := compile(t, "not his")
	assert.Contains(t, q.SQL, "NOT (COALESCE(json_type(tags, ?), 'null') != 'null')")
	assert.Equal(t, []any{`$."his"`}, q.Params)
}

func TestCompile_StringNeverInterpolated(t *testing.T) {
	q := compile(t, `dis == "'; DROP TABLE entities; --"`)

	assert.NotContains(t, q.SQL, "DROP TABLE")
	assert.Contains(t, q.Params, "'; DROP TABLE entities; --")
	assert.True(t, q.Exact)
}

func TestCompile_Ref(t *testing.T) {
	q := compile(t, "siteRef == @s1")
	assert.Equal(t, []any{`$."siteRef"._kind`, `$."siteRef".val`, "s1"}, q.Params)

	q = compile(t, "siteRef < @s1")
	assert.Contains(t, q.SQL, "WHERE 0 = 1")
}

func TestCompile_Bool(t *testing.T) {
	q := compile(t, "enabled == true")
	assert.Equal(t, []any{`$."enabled"`, "true"}, q.Params)
}

func TestCompile_NumberUnits(t *testing.T) {
	q := compile(t, "curVal > 70")
	assert.NotContains(t, q.Params, `$."curVal".unit`, "unitless ordering ignores unit")
	assert.Contains(t, q.Params, float64(70))

	q = compile(t, "curVal > 70°F")
	assert.Contains(t, q.Params, `$."curVal".unit`)
	assert.Contains(t, q.Params, "°F")

	q = compile(t, "curVal == 70")
	assert.Contains(t, q.Params, `$."curVal".unit`, "equality is unit-sensitive")
	assert.Equal(t, "", q.Params[len(q.Params)-1])
}

func TestCompile_NotEqualRequiresPresence(t *testing.T) {
	q := compile(t, `dis != "x"`)
	assert.Contains(t, q.SQL, "AND NOT COALESCE(")
	assert.Equal(t, `$."dis"`, q.Params[0])
	assert.True(t, q.Exact)
}

func TestCompile_ParamOrderFollowsTree(t *testing.T) {
	q := compile(t, `a == "1" and (b == "2" or c == "3")`)
	var literals []any
	for _, p := range q.Params {
		switch p {
		case "1", "2", "3":
			literals = append(literals, p)
		}
	}
	assert.Equal(t, []any{"1", "2", "3"}, literals)
	assert.Contains(t, q.SQL, " AND ")
	assert.Contains(t, q.SQL, " OR ")
}

func TestCompile_ArrowPathIsInexact(t *testing.T) {
	q := compile(t, "point and equipRef->ahu")
	assert.False(t, q.Exact)
	assert.Equal(t, []any{`$."point"`}, q.Params)
}

func TestCompile_EmptyCombinators(t *testing.T) {
	q, err := NewCompiler().Compile(filter.And{})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "WHERE 1 = 1")

	q, err = NewCompiler().Compile(filter.Or{})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "WHERE 0 = 1")
}

func TestCompile_Errors(t *testing.T) {
	_, err := NewCompiler().Compile(nil)
	assert.Error(t, err)

	_, err = NewCompiler().Compile(filter.Has{Path: filter.Path{"bad name"}})
	assert.Error(t, err)

	_, err = NewCompiler().Compile(filter.Cmp{Path: filter.Path{"x"}, Op: filter.OpEq})
	assert.Error(t, err)
}

func TestCompile_UnsupportedLiteralIsInexact(t *testing.T) {
	q, err := NewCompiler().Compile(filter.Cmp{Path: filter.Path{"x"}, Op: filter.OpEq, Value: haystack.Marker{}})
	require.NoError(t, err)
	assert.False(t, q.Exact)
}
