package haystack

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"str", Str("hello"), `"hello"`},
		{"plain string", "hello", `"hello"`},
		{"int", 42, "42"},
		{"bool", Bool(true), "true"},
		{"null", Null{}, "null"},
		{"nil", nil, "null"},
		{"marker", Marker{}, `{"_kind":"marker"}`},
		{"ref ignores dis", Ref{ID: "p1", Dis: "Point 1"}, `{"_kind":"ref","val":"p1"}`},
		{"number", Number{Val: 72.5, Unit: "°F"}, `{"_kind":"number","unit":"°F","val":72.5}`},
		{"nan", Number{Val: math.NaN()}, `{"_kind":"number","unit":"","val":"NaN"}`},
		{"list", List{Str("a"), Number{Val: 1}}, `["a",{"_kind":"number","unit":"","val":1}]`},
		{"no html escape", "<a&b>", `"<a&b>"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	d := Dict{
		"zebra": Marker{},
		"alpha": Str("a"),
		"beta":  Bool(false),
	}

	result, err := MarshalCanonical(d)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"a","beta":false,"zebra":{"_kind":"marker"}}`, string(result))
}

func TestMarshalCanonicalUTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as a surrogate pair (0xD83D...) which sorts before
	// U+FF21 in UTF-16 but after it in UTF-8.
	d := Dict{"\uFF21": Marker{}, "\U0001F600": Marker{}}

	result, err := MarshalCanonical(d)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":{\"_kind\":\"marker\"},\"\uFF21\":{\"_kind\":\"marker\"}}", string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	decomposed := "e\u0301"
	composed := "\u00e9"

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(result))

	literal, err := MarshalCanonical(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(literal))
}

func TestMarshalCanonicalKindsDoNotCollide(t *testing.T) {
	s, err := MarshalCanonical(Str("1"))
	require.NoError(t, err)
	n, err := MarshalCanonical(Number{Val: 1})
	require.NoError(t, err)
	assert.NotEqual(t, string(s), string(n))
}

func TestMarshalCanonicalUnsupported(t *testing.T) {
	_, err := MarshalCanonical(struct{}{})
	assert.Error(t, err)
}

func TestKeyDeterminism(t *testing.T) {
	deps := []any{"point and curVal", 5, true}

	k1, err := Key(DomainDeps, deps)
	require.NoError(t, err)
	k2, err := Key(DomainDeps, deps)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64, "SHA-256 hex is 64 characters")
}

func TestKeyDomainSeparation(t *testing.T) {
	g := Grid{NewDict("id", "@p1")}

	dk, err := Key(DomainDeps, g)
	require.NoError(t, err)
	assert.NotEqual(t, dk, GridKey(g))
}

func TestGridKeyChangesWithContent(t *testing.T) {
	a := Grid{NewDict("id", "@p1", "curVal", 4)}
	b := Grid{NewDict("id", "@p1", "curVal", 5)}
	c := Grid{NewDict("id", "@p1", "curVal", 4)}

	assert.NotEqual(t, GridKey(a), GridKey(b))
	assert.Equal(t, GridKey(a), GridKey(c))
}
