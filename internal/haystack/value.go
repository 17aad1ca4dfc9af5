package haystack

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"
)

// Kind names a Haystack value type. The strings match the Hayson "_kind"
// discriminator so encoding never needs a lookup table.
type Kind string

const (
	KindMarker Kind = "marker"
	KindRemove Kind = "remove"
	KindNull   Kind = "null"
	KindBool   Kind = "bool"
	KindStr    Kind = "str"
	KindNumber Kind = "number"
	KindRef    Kind = "ref"
	KindList   Kind = "list"
	KindDict   Kind = "dict"
)

// Value is a sealed interface over the Haystack value types.
// Only the types in this package implement it, which keeps type switches
// in encoders, the filter matcher and the SQL compiler exhaustive.
type Value interface {
	Kind() Kind
	hayValue()
}

// Marker is the valueless tag used to classify entities (point, site, ...).
type Marker struct{}

func (Marker) Kind() Kind { return KindMarker }
func (Marker) hayValue()  {}

// Remove instructs a differencing commit to delete a tag.
type Remove struct{}

func (Remove) Kind() Kind { return KindRemove }
func (Remove) hayValue()  {}

// Null is an explicit absence of value.
type Null struct{}

func (Null) Kind() Kind { return KindNull }
func (Null) hayValue()  {}

// Bool is a boolean value.
type Bool bool

func (Bool) Kind() Kind { return KindBool }
func (Bool) hayValue()  {}

// Str is a string value.
type Str string

func (Str) Kind() Kind { return KindStr }
func (Str) hayValue()  {}

// Number is a float64 with an optional unit ("kW", "°F").
type Number struct {
	Val  float64
	Unit string
}

func (Number) Kind() Kind { return KindNumber }
func (Number) hayValue()  {}

// String renders the number the way Zinc does: shortest float form followed
// by the unit with no separator.
func (n Number) String() string {
	switch {
	case math.IsNaN(n.Val):
		return "NaN"
	case math.IsInf(n.Val, 1):
		return "INF" + n.Unit
	case math.IsInf(n.Val, -1):
		return "-INF" + n.Unit
	}
	return strconv.FormatFloat(n.Val, 'g', -1, 64) + n.Unit
}

// Ref identifies an entity. Dis is a display name and takes no part in
// identity comparisons.
type Ref struct {
	ID  string
	Dis string
}

func (Ref) Kind() Kind { return KindRef }
func (Ref) hayValue()  {}

// String renders the ref in Zinc form (@id).
func (r Ref) String() string { return "@" + r.ID }

// List is an ordered sequence of values.
type List []Value

func (List) Kind() Kind { return KindList }
func (List) hayValue()  {}

// Dict is a record: named tags mapped to values.
// Use SortedKeys for deterministic iteration.
type Dict map[string]Value

func (Dict) Kind() Kind { return KindDict }
func (Dict) hayValue()  {}

// Convenience constructors.

func NewStr(s string) Str { return Str(s) }

func NewNumber(v float64, unit string) Number { return Number{Val: v, Unit: unit} }

func NewRef(id string) Ref { return Ref{ID: id} }

// NewDict builds a Dict from alternating name/value pairs.
// Panics on an odd argument count or a non-string name: construction
// mistakes are programmer errors.
func NewDict(pairs ...any) Dict {
	if len(pairs)%2 != 0 {
		panic("haystack.NewDict: odd number of arguments")
	}
	d := make(Dict, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("haystack.NewDict: name at %d is %T, not string", i, pairs[i]))
		}
		v, err := FromNative(pairs[i+1])
		if err != nil {
			panic(fmt.Sprintf("haystack.NewDict: %s: %v", name, err))
		}
		d[name] = v
	}
	return d
}

// ID returns the entity ref stored under the "id" tag.
func (d Dict) ID() (Ref, bool) {
	r, ok := d["id"].(Ref)
	return r, ok
}

// Dis returns a display string: the "dis" tag, the id's dis, or the id.
func (d Dict) Dis() string {
	if s, ok := d["dis"].(Str); ok {
		return string(s)
	}
	if r, ok := d.ID(); ok {
		if r.Dis != "" {
			return r.Dis
		}
		return r.ID
	}
	return ""
}

// Get returns the value of a tag, or nil when absent.
func (d Dict) Get(name string) Value {
	if d == nil {
		return nil
	}
	return d[name]
}

// Has reports whether the tag is present with a non-null value.
func (d Dict) Has(name string) bool {
	v, ok := d[name]
	if !ok || v == nil {
		return false
	}
	switch v.(type) {
	case Null, Remove:
		return false
	}
	return true
}

// Clone returns a shallow copy. Values are immutable so sharing them is safe.
func (d Dict) Clone() Dict {
	if d == nil {
		return nil
	}
	out := make(Dict, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// With returns a copy of d with name set to v. A Remove value deletes the tag.
func (d Dict) With(name string, v Value) Dict {
	out := d.Clone()
	if out == nil {
		out = Dict{}
	}
	if _, ok := v.(Remove); ok || v == nil {
		delete(out, name)
		return out
	}
	out[name] = v
	return out
}

// SortedKeys returns tag names in UTF-16 code unit order, the ordering used
// by canonical serialization.
func (d Dict) SortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// compareUTF16 orders strings by UTF-16 code units. Go's native string
// comparison is by UTF-8 bytes, which orders supplementary characters
// differently.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Equal compares two values structurally. Ref display names are ignored.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Marker, Remove, Null:
		return a.Kind() == b.Kind()
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Str:
		bv, ok := b.(Str)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		if !ok || av.Unit != bv.Unit {
			return false
		}
		if math.IsNaN(av.Val) {
			return math.IsNaN(bv.Val)
		}
		return av.Val == bv.Val
	case Ref:
		bv, ok := b.(Ref)
		return ok && av.ID == bv.ID
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Dict:
		bv, ok := b.(Dict)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			if !Equal(v, bv[k]) {
				return false
			}
		}
		return true
	}
	return false
}

// Grid is an ordered table of records as returned by a read or eval.
type Grid []Dict

// EmptyGrid returns a non-nil grid with no rows.
func EmptyGrid() Grid { return Grid{} }

// Len returns the row count.
func (g Grid) Len() int { return len(g) }

// IDs returns the ids of all rows carrying one, in row order.
func (g Grid) IDs() []Ref {
	ids := make([]Ref, 0, len(g))
	for _, row := range g {
		if id, ok := row.ID(); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Find returns the row whose id matches.
func (g Grid) Find(id string) (Dict, bool) {
	for _, row := range g {
		if r, ok := row.ID(); ok && r.ID == id {
			return row, true
		}
	}
	return nil, false
}

// Clone copies the row slice and each row.
func (g Grid) Clone() Grid {
	if g == nil {
		return nil
	}
	out := make(Grid, len(g))
	for i, row := range g {
		out[i] = row.Clone()
	}
	return out
}

// Patch returns a copy of g where the row with the given id has tag set to v.
// The second result is false when no row matched.
func (g Grid) Patch(id, tag string, v Value) (Grid, bool) {
	out := make(Grid, len(g))
	found := false
	for i, row := range g {
		if r, ok := row.ID(); ok && r.ID == id {
			out[i] = row.With(tag, v)
			found = true
			continue
		}
		out[i] = row
	}
	return out, found
}
