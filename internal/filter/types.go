package filter

import (
	"strings"

	"github.com/roach88/haybind/internal/haystack"
)

// Predicate is a node of a parsed Haystack filter.
//
// This is a sealed interface - only types in this package implement it.
// The marker method keeps type switches in the matcher and the SQL
// compiler exhaustive.
//
// Predicate types:
//   - Has: tag is present (`point`)
//   - Missing: tag is absent (`not point`)
//   - Cmp: path compared to a literal (`curVal > 70°F`)
//   - And, Or: boolean combinators
type Predicate interface {
	predicateNode()
	String() string
}

// Path is a tag name optionally followed by ref dereferences:
// `equipRef->siteRef->dis` has three segments.
type Path []string

// String renders the path in filter syntax.
func (p Path) String() string { return strings.Join(p, "->") }

// IsSimple reports whether the path names a tag on the record itself.
func (p Path) IsSimple() bool { return len(p) == 1 }

// Has matches records where the path resolves to a non-null value.
type Has struct {
	Path Path
}

func (Has) predicateNode() {}

func (h Has) String() string { return h.Path.String() }

// Missing matches records where the path does not resolve.
type Missing struct {
	Path Path
}

func (Missing) predicateNode() {}

func (m Missing) String() string { return "not " + m.Path.String() }

// Op is a comparison operator.
type Op string

const (
	OpEq Op = "=="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// Cmp compares the value at Path against a literal.
//
// Ordering operators apply to numbers with equal units and to strings.
// A record whose path does not resolve never matches, including for !=.
type Cmp struct {
	Path  Path
	Op    Op
	Value haystack.Value
}

func (Cmp) predicateNode() {}

func (c Cmp) String() string {
	return c.Path.String() + " " + string(c.Op) + " " + literalString(c.Value)
}

// And matches when every child matches. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

func (a And) String() string { return joinPredicates(a.Predicates, " and ") }

// Or matches when any child matches. An empty Or is always false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

func (o Or) String() string { return joinPredicates(o.Predicates, " or ") }

func joinPredicates(ps []Predicate, sep string) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		s := p.String()
		switch p.(type) {
		case And, Or:
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, sep)
}

func literalString(v haystack.Value) string {
	switch val := v.(type) {
	case haystack.Str:
		return quote(string(val))
	case haystack.Number:
		return val.String()
	case haystack.Ref:
		return val.String()
	case haystack.Bool:
		if val {
			return "true"
		}
		return "false"
	}
	return "?"
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`)
	return `"` + r.Replace(s) + `"`
}
