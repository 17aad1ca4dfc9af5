package filter

import (
	"math"

	"github.com/roach88/haybind/internal/haystack"
)

// Resolver looks up the record a ref points to. Paths with "->" segments
// need one; a nil Resolver makes every dereference fail to resolve.
type Resolver func(ref haystack.Ref) (haystack.Dict, bool)

// Match evaluates a predicate against a record.
func Match(p Predicate, rec haystack.Dict, resolve Resolver) bool {
	switch pred := p.(type) {
	case Has:
		_, ok := lookup(pred.Path, rec, resolve)
		return ok
	case Missing:
		_, ok := lookup(pred.Path, rec, resolve)
		return !ok
	case Cmp:
		v, ok := lookup(pred.Path, rec, resolve)
		if !ok {
			return false
		}
		return compare(v, pred.Op, pred.Value)
	case And:
		for _, child := range pred.Predicates {
			if !Match(child, rec, resolve) {
				return false
			}
		}
		return true
	case Or:
		for _, child := range pred.Predicates {
			if Match(child, rec, resolve) {
				return true
			}
		}
		return false
	}
	return false
}

// lookup walks a path, dereferencing refs between segments.
func lookup(path Path, rec haystack.Dict, resolve Resolver) (haystack.Value, bool) {
	cur := rec
	for i, name := range path {
		if !cur.Has(name) {
			return nil, false
		}
		v := cur[name]
		if i == len(path)-1 {
			return v, true
		}
		ref, ok := v.(haystack.Ref)
		if !ok || resolve == nil {
			return nil, false
		}
		next, ok := resolve(ref)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

func compare(actual haystack.Value, op Op, expected haystack.Value) bool {
	switch op {
	case OpEq:
		return haystack.Equal(actual, expected)
	case OpNe:
		return !haystack.Equal(actual, expected)
	}

	c, ok := order(actual, expected)
	if !ok {
		return false
	}
	switch op {
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	}
	return false
}

// order compares two values of the same orderable kind. Numbers must share
// a unit; a unitless literal compares against any unit.
func order(a, b haystack.Value) (int, bool) {
	switch av := a.(type) {
	case haystack.Number:
		bv, ok := b.(haystack.Number)
		if !ok || (bv.Unit != "" && av.Unit != bv.Unit) {
			return 0, false
		}
		if math.IsNaN(av.Val) || math.IsNaN(bv.Val) {
			return 0, false
		}
		switch {
		case av.Val < bv.Val:
			return -1, true
		case av.Val > bv.Val:
			return 1, true
		}
		return 0, true
	case haystack.Str:
		bv, ok := b.(haystack.Str)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
