// Package filtersql compiles Haystack filters to parameterized SQLite
// queries over the store's entities table.
//
// Records are stored as Hayson in a JSON column, so every predicate becomes
// a json_type/json_extract expression. Values and JSON paths are always
// bound as parameters, never interpolated.
package filtersql

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/haybind/internal/filter"
	"github.com/roach88/haybind/internal/haystack"
)

// Query is a compiled filter.
//
// When Exact is false the WHERE clause selects a superset of the matching
// records and the caller must re-check each row with filter.Match. This
// happens for "->" paths, which need ref dereferencing, and for
// comparisons against literals SQLite cannot represent.
type Query struct {
	SQL    string
	Params []any
	Exact  bool
}

// Compiler compiles filter predicates to SQL.
type Compiler struct {
	// Table holds one row per entity with columns id, seq and TagsColumn.
	Table string

	// TagsColumn holds the record as a Hayson JSON object.
	TagsColumn string
}

// NewCompiler returns a compiler for the store's default layout.
func NewCompiler() *Compiler {
	return &Compiler{Table: "entities", TagsColumn: "tags"}
}

// Compile converts a filter into a SELECT returning id and tags.
//
// Every query ends with ORDER BY seq ASC, id ASC COLLATE BINARY so reads
// return records in insertion order regardless of the plan SQLite picks.
func (c *Compiler) Compile(p filter.Predicate) (Query, error) {
	if p == nil {
		return Query{}, fmt.Errorf("cannot compile nil filter")
	}
	if err := filter.Validate(p); err != nil {
		return Query{}, err
	}

	frag := c.compilePredicate(p)
	sql := fmt.Sprintf("SELECT id, %s FROM %s WHERE %s ORDER BY seq ASC, id ASC COLLATE BINARY",
		c.TagsColumn, c.Table, frag.sql)
	return Query{SQL: sql, Params: frag.params, Exact: frag.exact}, nil
}

// fragment is a compiled WHERE sub-expression. Fragments never evaluate
// to NULL, so they compose safely under NOT.
type fragment struct {
	sql    string
	params []any
	exact  bool
}

var (
	always = fragment{sql: "1 = 1", exact: true}
	never  = fragment{sql: "0 = 1", exact: true}
	// superset stands in for predicates SQL cannot express.
	superset = fragment{sql: "1 = 1", exact: false}
)

func (c *Compiler) compilePredicate(p filter.Predicate) fragment {
	switch pred := p.(type) {
	case filter.Has:
		if !pred.Path.IsSimple() {
			return superset
		}
		return c.present(pred.Path[0])
	case filter.Missing:
		if !pred.Path.IsSimple() {
			return superset
		}
		f := c.present(pred.Path[0])
		f.sql = "NOT " + f.sql
		return f
	case filter.Cmp:
		if !pred.Path.IsSimple() {
			return superset
		}
		return c.compileCmp(pred.Path[0], pred.Op, pred.Value)
	case filter.And:
		return c.combine(pred.Predicates, " AND ", always)
	case filter.Or:
		return c.combine(pred.Predicates, " OR ", never)
	}
	return superset
}

func (c *Compiler) combine(ps []filter.Predicate, sep string, empty fragment) fragment {
	if len(ps) == 0 {
		return empty
	}
	parts := make([]string, 0, len(ps))
	out := fragment{exact: true}
	for _, child := range ps {
		f := c.compilePredicate(child)
		parts = append(parts, f.sql)
		out.params = append(out.params, f.params...)
		out.exact = out.exact && f.exact
	}
	out.sql = "(" + strings.Join(parts, sep) + ")"
	return out
}

// present is true when the tag exists with a non-null value.
func (c *Compiler) present(tag string) fragment {
	return fragment{
		sql:    fmt.Sprintf("(COALESCE(json_type(%s, ?), 'null') != 'null')", c.TagsColumn),
		params: []any{jsonPath(tag)},
		exact:  true,
	}
}

func (c *Compiler) compileCmp(tag string, op filter.Op, lit haystack.Value) fragment {
	if op == filter.OpNe {
		eq := c.compileCmp(tag, filter.OpEq, lit)
		if !eq.exact {
			return superset
		}
		p := c.present(tag)
		return fragment{
			sql:    fmt.Sprintf("(%s AND NOT %s)", p.sql, eq.sql),
			params: append(p.params, eq.params...),
			exact:  true,
		}
	}

	switch v := lit.(type) {
	case haystack.Str:
		return c.compileStr(tag, op, string(v))
	case haystack.Number:
		return c.compileNumber(tag, op, v)
	case haystack.Ref:
		if op != filter.OpEq {
			return never
		}
		return fragment{
			sql:    fmt.Sprintf("COALESCE(json_extract(%[1]s, ?) = 'ref' AND json_extract(%[1]s, ?) = ?, 0)", c.TagsColumn),
			params: []any{jsonPath(tag) + "._kind", jsonPath(tag) + ".val", v.ID},
			exact:  true,
		}
	case haystack.Bool:
		if op != filter.OpEq {
			return never
		}
		jsonType := "false"
		if v {
			jsonType = "true"
		}
		return fragment{
			sql:    fmt.Sprintf("COALESCE(json_type(%s, ?) = ?, 0)", c.TagsColumn),
			params: []any{jsonPath(tag), jsonType},
			exact:  true,
		}
	}
	return superset
}

func (c *Compiler) compileStr(tag string, op filter.Op, s string) fragment {
	return fragment{
		sql: fmt.Sprintf("COALESCE(json_type(%[1]s, ?) = 'text' AND json_extract(%[1]s, ?) %[2]s ?, 0)",
			c.TagsColumn, sqlOp(op)),
		params: []any{jsonPath(tag), jsonPath(tag), s},
		exact:  true,
	}
}

// compileNumber compares against both Hayson number encodings: a bare JSON
// number (unitless) and {"_kind":"number","val":...,"unit":...}. Non-finite
// values are stored as the strings "INF", "-INF" and "NaN".
func (c *Compiler) compileNumber(tag string, op filter.Op, n haystack.Number) fragment {
	if math.IsNaN(n.Val) {
		return superset
	}
	path := jsonPath(tag)
	num := fmt.Sprintf(`(CASE
		WHEN json_type(%[1]s, ?) IN ('integer', 'real') THEN json_extract(%[1]s, ?)
		WHEN json_extract(%[1]s, ?) = 'number' THEN
			CASE json_extract(%[1]s, ?)
				WHEN 'INF' THEN 1e999
				WHEN '-INF' THEN -1e999
				WHEN 'NaN' THEN NULL
				ELSE json_extract(%[1]s, ?)
			END
	END)`, c.TagsColumn)
	params := []any{path, path, path + "._kind", path + ".val", path + ".val"}

	sql := fmt.Sprintf("%s %s ?", num, sqlOp(op))
	params = append(params, n.Val)

	// Equality is unit-sensitive; ordering against a unitless literal
	// ignores the stored unit.
	if op == filter.OpEq || n.Unit != "" {
		sql += fmt.Sprintf(" AND COALESCE(json_extract(%s, ?), '') = ?", c.TagsColumn)
		params = append(params, path+".unit", n.Unit)
	}
	return fragment{sql: "COALESCE(" + sql + ", 0)", params: params, exact: true}
}

func sqlOp(op filter.Op) string {
	if op == filter.OpEq {
		return "="
	}
	return string(op)
}

// jsonPath quotes the tag name so names like "x.y" cannot address nested
// keys. Tag names are validated identifiers before they get here.
func jsonPath(tag string) string {
	return `$."` + tag + `"`
}
