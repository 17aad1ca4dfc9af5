package binding

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/haybind/internal/haystack"
)

// Query describes what a binding reads.
//
// This is a sealed interface - only ByIDs, ByFilter and ByExpr implement
// it, and switches over it are exhaustive.
type Query interface {
	queryNode()

	// Text is the query in Haystack syntax, used as a default watch label
	// and in error messages.
	Text() string

	// canonical is the form hashed into dependency keys.
	canonical() any
}

// ByIDs reads the given records, in order.
type ByIDs struct {
	IDs []haystack.Ref
}

func (ByIDs) queryNode() {}

func (q ByIDs) Text() string {
	parts := make([]string, len(q.IDs))
	for i, id := range q.IDs {
		parts[i] = id.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (q ByIDs) canonical() any {
	return map[string]any{"ids": q.IDs}
}

// ByFilter reads every record matching a Haystack filter.
type ByFilter struct {
	Filter string
}

func (ByFilter) queryNode() {}

func (q ByFilter) Text() string { return q.Filter }

func (q ByFilter) canonical() any {
	return map[string]any{"filter": q.Filter}
}

// ByExpr evaluates a server-side expression.
type ByExpr struct {
	Expr string
}

func (ByExpr) queryNode() {}

func (q ByExpr) Text() string { return q.Expr }

func (q ByExpr) canonical() any {
	return map[string]any{"expr": q.Expr}
}

// QueryFunc performs one read. It runs off the engine goroutine.
type QueryFunc func(ctx context.Context) (haystack.Grid, error)

// Func returns the QueryFunc that reads q through env's client.
//
// ByFilter uses ReadByFilter in ops-only environments and evaluates
// readAll(<filter>) otherwise. ByExpr fails with ErrCodeOpsOnly in
// ops-only environments.
func Func(env *Environment, q Query) QueryFunc {
	c := env.Client
	switch query := q.(type) {
	case ByIDs:
		ids := append([]haystack.Ref(nil), query.IDs...)
		return func(ctx context.Context) (haystack.Grid, error) {
			if len(ids) == 0 {
				return haystack.EmptyGrid(), nil
			}
			return c.ReadByIDs(ctx, ids)
		}
	case ByFilter:
		if env.OpsOnly {
			return func(ctx context.Context) (haystack.Grid, error) {
				return c.ReadByFilter(ctx, query.Filter)
			}
		}
		expr := "readAll(" + query.Filter + ")"
		return func(ctx context.Context) (haystack.Grid, error) {
			return c.Evaluate(ctx, expr)
		}
	case ByExpr:
		if env.OpsOnly {
			return func(context.Context) (haystack.Grid, error) {
				return nil, &ResolutionError{
					Code:    ErrCodeOpsOnly,
					Message: "expressions are not allowed in ops-only mode",
					Query:   query.Expr,
				}
			}
		}
		return func(ctx context.Context) (haystack.Grid, error) {
			return c.Evaluate(ctx, query.Expr)
		}
	}
	return func(context.Context) (haystack.Grid, error) {
		return nil, fmt.Errorf("unsupported query %T", q)
	}
}

// dependencyKey hashes deps together with the environment fields every
// controller depends on. Values the canonical encoder does not know are
// keyed by their %#v rendering.
func dependencyKey(env *Environment, deps []any) string {
	items := make([]any, 0, len(deps)+2)
	for _, d := range deps {
		if q, ok := d.(Query); ok {
			d = q.canonical()
		}
		if _, err := haystack.MarshalCanonical(d); err != nil {
			d = fmt.Sprintf("%T:%#v", d, d)
		}
		items = append(items, d)
	}
	items = append(items, env.ID, env.OpsOnly)

	key, err := haystack.Key(haystack.DomainDeps, items)
	if err != nil {
		// Every item is canonicalizable after the fallback above.
		panic(err)
	}
	return key
}
