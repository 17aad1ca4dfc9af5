package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/haybind/internal/filter"
	"github.com/roach88/haybind/internal/haystack"
)

// ErrUnsupportedExpr is returned by Evaluate for expressions outside the
// supported read forms.
var ErrUnsupportedExpr = errors.New("unsupported expression")

// ReadByIDs returns the records with the given ids, in the order given.
// Fails with ErrNotFound if any id is unknown.
func (s *Store) ReadByIDs(ctx context.Context, ids []haystack.Ref) (haystack.Grid, error) {
	if err := s.expireWrites(ctx); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return haystack.EmptyGrid(), nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.ID
	}
	found, err := s.queryGrid(ctx,
		"SELECT id, tags FROM entities WHERE id IN ("+placeholders+") ORDER BY seq ASC, id ASC COLLATE BINARY",
		args...)
	if err != nil {
		return nil, fmt.Errorf("read by ids: %w", err)
	}

	out := make(haystack.Grid, 0, len(ids))
	for _, id := range ids {
		rec, ok := found.Find(id.ID)
		if !ok {
			return nil, fmt.Errorf("read @%s: %w", id.ID, ErrNotFound)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadByFilter returns every record matching the filter text.
func (s *Store) ReadByFilter(ctx context.Context, text string) (haystack.Grid, error) {
	pred, err := filter.Parse(text)
	if err != nil {
		return nil, err
	}
	return s.ReadMatching(ctx, pred)
}

// ReadMatching returns every record matching pred.
func (s *Store) ReadMatching(ctx context.Context, pred filter.Predicate) (haystack.Grid, error) {
	if err := s.expireWrites(ctx); err != nil {
		return nil, err
	}
	q, err := s.compiler.Compile(pred)
	if err != nil {
		return nil, err
	}
	rows, err := s.queryGrid(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", pred.String(), err)
	}
	if q.Exact {
		return rows, nil
	}

	resolve := s.resolver(ctx)
	out := haystack.EmptyGrid()
	for _, rec := range rows {
		if filter.Match(pred, rec, resolve) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Evaluate runs one of the read expressions:
//
//	readAll(<filter>)     every match
//	read(<filter>)        first match, ErrNotFound when none
//	readById(@id)         one record
//	readByIds([@a, @b])   records in the order given
func (s *Store) Evaluate(ctx context.Context, expr string) (haystack.Grid, error) {
	name, arg, ok := splitCall(expr)
	if !ok {
		return nil, fmt.Errorf("eval %q: %w", expr, ErrUnsupportedExpr)
	}
	switch name {
	case "readAll":
		return s.ReadByFilter(ctx, arg)
	case "read":
		g, err := s.ReadByFilter(ctx, arg)
		if err != nil {
			return nil, err
		}
		if g.Len() == 0 {
			return nil, fmt.Errorf("read(%s): %w", arg, ErrNotFound)
		}
		return g[:1], nil
	case "readById":
		ids, err := parseRefs(arg)
		if err != nil || len(ids) != 1 {
			return nil, fmt.Errorf("eval %q: expected one ref", expr)
		}
		return s.ReadByIDs(ctx, ids)
	case "readByIds":
		inner, ok := strings.CutPrefix(arg, "[")
		if !ok || !strings.HasSuffix(inner, "]") {
			return nil, fmt.Errorf("eval %q: expected a list of refs", expr)
		}
		ids, err := parseRefs(strings.TrimSuffix(inner, "]"))
		if err != nil {
			return nil, fmt.Errorf("eval %q: %w", expr, err)
		}
		return s.ReadByIDs(ctx, ids)
	}
	return nil, fmt.Errorf("eval %q: %w", expr, ErrUnsupportedExpr)
}

// splitCall splits "name(arg)" into its parts.
func splitCall(expr string) (name, arg string, ok bool) {
	expr = strings.TrimSpace(expr)
	open := strings.IndexByte(expr, '(')
	if open <= 0 || !strings.HasSuffix(expr, ")") {
		return "", "", false
	}
	return expr[:open], strings.TrimSpace(expr[open+1 : len(expr)-1]), true
}

// parseRefs parses a comma separated list of @refs.
func parseRefs(s string) ([]haystack.Ref, error) {
	var out []haystack.Ref
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, ok := strings.CutPrefix(part, "@")
		if !ok || id == "" {
			return nil, fmt.Errorf("bad ref %q", part)
		}
		out = append(out, haystack.Ref{ID: id})
	}
	return out, nil
}

// lookup returns one record, or false when it does not exist.
func (s *Store) lookup(ctx context.Context, id string) (haystack.Dict, bool, error) {
	return s.lookupIn(ctx, s.db, id)
}

// lookupIn is lookup inside a transaction. With a single connection,
// reads during a transaction must go through it.
func (s *Store) lookupIn(ctx context.Context, q querier, id string) (haystack.Dict, bool, error) {
	var tags string
	err := q.QueryRowContext(ctx, "SELECT tags FROM entities WHERE id = ?", id).Scan(&tags)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup @%s: %w", id, err)
	}
	rec, err := unmarshalTags(tags)
	if err != nil {
		return nil, false, fmt.Errorf("lookup @%s: %w", id, err)
	}
	return rec, true, nil
}

// resolver dereferences refs for filter.Match, caching within one read.
// Lookup errors count as unresolved refs.
func (s *Store) resolver(ctx context.Context) filter.Resolver {
	cache := make(map[string]haystack.Dict)
	return func(ref haystack.Ref) (haystack.Dict, bool) {
		if rec, ok := cache[ref.ID]; ok {
			return rec, rec != nil
		}
		rec, ok, err := s.lookup(ctx, ref.ID)
		if err != nil {
			s.logger.Warn("ref lookup failed", "ref", ref.ID, "error", err)
		}
		if !ok {
			rec = nil
		}
		cache[ref.ID] = rec
		return rec, rec != nil
	}
}

// queryGrid runs a query selecting (id, tags).
// Returns an empty grid (not nil) when no rows match.
func (s *Store) queryGrid(ctx context.Context, query string, args ...any) (haystack.Grid, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := haystack.EmptyGrid()
	for rows.Next() {
		var id, tags string
		if err := rows.Scan(&id, &tags); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		rec, err := unmarshalTags(tags)
		if err != nil {
			return nil, fmt.Errorf("entity @%s: %w", id, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}
