package board

import (
	"fmt"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/haybind/internal/binding"
	"github.com/roach88/haybind/internal/filter"
	"github.com/roach88/haybind/internal/haystack"
)

// Binding is one compiled board entry.
type Binding struct {
	Name  string
	Query binding.Query

	// Label names the subscription of a live binding. Empty means the
	// watcher picks one.
	Label string

	// Poll is the requested poll interval of a live binding. Zero uses
	// the environment default.
	Poll time.Duration

	// Live selects a watch instead of a one-shot read.
	Live bool

	Pos token.Pos
}

// Request returns the watch request for a live binding.
func (b Binding) Request() binding.WatchRequest {
	return binding.WatchRequest{Query: b.Query, Label: b.Label, PollInterval: b.Poll}
}

var knownFields = map[string]bool{
	"ids": true, "filter": true, "expr": true, "label": true, "poll": true, "live": true,
}

// CompileBinding parses a CUE value into a Binding.
//
// The value should be the binding struct itself, e.g. the value at
// path "binding.zoneTemps".
func CompileBinding(v cue.Value) (*Binding, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	b := &Binding{Pos: v.Pos()}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		b.Name = labels[len(labels)-1].String()
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{Field: "binding", Message: "must be a struct", Pos: v.Pos()}
	}
	for iter.Next() {
		if !knownFields[iter.Selector().String()] {
			return nil, &CompileError{
				Field:   "binding",
				Message: fmt.Sprintf("unknown field %q", iter.Selector().String()),
				Pos:     iter.Value().Pos(),
			}
		}
	}

	var queries []binding.Query
	if idsVal := v.LookupPath(cue.ParsePath("ids")); idsVal.Exists() {
		ids, err := parseIDs(idsVal)
		if err != nil {
			return nil, err
		}
		queries = append(queries, binding.ByIDs{IDs: ids})
	}
	if filterVal := v.LookupPath(cue.ParsePath("filter")); filterVal.Exists() {
		text, err := filterVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if _, err := filter.Parse(text); err != nil {
			return nil, &CompileError{Field: "filter", Message: err.Error(), Pos: filterVal.Pos()}
		}
		queries = append(queries, binding.ByFilter{Filter: text})
	}
	if exprVal := v.LookupPath(cue.ParsePath("expr")); exprVal.Exists() {
		text, err := exprVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if strings.TrimSpace(text) == "" {
			return nil, &CompileError{Field: "expr", Message: "expr must not be empty", Pos: exprVal.Pos()}
		}
		queries = append(queries, binding.ByExpr{Expr: text})
	}
	switch len(queries) {
	case 0:
		return nil, &CompileError{Field: "query", Message: "one of ids, filter or expr is required", Pos: v.Pos()}
	case 1:
		b.Query = queries[0]
	default:
		return nil, &CompileError{Field: "query", Message: "only one of ids, filter or expr may be set", Pos: v.Pos()}
	}

	if labelVal := v.LookupPath(cue.ParsePath("label")); labelVal.Exists() {
		if b.Label, err = labelVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	if liveVal := v.LookupPath(cue.ParsePath("live")); liveVal.Exists() {
		if b.Live, err = liveVal.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	if pollVal := v.LookupPath(cue.ParsePath("poll")); pollVal.Exists() {
		s, err := pollVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return nil, &CompileError{
				Field:   "poll",
				Message: fmt.Sprintf("poll must be a positive duration, got %q", s),
				Pos:     pollVal.Pos(),
			}
		}
		b.Poll = d
	}

	return b, nil
}

// parseIDs accepts "@id" and bare "id" strings.
func parseIDs(v cue.Value) ([]haystack.Ref, error) {
	list, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: "ids", Message: "ids must be a list of strings", Pos: v.Pos()}
	}
	var ids []haystack.Ref
	for list.Next() {
		s, err := list.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		id := strings.TrimPrefix(s, "@")
		if id == "" {
			return nil, &CompileError{Field: "ids", Message: "empty id", Pos: list.Value().Pos()}
		}
		ids = append(ids, haystack.Ref{ID: id})
	}
	if len(ids) == 0 {
		return nil, &CompileError{Field: "ids", Message: "ids must not be empty", Pos: v.Pos()}
	}
	return ids, nil
}

// CompileError is a board error tied to a CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
