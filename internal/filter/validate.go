package filter

import (
	"fmt"
)

// ValidationError reports a structurally invalid predicate tree.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid filter (%s): %s", e.Field, e.Message)
	}
	return "invalid filter: " + e.Message
}

// Validate checks a predicate tree built by hand rather than by Parse.
// Parse never produces an invalid tree.
func Validate(p Predicate) error {
	switch pred := p.(type) {
	case nil:
		return &ValidationError{Message: "nil predicate"}
	case Has:
		return validatePath(pred.Path)
	case Missing:
		return validatePath(pred.Path)
	case Cmp:
		if err := validatePath(pred.Path); err != nil {
			return err
		}
		switch pred.Op {
		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		default:
			return &ValidationError{Field: pred.Path.String(), Message: fmt.Sprintf("unknown operator %q", pred.Op)}
		}
		if pred.Value == nil {
			return &ValidationError{Field: pred.Path.String(), Message: "comparison needs a literal"}
		}
		return nil
	case And:
		return validateChildren("and", pred.Predicates)
	case Or:
		return validateChildren("or", pred.Predicates)
	}
	return &ValidationError{Message: fmt.Sprintf("unsupported predicate %T", p)}
}

func validateChildren(field string, ps []Predicate) error {
	for i, child := range ps {
		if err := Validate(child); err != nil {
			return fmt.Errorf("%s[%d]: %w", field, i, err)
		}
	}
	return nil
}

func validatePath(path Path) error {
	if len(path) == 0 {
		return &ValidationError{Message: "empty path"}
	}
	for _, seg := range path {
		if seg == "" || !isNameStart(seg[0]) {
			return &ValidationError{Field: path.String(), Message: fmt.Sprintf("bad tag name %q", seg)}
		}
		for i := 1; i < len(seg); i++ {
			if !isNamePart(seg[i]) {
				return &ValidationError{Field: path.String(), Message: fmt.Sprintf("bad tag name %q", seg)}
			}
		}
	}
	return nil
}
