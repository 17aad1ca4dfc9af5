package haystack

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// FromNative converts a plain Go value (as produced by YAML or JSON
// decoding into any) into a Haystack value.
//
// Strings use the Haystack JSON v3 type prefixes:
//
//	"m:"          Marker
//	"-:"          Remove
//	"r:p1 Dis"    Ref with optional display name
//	"n:72.5 °F"   Number with optional unit
//	"s:text"      Str (use when text itself starts with a prefix)
//	"@p1"         Ref (Zinc shorthand)
//
// Anything else is a plain Str. Maps carrying "_kind" are decoded as
// Hayson; other maps become Dicts.
func FromNative(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return parseJSONv3(val)
	case int:
		return Number{Val: float64(val)}, nil
	case int64:
		return Number{Val: float64(val)}, nil
	case uint64:
		return Number{Val: float64(val)}, nil
	case float64:
		return Number{Val: val}, nil
	case float32:
		return Number{Val: float64(val)}, nil
	case time.Duration:
		return Number{Val: val.Seconds(), Unit: "s"}, nil
	case []any:
		out := make(List, len(val))
		for i, e := range val {
			hv, err := FromNative(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = hv
		}
		return out, nil
	case []string:
		out := make(List, len(val))
		for i, e := range val {
			hv, err := parseJSONv3(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = hv
		}
		return out, nil
	case map[string]any:
		if _, ok := val["_kind"]; ok {
			return decodeHaysonObject(val)
		}
		out := make(Dict, len(val))
		for k, e := range val {
			hv, err := FromNative(e)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			out[k] = hv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported native type %T", v)
	}
}

// DictFromNative converts a decoded map into a Dict.
func DictFromNative(m map[string]any) (Dict, error) {
	v, err := FromNative(m)
	if err != nil {
		return nil, err
	}
	d, ok := v.(Dict)
	if !ok {
		return nil, fmt.Errorf("expected dict, got %s", v.Kind())
	}
	return d, nil
}

func parseJSONv3(s string) (Value, error) {
	if strings.HasPrefix(s, "@") && len(s) > 1 {
		return parseRef(s[1:]), nil
	}
	if len(s) < 2 || s[1] != ':' {
		return Str(s), nil
	}
	body := s[2:]
	switch s[0] {
	case 'm':
		return Marker{}, nil
	case '-':
		return Remove{}, nil
	case 's':
		return Str(body), nil
	case 'r':
		return parseRef(body), nil
	case 'n':
		return ParseNumber(body)
	}
	return Str(s), nil
}

func parseRef(body string) Ref {
	id, dis, _ := strings.Cut(body, " ")
	return Ref{ID: id, Dis: dis}
}

// ParseNumber parses "72.5", "72.5 °F", "72.5°F", "NaN", "INF" and "-INF".
func ParseNumber(s string) (Number, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "NaN":
		return Number{Val: math.NaN()}, nil
	case strings.HasPrefix(s, "-INF"):
		return Number{Val: math.Inf(-1), Unit: strings.TrimSpace(s[4:])}, nil
	case strings.HasPrefix(s, "INF"):
		return Number{Val: math.Inf(1), Unit: strings.TrimSpace(s[3:])}, nil
	}
	end := numericPrefix(s)
	if end == 0 {
		return Number{}, fmt.Errorf("invalid number %q", s)
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return Number{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Number{Val: f, Unit: strings.TrimSpace(s[end:])}, nil
}

// numericPrefix returns the length of the leading float literal in s.
func numericPrefix(s string) int {
	i := 0
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}
	digits := 0
	for i < len(s) && (unicode.IsDigit(rune(s[i])) || s[i] == '.' || s[i] == '_') {
		if s[i] != '.' {
			digits++
		}
		i++
	}
	if digits == 0 {
		return 0
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '-' || s[j] == '+') {
			j++
		}
		k := j
		for k < len(s) && unicode.IsDigit(rune(s[k])) {
			k++
		}
		if k > j {
			i = k
		}
	}
	return i
}

// ToNative converts a Haystack value back to plain Go values using the
// JSON v3 prefixes, the inverse of FromNative. Used for YAML output.
func ToNative(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Marker:
		return "m:"
	case Remove:
		return "-:"
	case Bool:
		return bool(val)
	case Str:
		s := string(val)
		if len(s) >= 2 && s[1] == ':' || strings.HasPrefix(s, "@") {
			return "s:" + s
		}
		return s
	case Number:
		if val.Unit == "" && !math.IsNaN(val.Val) && !math.IsInf(val.Val, 0) {
			return val.Val
		}
		if val.Unit == "" {
			return "n:" + val.String()
		}
		return "n:" + strconv.FormatFloat(val.Val, 'g', -1, 64) + " " + val.Unit
	case Ref:
		if val.Dis != "" {
			return "r:" + val.ID + " " + val.Dis
		}
		return "r:" + val.ID
	case List:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToNative(e)
		}
		return out
	case Dict:
		out := make(map[string]any, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = ToNative(val[k])
		}
		return out
	}
	return nil
}
