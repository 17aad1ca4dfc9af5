package haystack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces a canonical JSON form used for identity:
// dependency keys, grid change detection and golden traces.
//
// Differences from encoding/json:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping
//  3. Strings are NFC normalized
//  4. Haystack values are tagged with their kind so Str("1") and
//     Number{1} never collide
//
// Supported inputs are Haystack values, Grid, and the plain Go scalars,
// slices and string-keyed maps that dependency lists are made of.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case Marker:
		buf.WriteString(`{"_kind":"marker"}`)
	case Remove:
		buf.WriteString(`{"_kind":"remove"}`)
	case Bool:
		writeCanonicalBool(buf, bool(val))
	case bool:
		writeCanonicalBool(buf, val)
	case Str:
		return writeCanonicalString(buf, string(val))
	case string:
		return writeCanonicalString(buf, val)
	case Number:
		buf.WriteString(`{"_kind":"number","unit":`)
		if err := writeCanonicalString(buf, val.Unit); err != nil {
			return err
		}
		buf.WriteString(`,"val":`)
		buf.WriteString(canonicalFloat(val.Val))
		buf.WriteByte('}')
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
	case float64:
		buf.WriteString(canonicalFloat(val))
	case time.Duration:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Ref:
		buf.WriteString(`{"_kind":"ref","val":`)
		if err := writeCanonicalString(buf, val.ID); err != nil {
			return err
		}
		buf.WriteByte('}')
	case List:
		items := make([]any, len(val))
		for i, e := range val {
			items[i] = e
		}
		return writeCanonicalArray(buf, items)
	case Grid:
		items := make([]any, len(val))
		for i, row := range val {
			items[i] = row
		}
		return writeCanonicalArray(buf, items)
	case []any:
		return writeCanonicalArray(buf, val)
	case []string:
		items := make([]any, len(val))
		for i, e := range val {
			items[i] = e
		}
		return writeCanonicalArray(buf, items)
	case []Ref:
		items := make([]any, len(val))
		for i, e := range val {
			items[i] = e
		}
		return writeCanonicalArray(buf, items)
	case Dict:
		m := make(map[string]any, len(val))
		for k, e := range val {
			m[k] = e
		}
		return writeCanonicalObject(buf, m)
	case map[string]any:
		return writeCanonicalObject(buf, val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeCanonicalBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
}

// canonicalFloat renders the shortest round-trip form; the non-finite
// values are quoted since JSON has no literal for them.
func canonicalFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return `"NaN"`
	case math.IsInf(f, 1):
		return `"INF"`
	case math.IsInf(f, -1):
		return `"-INF"`
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// writeCanonicalString writes an NFC-normalized JSON string without HTML
// escaping. U+2028 and U+2029 are left unescaped.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters. An escape preceded by an odd
// run of backslashes is literal text and is kept.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+5 < len(data) && data[i+1] == 'u' &&
			data[i+2] == '2' && data[i+3] == '0' && data[i+4] == '2' &&
			(data[i+5] == '8' || data[i+5] == '9') {
			run := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				run++
			}
			if run%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

func writeCanonicalArray(buf *bytes.Buffer, items []any) error {
	buf.WriteByte('[')
	for i, e := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonical(buf, e); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeCanonicalObject(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := writeCanonical(buf, m[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}
