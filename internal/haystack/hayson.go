package haystack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// MarshalHayson encodes a value as Hayson (the Haystack 4 JSON encoding).
// Dict keys are written in sorted order so output is stable.
func MarshalHayson(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeHayson(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeHayson(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case Marker:
		buf.WriteString(`{"_kind":"marker"}`)
	case Remove:
		buf.WriteString(`{"_kind":"remove"}`)
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Str:
		b, err := json.Marshal(string(val))
		if err != nil {
			return err
		}
		buf.Write(b)
	case Number:
		return writeHaysonNumber(buf, val)
	case Ref:
		buf.WriteString(`{"_kind":"ref","val":`)
		b, _ := json.Marshal(val.ID)
		buf.Write(b)
		if val.Dis != "" {
			buf.WriteString(`,"dis":`)
			b, _ = json.Marshal(val.Dis)
			buf.Write(b)
		}
		buf.WriteByte('}')
	case List:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeHayson(buf, e); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Dict:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeHayson(buf, val[k]); err != nil {
				return fmt.Errorf("%q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown haystack value %T", v)
	}
	return nil
}

func writeHaysonNumber(buf *bytes.Buffer, n Number) error {
	special := math.IsNaN(n.Val) || math.IsInf(n.Val, 0)
	if n.Unit == "" && !special {
		b, err := json.Marshal(n.Val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
	buf.WriteString(`{"_kind":"number","val":`)
	switch {
	case math.IsNaN(n.Val):
		buf.WriteString(`"NaN"`)
	case math.IsInf(n.Val, 1):
		buf.WriteString(`"INF"`)
	case math.IsInf(n.Val, -1):
		buf.WriteString(`"-INF"`)
	default:
		b, err := json.Marshal(n.Val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	if n.Unit != "" {
		buf.WriteString(`,"unit":`)
		b, _ := json.Marshal(n.Unit)
		buf.Write(b)
	}
	buf.WriteByte('}')
	return nil
}

// UnmarshalHayson decodes Hayson bytes into a value.
func UnmarshalHayson(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode hayson: %w", err)
	}
	return fromHaysonNative(raw)
}

// UnmarshalDict decodes a Hayson object into a Dict.
func UnmarshalDict(data []byte) (Dict, error) {
	v, err := UnmarshalHayson(data)
	if err != nil {
		return nil, err
	}
	d, ok := v.(Dict)
	if !ok {
		return nil, fmt.Errorf("expected hayson dict, got %s", v.Kind())
	}
	return d, nil
}

func fromHaysonNative(raw any) (Value, error) {
	switch val := raw.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return Str(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %s: %w", val, err)
		}
		return Number{Val: f}, nil
	case float64:
		return Number{Val: val}, nil
	case []any:
		out := make(List, len(val))
		for i, e := range val {
			hv, err := fromHaysonNative(e)
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
			hv, err := fromHaysonNative(e)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			out[k] = hv
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported hayson value %T", raw)
}

func decodeHaysonObject(m map[string]any) (Value, error) {
	kind, _ := m["_kind"].(string)
	switch Kind(kind) {
	case KindMarker:
		return Marker{}, nil
	case KindRemove:
		return Remove{}, nil
	case KindNumber:
		n := Number{}
		if u, ok := m["unit"].(string); ok {
			n.Unit = u
		}
		switch v := m["val"].(type) {
		case string:
			parsed, err := ParseNumber(v)
			if err != nil {
				return nil, err
			}
			n.Val = parsed.Val
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, err
			}
			n.Val = f
		case float64:
			n.Val = v
		case int:
			n.Val = float64(v)
		default:
			return nil, fmt.Errorf("hayson number: bad val %T", m["val"])
		}
		return n, nil
	case KindRef:
		id, ok := m["val"].(string)
		if !ok {
			return nil, fmt.Errorf("hayson ref: missing val")
		}
		dis, _ := m["dis"].(string)
		return Ref{ID: id, Dis: dis}, nil
	case KindDict:
		out := make(Dict, len(m))
		for k, e := range m {
			if k == "_kind" {
				continue
			}
			hv, err := fromHaysonNative(e)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			out[k] = hv
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported hayson kind %q", kind)
}

// MarshalJSON encodes the grid as a Hayson grid with a column list derived
// from the union of row tags, in first-seen order.
func (g Grid) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"_kind":"grid","meta":{"ver":"3.0"},"cols":[`)
	seen := make(map[string]bool)
	n := 0
	for _, row := range g {
		for _, k := range row.SortedKeys() {
			if seen[k] {
				continue
			}
			seen[k] = true
			if n > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.WriteString(`{"name":`)
			buf.Write(kb)
			buf.WriteByte('}')
			n++
		}
	}
	buf.WriteString(`],"rows":[`)
	for i, row := range g {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeHayson(&buf, row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a Hayson grid, or a bare JSON array of dicts.
func (g *Grid) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	var rows []json.RawMessage
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return err
		}
	} else {
		var wire struct {
			Rows []json.RawMessage `json:"rows"`
		}
		if err := json.Unmarshal(trimmed, &wire); err != nil {
			return err
		}
		rows = wire.Rows
	}
	out := make(Grid, 0, len(rows))
	for i, raw := range rows {
		d, err := UnmarshalDict(raw)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, d)
	}
	*g = out
	return nil
}
