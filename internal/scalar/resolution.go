package scalar

import (
	"fmt"
	"math"
	"time"

	"github.com/roach88/haybind/internal/client"
	"github.com/roach88/haybind/internal/haystack"
)

// ResolveTag is the reserved tag carrying a record's resolution metadata.
const ResolveTag = "_resolve"

// Resolution kinds as written in the "kind" field of _resolve.
const (
	KindPoint = "point"
	KindTag   = "tag"
)

// Resolution says how Dispatch derives a value from a record.
//
// This is a sealed interface: PointResolution and TagResolution are the
// only implementations.
type Resolution interface {
	resolutionNode()
	options() []Option
}

// PointResolution tracks the record's curVal.
type PointResolution struct {
	Poll  time.Duration
	Write client.WriteOptions
}

func (PointResolution) resolutionNode() {}

func (r PointResolution) options() []Option {
	return []Option{WithPollInterval(r.Poll), WithWriteOptions(r.Write)}
}

// TagResolution tracks ReadTag and writes WriteTag.
type TagResolution struct {
	ReadTag  string
	WriteTag string
	Poll     time.Duration
	Write    client.WriteOptions
}

func (TagResolution) resolutionNode() {}

func (r TagResolution) options() []Option {
	return []Option{WithPollInterval(r.Poll), WithWriteOptions(r.Write), WithWriteTag(r.WriteTag)}
}

// ParseResolution reads the _resolve tag of rec. It returns nil and no
// error when the tag is absent.
//
// The tag is a dict:
//
//	kind      "point" or "tag" (required)
//	tag       read tag, required for kind "tag"
//	writeTag  write tag, defaults to tag
//	poll      poll interval; a unitless number is seconds
//	level     write priority level 1-17
//	who       writer name
//	duration  how long a point write holds
func ParseResolution(rec haystack.Dict) (Resolution, error) {
	raw := rec.Get(ResolveTag)
	if raw == nil {
		return nil, nil
	}
	if _, ok := raw.(haystack.Null); ok {
		return nil, nil
	}
	meta, ok := raw.(haystack.Dict)
	if !ok {
		return nil, fmt.Errorf("%s: expected dict, got %s", ResolveTag, raw.Kind())
	}

	kind, err := optStr(meta, "kind")
	if err != nil {
		return nil, err
	}
	poll, err := optDuration(meta, "poll")
	if err != nil {
		return nil, err
	}
	write, err := parseWrite(meta)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindPoint:
		return PointResolution{Poll: poll, Write: write}, nil
	case KindTag:
		tag, err := optStr(meta, "tag")
		if err != nil {
			return nil, err
		}
		if tag == "" {
			return nil, fmt.Errorf("%s: kind %q requires a tag", ResolveTag, KindTag)
		}
		writeTag, err := optStr(meta, "writeTag")
		if err != nil {
			return nil, err
		}
		if writeTag == "" {
			writeTag = tag
		}
		return TagResolution{ReadTag: tag, WriteTag: writeTag, Poll: poll, Write: write}, nil
	case "":
		return nil, fmt.Errorf("%s: missing kind", ResolveTag)
	}
	return nil, fmt.Errorf("%s: unknown kind %q", ResolveTag, kind)
}

func parseWrite(meta haystack.Dict) (client.WriteOptions, error) {
	var w client.WriteOptions
	if v := meta.Get("level"); v != nil {
		n, ok := v.(haystack.Number)
		if !ok || n.Val != math.Trunc(n.Val) || n.Val < 1 || n.Val > 17 {
			return w, fmt.Errorf("%s.level: expected integer 1-17", ResolveTag)
		}
		w.Level = int(n.Val)
	}
	who, err := optStr(meta, "who")
	if err != nil {
		return w, err
	}
	w.Who = who
	d, err := optDuration(meta, "duration")
	if err != nil {
		return w, err
	}
	w.Duration = d
	return w, nil
}

func optStr(meta haystack.Dict, name string) (string, error) {
	v := meta.Get(name)
	if v == nil {
		return "", nil
	}
	s, ok := v.(haystack.Str)
	if !ok {
		return "", fmt.Errorf("%s.%s: expected str, got %s", ResolveTag, name, v.Kind())
	}
	return string(s), nil
}

func optDuration(meta haystack.Dict, name string) (time.Duration, error) {
	v := meta.Get(name)
	if v == nil {
		return 0, nil
	}
	n, ok := v.(haystack.Number)
	if !ok {
		return 0, fmt.Errorf("%s.%s: expected number, got %s", ResolveTag, name, v.Kind())
	}
	d, err := Duration(n)
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %w", ResolveTag, name, err)
	}
	return d, nil
}

// Duration converts a Haystack duration number. Unitless numbers are
// seconds.
func Duration(n haystack.Number) (time.Duration, error) {
	if math.IsNaN(n.Val) || math.IsInf(n.Val, 0) || n.Val < 0 {
		return 0, fmt.Errorf("invalid duration %s", n)
	}
	var unit time.Duration
	switch n.Unit {
	case "ms":
		unit = time.Millisecond
	case "", "s", "sec":
		unit = time.Second
	case "min":
		unit = time.Minute
	case "h", "hr":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("unsupported duration unit %q", n.Unit)
	}
	return time.Duration(n.Val * float64(unit)), nil
}
