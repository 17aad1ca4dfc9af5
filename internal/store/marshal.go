package store

import (
	"fmt"

	"github.com/roach88/haybind/internal/haystack"
)

// marshalTags converts a record to Hayson TEXT for the tags column.
func marshalTags(rec haystack.Dict) (string, error) {
	data, err := haystack.MarshalHayson(rec)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(data), nil
}

// unmarshalTags parses the tags column.
func unmarshalTags(data string) (haystack.Dict, error) {
	rec, err := haystack.UnmarshalDict([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return rec, nil
}

// marshalValue converts a single value to Hayson TEXT for point_writes.val.
func marshalValue(v haystack.Value) (string, error) {
	data, err := haystack.MarshalHayson(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

func unmarshalValue(data string) (haystack.Value, error) {
	v, err := haystack.UnmarshalHayson([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}
