package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/haybind/internal/haystack"
)

// SeedFile is the YAML layout of a seed file:
//
//	records:
//	  - id: "@site"
//	    site: "m:"
//	    dis: Headquarters
//	  - id: "@p1"
//	    point: "m:"
//	    siteRef: "@site"
//	    curVal: "n:72 °F"
//
// Values use the JSON v3 prefixes understood by haystack.FromNative.
type SeedFile struct {
	Records []map[string]any `yaml:"records"`
}

// ParseSeed decodes seed YAML into records. Unknown top-level fields are
// rejected.
func ParseSeed(data []byte) ([]haystack.Dict, error) {
	var file SeedFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse seed YAML: %w", err)
	}

	recs := make([]haystack.Dict, 0, len(file.Records))
	for i, raw := range file.Records {
		rec, err := haystack.DictFromNative(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if _, ok := rec.ID(); !ok {
			return nil, fmt.Errorf("record %d: id must be a ref", i)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// LoadSeed reads a seed file.
func LoadSeed(path string) ([]haystack.Dict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	recs, err := ParseSeed(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// Seed stores every record of the seed file at path. Returns the number
// of records stored.
func (s *Store) Seed(ctx context.Context, path string) (int, error) {
	recs, err := LoadSeed(path)
	if err != nil {
		return 0, err
	}
	if err := s.Put(ctx, recs...); err != nil {
		return 0, err
	}
	return len(recs), nil
}
