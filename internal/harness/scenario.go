package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a binding conformance scenario: records to seed, a
// sequence of steps driving bindings, and assertions on the resulting
// binding states.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Seed lists the records stored before the first step. Values use
	// the JSON v3 prefixes of store seed files.
	Seed []map[string]any `yaml:"seed"`

	// Env configures the binding environment.
	Env EnvSpec `yaml:"env,omitempty"`

	// Steps run in order. Every step is followed by a settle and a
	// snapshot of all open bindings.
	Steps []Step `yaml:"steps"`

	// Assertions validate binding states.
	Assertions []Assertion `yaml:"assertions"`
}

// EnvSpec mirrors binding.Environment settings.
type EnvSpec struct {
	OpsOnly      bool          `yaml:"opsOnly,omitempty"`
	PollInterval time.Duration `yaml:"pollInterval,omitempty"`
	WriteLevel   int           `yaml:"writeLevel,omitempty"`
	Who          string        `yaml:"who,omitempty"`
}

// Step is one scenario action. Op selects which fields apply:
//
//	resolve, watch   name + one of ids/filter/expr (+ label, poll for watch)
//	point            name + id: live curVal of a point
//	tag              name + id + tag: live tag value
//	write            name + value (+ level, who, duration): write through a scalar
//	commit           id + tag + value: change a record behind the bindings' back
//	store_write      id + value (+ level, who): point write behind the bindings' back
//	poll             poll every open subscription once
//	refresh, close   name
type Step struct {
	Op       string        `yaml:"op"`
	Name     string        `yaml:"name,omitempty"`
	IDs      []string      `yaml:"ids,omitempty"`
	Filter   string        `yaml:"filter,omitempty"`
	Expr     string        `yaml:"expr,omitempty"`
	Label    string        `yaml:"label,omitempty"`
	Poll     time.Duration `yaml:"poll,omitempty"`
	ID       string        `yaml:"id,omitempty"`
	Tag      string        `yaml:"tag,omitempty"`
	Value    any           `yaml:"value,omitempty"`
	Level    int           `yaml:"level,omitempty"`
	Who      string        `yaml:"who,omitempty"`
	Duration time.Duration `yaml:"duration,omitempty"`
}

// Step op constants.
const (
	OpResolve    = "resolve"
	OpWatch      = "watch"
	OpPoint      = "point"
	OpTag        = "tag"
	OpWrite      = "write"
	OpCommit     = "commit"
	OpStoreWrite = "store_write"
	OpPoll       = "poll"
	OpRefresh    = "refresh"
	OpClose      = "close"
)

// Assertion checks one binding's state. Unset fields are not checked.
type Assertion struct {
	// Binding names the binding under test.
	Binding string `yaml:"binding"`

	// Step selects the snapshot taken after that step (0-based). Nil
	// means the final snapshot.
	Step *int `yaml:"step,omitempty"`

	Loading   *bool    `yaml:"loading,omitempty"`
	Completed *uint64  `yaml:"completed,omitempty"`
	Updates   *uint64  `yaml:"updates,omitempty"`
	Rows      []string `yaml:"rows,omitempty"`

	// Error is the expected error code; "" asserts no error.
	Error *string `yaml:"error,omitempty"`

	// Value is the expected scalar value, in JSON v3 form.
	Value any `yaml:"value,omitempty"`

	// Closed asserts the binding is absent from the snapshot.
	Closed bool `yaml:"closed,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if a.Binding == "" {
			return fmt.Errorf("assertions[%d]: binding is required", i)
		}
		if a.Step != nil && (*a.Step < 0 || *a.Step >= len(s.Steps)) {
			return fmt.Errorf("assertions[%d]: step %d out of range", i, *a.Step)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Op {
	case OpResolve, OpWatch:
		if step.Name == "" {
			return fmt.Errorf("%s: name is required", step.Op)
		}
		n := 0
		for _, set := range []bool{len(step.IDs) > 0, step.Filter != "", step.Expr != ""} {
			if set {
				n++
			}
		}
		if n != 1 {
			return fmt.Errorf("%s: exactly one of ids, filter or expr is required", step.Op)
		}
	case OpPoint, OpTag:
		if step.Name == "" || step.ID == "" {
			return fmt.Errorf("%s: name and id are required", step.Op)
		}
		if step.Op == OpTag && step.Tag == "" {
			return fmt.Errorf("tag: tag is required")
		}
	case OpWrite, OpRefresh, OpClose:
		if step.Name == "" {
			return fmt.Errorf("%s: name is required", step.Op)
		}
	case OpCommit:
		if step.ID == "" || step.Tag == "" {
			return fmt.Errorf("commit: id and tag are required")
		}
	case OpStoreWrite:
		if step.ID == "" {
			return fmt.Errorf("store_write: id is required")
		}
	case OpPoll:
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}
