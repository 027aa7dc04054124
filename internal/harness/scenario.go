package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/master"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/simlog"
)

// Scenario defines one end-to-end simulation run and its expectations.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Workers           int    `yaml:"workers"`
	SpawnLimit        int    `yaml:"spawn_limit"`
	ClockLimitSeconds uint32 `yaml:"clock_limit_seconds"`

	// FixedBudget gives every worker the same budget. If nil, budgets are
	// random.
	FixedBudget *uint32 `yaml:"fixed_budget,omitempty"`

	// MaxDurationMillis is the wall-clock limit. If nil, the limit is disabled.
	MaxDurationMillis *int `yaml:"max_duration_millis,omitempty"`

	// InterruptAfterMillis, if set, interrupts the run after that long.
	InterruptAfterMillis *int `yaml:"interrupt_after_millis,omitempty"`

	Expect ExpectClause `yaml:"expect"`

	// Assertions validate the recorded event stream.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ExpectClause specifies the expected outcome.
type ExpectClause struct {
	// StopReason is the expected reason name (e.g. "clock limit").
	StopReason string `yaml:"stop_reason"`
}

// Assertion validates the event stream.
type Assertion struct {
	Type string `yaml:"type"`

	// Kind is the event kind (used by event_count).
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number of events (used by event_count).
	Count int `yaml:"count,omitempty"`

	// Kinds is the expected order of first occurrence (used by event_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Reason is the expected stop reason (used by stop_reason).
	Reason string `yaml:"reason,omitempty"`
}

// Assertion type constants.
const (
	AssertStopReason    = "stop_reason"
	AssertEventCount    = "event_count"
	AssertEventOrder    = "event_order"
	AssertSpawnSequence = "spawn_sequence"
)

var knownKinds = map[string]bool{
	string(simlog.KindSpawn):          true,
	string(simlog.KindCompletion):     true,
	string(simlog.KindTokenReclaimed): true,
	string(simlog.KindWorkerCrashed):  true,
	string(simlog.KindStop):           true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
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
	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	if s.SpawnLimit < 0 {
		return fmt.Errorf("spawn_limit must be non-negative")
	}
	if _, err := master.ParseStopReason(s.Expect.StopReason); err != nil {
		return fmt.Errorf("expect.stop_reason: %w", err)
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStopReason:
		if _, err := master.ParseStopReason(a.Reason); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertEventCount:
		if !knownKinds[a.Kind] {
			return fmt.Errorf("assertions[%d]: unknown event kind %q", index, a.Kind)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for event_order", index)
		}
		for _, k := range a.Kinds {
			if !knownKinds[k] {
				return fmt.Errorf("assertions[%d]: unknown event kind %q", index, k)
			}
		}
	case AssertSpawnSequence:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
