package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a convergence test: steps run against a set of replicas,
// then assertions check the logs they ended up with.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	Document DocumentSpec `yaml:"document"`

	// Replicas names the replicas. The document is created on the first.
	Replicas []string `yaml:"replicas"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// DocumentSpec is the document every step writes to.
type DocumentSpec struct {
	ID      string `yaml:"id"`
	Type    string `yaml:"type"`
	Version int    `yaml:"version,omitempty"` // 0 means latest
	Branch  string `yaml:"branch,omitempty"`
}

// Step either executes actions on Replica or, when Sync is set, copies logs
// between replicas.
type Step struct {
	Replica string       `yaml:"replica,omitempty"`
	Actions []ActionStep `yaml:"actions,omitempty"`

	// ExpectError, if set, must be a substring of the error of one of the
	// step's jobs. Without it every job must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`

	Sync *SyncStep `yaml:"sync,omitempty"`
}

// ActionStep is one action with a fixed id and timestamp.
type ActionStep struct {
	ID        string         `yaml:"id"`
	Type      string         `yaml:"type"`
	Scope     string         `yaml:"scope"`
	Timestamp int64          `yaml:"timestamp"`
	Input     map[string]any `yaml:"input,omitempty"`
}

// SyncStep loads the logs of From into To. Scopes defaults to every scope
// except local, document scope first.
type SyncStep struct {
	From   string   `yaml:"from"`
	To     string   `yaml:"to"`
	Scopes []string `yaml:"scopes,omitempty"`
}

// Assertion checks the final logs.
type Assertion struct {
	Type string `yaml:"type"`

	Replica string   `yaml:"replica,omitempty"`
	Scope   string   `yaml:"scope,omitempty"`
	Scopes  []string `yaml:"scopes,omitempty"` // converged

	// Actions are action ids (projection, rejected).
	Actions []string `yaml:"actions,omitempty"`

	Count int `yaml:"count,omitempty"` // log_length

	// Expect is matched against the top-level keys of the state (state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertConverged  = "converged"
	AssertProjection = "projection"
	AssertLogLength  = "log_length"
	AssertRejected   = "rejected"
	AssertState      = "state"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Document.ID == "" || s.Document.Type == "" {
		return fmt.Errorf("document id and type are required")
	}
	if len(s.Replicas) == 0 {
		return fmt.Errorf("replicas list is required and must be non-empty")
	}
	replicas := map[string]bool{}
	for _, r := range s.Replicas {
		if r == "" {
			return fmt.Errorf("replica names must be non-empty")
		}
		if replicas[r] {
			return fmt.Errorf("duplicate replica %q", r)
		}
		replicas[r] = true
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step, replicas); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, replicas); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step, replicas map[string]bool) error {
	if step.Sync != nil {
		if step.Replica != "" || len(step.Actions) > 0 {
			return fmt.Errorf("steps[%d]: sync steps take no replica or actions", index)
		}
		if !replicas[step.Sync.From] || !replicas[step.Sync.To] {
			return fmt.Errorf("steps[%d]: sync between unknown replicas %q and %q", index, step.Sync.From, step.Sync.To)
		}
		if step.Sync.From == step.Sync.To {
			return fmt.Errorf("steps[%d]: sync from a replica to itself", index)
		}
		return nil
	}

	if !replicas[step.Replica] {
		return fmt.Errorf("steps[%d]: unknown replica %q", index, step.Replica)
	}
	if len(step.Actions) == 0 {
		return fmt.Errorf("steps[%d]: actions list is required", index)
	}
	for j, a := range step.Actions {
		if a.ID == "" || a.Type == "" || a.Scope == "" {
			return fmt.Errorf("steps[%d].actions[%d]: id, type and scope are required", index, j)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion, replicas map[string]bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertConverged:
		if len(a.Scopes) == 0 {
			return fmt.Errorf("assertions[%d]: scopes are required for converged", index)
		}
		return nil
	case AssertProjection, AssertLogLength, AssertRejected, AssertState:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if !replicas[a.Replica] {
		return fmt.Errorf("assertions[%d]: unknown replica %q", index, a.Replica)
	}
	if a.Scope == "" {
		return fmt.Errorf("assertions[%d]: scope is required for %s", index, a.Type)
	}
	switch a.Type {
	case AssertLogLength:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for state", index)
		}
	}
	return nil
}
