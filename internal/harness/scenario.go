package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a sequence of calls against one fresh service, followed by
// assertions on the final state.
type Scenario struct {
	// Name identifies the scenario and its golden transcript.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one call, cancellation or caller removal.
type Step struct {
	// Name labels the step for assertions. Defaults to "<index>:<method>".
	Name string `yaml:"name,omitempty"`

	Call     string `yaml:"call,omitempty"`
	Category string `yaml:"category,omitempty"`
	Token    string `yaml:"token,omitempty"`

	// Subscription keys the watch opened or cancelled by the step.
	Subscription string `yaml:"subscription,omitempty"`

	// Params is encoded as the JSON params object. RawParams, when set, is
	// sent verbatim instead.
	Params    map[string]any `yaml:"params,omitempty"`
	RawParams string         `yaml:"raw_params,omitempty"`

	Cancel bool `yaml:"cancel,omitempty"`

	// RemoveCaller runs the caller-removed cascade for an app id.
	RemoveCaller string `yaml:"remove_caller,omitempty"`

	// Expect is matched against the response as a subset.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// label returns the name assertions refer to the step by.
func (s Step) label(index int) string {
	if s.Name != "" {
		return s.Name
	}
	switch {
	case s.RemoveCaller != "":
		return fmt.Sprintf("%d:remove_caller", index+1)
	case s.Cancel:
		return fmt.Sprintf("%d:cancel", index+1)
	default:
		return fmt.Sprintf("%d:%s", index+1, s.Call)
	}
}

// Assertion checks the state after all steps ran.
type Assertion struct {
	Type string `yaml:"type"`

	// Step is the watch step (notified).
	Step string `yaml:"step,omitempty"`

	// Count is the expected number (notified, pending_watches, revision).
	Count int `yaml:"count,omitempty"`

	// ID and Token select the document read (document).
	ID    string `yaml:"id,omitempty"`
	Token string `yaml:"token,omitempty"`

	// Expect is matched against the document as a subset (document).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts the document cannot be read (document).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion types.
const (
	AssertNotified       = "notified"
	AssertPendingWatches = "pending_watches"
	AssertDocument       = "document"
	AssertRevision       = "revision"
)

// LoadScenario reads and validates a scenario file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
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

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	labels := make(map[string]bool, len(s.Steps))
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
		label := step.label(i)
		if labels[label] {
			return fmt.Errorf("steps[%d]: duplicate step name %q", i, label)
		}
		labels[label] = true
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, labels); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	actions := 0
	if step.Call != "" {
		actions++
	}
	if step.Cancel {
		actions++
	}
	if step.RemoveCaller != "" {
		actions++
	}
	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one of call, cancel or remove_caller is required", i)
	}

	if step.Cancel && step.Token == "" && step.Subscription == "" {
		return fmt.Errorf("steps[%d]: cancel requires token or subscription", i)
	}
	if step.Params != nil && step.RawParams != "" {
		return fmt.Errorf("steps[%d]: params and raw_params are exclusive", i)
	}
	return nil
}

func validateAssertion(i int, a Assertion, labels map[string]bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	case AssertNotified:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for notified", i)
		}
		if !labels[a.Step] {
			return fmt.Errorf("assertions[%d]: unknown step %q", i, a.Step)
		}
	case AssertPendingWatches, AssertRevision:
	case AssertDocument:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for document", i)
		}
		if a.Token == "" {
			return fmt.Errorf("assertions[%d]: token is required for document", i)
		}
		if a.Absent == (a.Expect != nil) {
			return fmt.Errorf("assertions[%d]: document needs exactly one of expect or absent", i)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", i)
	}
	return nil
}
