package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// A scenario feeds a sequence of deltas to one instance of one flow and
// asserts on each run's outcome, the recorded trace and the final DataSet.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// FlowDir is the directory of CUE flow definitions to load.
	// Relative paths are resolved against the scenario file location.
	FlowDir string `yaml:"flow_dir"`

	// Flow names the flow (flow: <name>: {...}) under test.
	Flow string `yaml:"flow"`

	// Instance is the FlowInstance id every step is applied to.
	// Defaults to "instance-1".
	Instance string `yaml:"instance,omitempty"`

	// RunPrefix seeds deterministic run ids: <prefix>-1, <prefix>-2, ...
	// Defaults to "run".
	RunPrefix string `yaml:"run_prefix,omitempty"`

	// Steps are applied in order, each as one Invoke.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and DataSet.
	// Supported types: trace_order, trace_count, dataset_contains,
	// dataset_absent, dataset_value
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one delta applied to the instance.
type Step struct {
	// Delta maps data keys to values. Values are converted to ir.Value;
	// floats are rejected.
	Delta map[string]any `yaml:"delta"`

	// Expect specifies the expected run outcome.
	// If nil, the run must succeed; its responses are not checked.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of one step.
type ExpectClause struct {
	// Builders is the exact set of builders expected to respond, in any
	// order. For a failing step it is the set that completed before the
	// failure. Nil skips the check; an empty list expects none.
	Builders []string `yaml:"builders"`

	// Generations is the expected sweep count. Zero skips the check.
	Generations int `yaml:"generations,omitempty"`

	// Error expects the step to fail. Nil expects success.
	Error *ExpectError `yaml:"error,omitempty"`
}

// ExpectError describes an expected ExecutionError. Empty fields are not
// checked.
type ExpectError struct {
	Code    string `yaml:"code,omitempty"`
	Kind    string `yaml:"kind,omitempty"`
	Builder string `yaml:"builder,omitempty"`

	// Payload is a subset match against the error payload.
	Payload map[string]any `yaml:"payload,omitempty"`
}

// Assertion validates the trace or final DataSet.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_order": Check builders first completed in this order
	// - "trace_count": Check a builder completed exactly Count times
	// - "dataset_contains": Check Key is in the stored DataSet
	// - "dataset_absent": Check Key is not in the stored DataSet
	// - "dataset_value": Check Key holds exactly Value
	Type string `yaml:"type"`

	// Builder is the builder name (used by trace_count).
	Builder string `yaml:"builder,omitempty"`

	// Builders is the expected completion order (used by trace_order).
	Builders []string `yaml:"builders,omitempty"`

	// Count is the expected number of completions (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Key is the data key (used by dataset_*).
	Key string `yaml:"key,omitempty"`

	// Value is the expected value (used by dataset_value).
	Value any `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceOrder      = "trace_order"
	AssertTraceCount      = "trace_count"
	AssertDataSetContains = "dataset_contains"
	AssertDataSetAbsent   = "dataset_absent"
	AssertDataSetValue    = "dataset_value"
)

// LoadScenario reads and parses a scenario YAML file, resolving flow_dir
// relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving flow_dir relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve flow dir BEFORE validation
	if scenario.FlowDir != "" && !filepath.IsAbs(scenario.FlowDir) && basePath != "" {
		scenario.FlowDir = filepath.Join(basePath, scenario.FlowDir)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes scenario YAML without validating it.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Instance == "" {
		scenario.Instance = "instance-1"
	}
	if scenario.RunPrefix == "" {
		scenario.RunPrefix = "run"
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
	if s.FlowDir == "" {
		return fmt.Errorf("flow_dir is required")
	}
	if info, err := os.Stat(s.FlowDir); err != nil || !info.IsDir() {
		return fmt.Errorf("flow_dir not found: %s", s.FlowDir)
	}
	if s.Flow == "" {
		return fmt.Errorf("flow is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Delta == nil {
			return fmt.Errorf("steps[%d]: delta is required (use empty map for no data)", i)
		}
		if step.Expect != nil && step.Expect.Generations < 0 {
			return fmt.Errorf("steps[%d].expect: generations must be non-negative", i)
		}
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
	case AssertTraceOrder:
		if len(a.Builders) == 0 {
			return fmt.Errorf("assertions[%d]: builders list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Builder == "" {
			return fmt.Errorf("assertions[%d]: builder is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertDataSetContains, AssertDataSetAbsent:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for %s", index, a.Type)
		}
	case AssertDataSetValue:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for dataset_value", index)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for dataset_value", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
