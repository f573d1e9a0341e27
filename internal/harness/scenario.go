package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cohortsql/internal/warehouse"
)

// Scenario is one end-to-end cohort test.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Cohort is the path of the cohort definition (JSON or CUE), relative
	// to the scenario file once loaded.
	Cohort string `yaml:"cohort"`

	// TargetSchemaVersion overrides the configured CDM version.
	TargetSchemaVersion string `yaml:"target_schema_version,omitempty"`

	// Fixtures maps CDM table names to the rows to load.
	Fixtures map[string][]map[string]any `yaml:"fixtures"`

	// Assertions validate the snapshot.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates part of a snapshot.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Unit names the unit (unit_events, unit_error).
	Unit string `yaml:"unit,omitempty"`

	// Events are the expected events (unit_events). Exact match, in
	// (person_id, event_id) order.
	Events []warehouse.EventKey `yaml:"events,omitempty"`

	// Code is the expected error code (unit_error).
	Code string `yaml:"code,omitempty"`

	// Count is the expected number of cohort rows (cohort_count).
	Count int `yaml:"count,omitempty"`

	// Rows are the expected cohort rows (cohort_rows).
	Rows []CohortRow `yaml:"rows,omitempty"`
}

// Assertion type constants.
const (
	AssertUnitEvents  = "unit_events"
	AssertUnitError   = "unit_error"
	AssertCohortCount = "cohort_count"
	AssertCohortRows  = "cohort_rows"
)

// fixtureTable matches valid SQL identifiers.
var fixtureTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected, and the cohort path is resolved against the scenario's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Cohort != "" && !filepath.IsAbs(scenario.Cohort) {
		scenario.Cohort = filepath.Join(filepath.Dir(path), scenario.Cohort)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, in name order.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Cohort == "" {
		return fmt.Errorf("cohort is required")
	}
	if _, err := os.Stat(s.Cohort); os.IsNotExist(err) {
		return fmt.Errorf("cohort file not found: %s", s.Cohort)
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for table := range s.Fixtures {
		if !fixtureTable.MatchString(table) {
			return fmt.Errorf("fixtures: invalid table name %q", table)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
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
	case AssertUnitEvents:
		if a.Unit == "" {
			return fmt.Errorf("assertions[%d]: unit is required for unit_events", index)
		}
	case AssertUnitError:
		if a.Unit == "" {
			return fmt.Errorf("assertions[%d]: unit is required for unit_error", index)
		}
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for unit_error", index)
		}
	case AssertCohortCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for cohort_count", index)
		}
	case AssertCohortRows:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
