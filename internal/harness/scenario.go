package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is one compile-and-execute test: a backend, a portable cohort
// definition, fixture rows to load into SQLite and the expected result.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Backend is a builtin backend name or a .yaml/.cue backend file.
	// Relative file paths are resolved against the scenario file.
	Backend string `yaml:"backend"`

	// Definition is a portable cohort definition (JSON) file.
	Definition string `yaml:"definition"`

	// Fixtures are the physical tables loaded before execution.
	Fixtures []Fixture `yaml:"fixtures,omitempty"`

	// ExpectError names the error kind compilation must fail with. When
	// set, nothing is executed and Expect and Assertions must be empty.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Expect is the exact result, rows ordered by patient_id.
	Expect *Expect `yaml:"expect,omitempty"`

	// Assertions validate the compiled statements and the result.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Fixture is one physical table. Columns are created without declared
// types so values come back exactly as written.
type Fixture struct {
	Table   string   `yaml:"table"`
	Columns []string `yaml:"columns"`
	Rows    [][]any  `yaml:"rows"`
}

// Expect is an exact expected result.
type Expect struct {
	// Columns, if set, must equal the result columns in order.
	Columns []string `yaml:"columns,omitempty"`

	// Rows are compared in order after sorting the result by patient_id.
	Rows [][]any `yaml:"rows"`
}

// Assertion validates one property of a run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "row_count": result has exactly Count rows
	// - "one_row_per_patient": no patient_id appears twice
	// - "stage_count": exactly Count staging statements
	// - "sql_contains": Statement contains Text (Count times, if set)
	// - "patient_row": the row for Patient matches Values (subset match)
	Type string `yaml:"type"`

	// Count is the expected number (row_count, stage_count, sql_contains).
	Count *int `yaml:"count,omitempty"`

	// Statement is a 1-based statement index; 0 means the final select
	// (sql_contains).
	Statement int `yaml:"statement,omitempty"`

	// Text is the expected SQL fragment (sql_contains).
	Text string `yaml:"text,omitempty"`

	// Patient is the patient_id of the row to check (patient_row).
	Patient int64 `yaml:"patient,omitempty"`

	// Values are expected column values (patient_row).
	Values map[string]any `yaml:"values,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount         = "row_count"
	AssertOneRowPerPatient = "one_row_per_patient"
	AssertStageCount       = "stage_count"
	AssertSQLContains      = "sql_contains"
	AssertPatientRow       = "patient_row"
)

// Error kinds accepted by Scenario.ExpectError.
const (
	ErrorTableNotFound  = "table_not_found"
	ErrorColumnNotFound = "column_not_found"
	ErrorInvariant      = "invariant"
	ErrorValidation     = "validation"
	ErrorCodelistSystem = "codelist_system"
)

var errorKinds = map[string]bool{
	ErrorTableNotFound:  true,
	ErrorColumnNotFound: true,
	ErrorInvariant:      true,
	ErrorValidation:     true,
	ErrorCodelistSystem: true,
}

// LoadScenario reads and parses a scenario YAML file.
// Backend and definition paths are resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	scenario.Definition = resolvePath(base, scenario.Definition)
	if ext := filepath.Ext(scenario.Backend); ext != "" {
		scenario.Backend = resolvePath(base, scenario.Backend)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Backend == "" {
		return fmt.Errorf("backend is required")
	}
	if s.Definition == "" {
		return fmt.Errorf("definition is required")
	}
	if _, err := os.Stat(s.Definition); os.IsNotExist(err) {
		return fmt.Errorf("definition file not found: %s", s.Definition)
	}

	if s.ExpectError != "" {
		if !errorKinds[s.ExpectError] {
			return fmt.Errorf("unknown expect_error %q", s.ExpectError)
		}
		if s.Expect != nil || len(s.Assertions) > 0 {
			return fmt.Errorf("expect_error cannot be combined with expect or assertions")
		}
		return nil
	}

	if s.Expect == nil && len(s.Assertions) == 0 {
		return fmt.Errorf("expect or assertions is required")
	}

	for i, f := range s.Fixtures {
		if err := validateFixture(f); err != nil {
			return fmt.Errorf("fixtures[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateFixture(f Fixture) error {
	if !validIdentifier.MatchString(f.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", f.Table, validIdentifier.String())
	}
	if len(f.Columns) == 0 {
		return fmt.Errorf("table %s: columns are required", f.Table)
	}
	for _, c := range f.Columns {
		if !validIdentifier.MatchString(c) {
			return fmt.Errorf("table %s: invalid column name %q", f.Table, c)
		}
	}
	for i, row := range f.Rows {
		if len(row) != len(f.Columns) {
			return fmt.Errorf("table %s: row %d has %d values, want %d", f.Table, i, len(row), len(f.Columns))
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertRowCount, AssertStageCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	case AssertOneRowPerPatient:
	case AssertSQLContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for sql_contains", index)
		}
		if a.Statement < 0 {
			return fmt.Errorf("assertions[%d]: statement must be non-negative", index)
		}
	case AssertPatientRow:
		if len(a.Values) == 0 {
			return fmt.Errorf("assertions[%d]: values are required for patient_row", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
