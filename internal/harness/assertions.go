package harness

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/cohortql/internal/backend"
	"github.com/roach88/cohortql/internal/ir"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes the compiled statements to help debug the failure.
type AssertionError struct {
	Type       string   // Assertion type for categorization
	Expected   string   // Human-readable expected outcome
	Actual     string   // Human-readable actual outcome
	Statements []string // Compiled statements for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Statements) > 0 {
		fmt.Fprintf(&buf, "\nStatements:\n")
		for i, stmt := range e.Statements {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, strings.ReplaceAll(stmt, "\n", "\n      "))
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertRowCount:
		return assertCount(result, a, "rows", len(result.Rows))
	case AssertStageCount:
		return assertCount(result, a, "staging statements", len(result.stages()))
	case AssertOneRowPerPatient:
		return assertOneRowPerPatient(result)
	case AssertSQLContains:
		return assertSQLContains(result, a)
	case AssertPatientRow:
		return assertPatientRow(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertCount(result *Result, a Assertion, what string, got int) error {
	if a.Count == nil || got == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:       a.Type,
		Expected:   fmt.Sprintf("%d %s", *a.Count, what),
		Actual:     fmt.Sprintf("%d %s", got, what),
		Statements: result.Statements,
	}
}

// assertOneRowPerPatient checks that no patient_id appears twice.
func assertOneRowPerPatient(result *Result) error {
	idx := result.column(backend.PatientID)
	if idx < 0 {
		return &AssertionError{
			Type:     AssertOneRowPerPatient,
			Expected: "a patient_id column",
			Actual:   fmt.Sprintf("columns %v", result.Columns),
		}
	}

	seen := make(map[string]bool, len(result.Rows))
	for _, row := range result.Rows {
		key := render(row[idx])
		if seen[key] {
			return &AssertionError{
				Type:       AssertOneRowPerPatient,
				Expected:   "at most one row per patient",
				Actual:     fmt.Sprintf("patient %s returned more than once", key),
				Statements: result.Statements,
			}
		}
		seen[key] = true
	}
	return nil
}

// assertSQLContains checks that a statement contains a fragment, an exact
// number of times when Count is set.
func assertSQLContains(result *Result, a Assertion) error {
	n := len(result.Statements)
	if n == 0 {
		return &AssertionError{Type: a.Type, Expected: "compiled statements", Actual: "none"}
	}

	idx := n - 1
	label := "final select"
	if a.Statement > 0 {
		if a.Statement > n {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("statement %d", a.Statement),
				Actual:   fmt.Sprintf("only %d statements", n),
			}
		}
		idx = a.Statement - 1
		label = fmt.Sprintf("statement %d", a.Statement)
	}

	got := strings.Count(result.Statements[idx], a.Text)
	switch {
	case a.Count != nil && got != *a.Count:
		return &AssertionError{
			Type:       a.Type,
			Expected:   fmt.Sprintf("%s to contain %q %d times", label, a.Text, *a.Count),
			Actual:     fmt.Sprintf("%d times", got),
			Statements: result.Statements,
		}
	case a.Count == nil && got == 0:
		return &AssertionError{
			Type:       a.Type,
			Expected:   fmt.Sprintf("%s to contain %q", label, a.Text),
			Actual:     "not found",
			Statements: result.Statements,
		}
	}
	return nil
}

// assertPatientRow checks the values of one patient's row (subset match).
func assertPatientRow(result *Result, a Assertion) error {
	idx := result.column(backend.PatientID)
	var row []ir.IRValue
	for _, r := range result.Rows {
		if idx < 0 {
			break
		}
		if id, ok := r[idx].(ir.IRInt); ok && int64(id) == a.Patient {
			row = r
			break
		}
	}
	if row == nil {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("a row for patient %d", a.Patient),
			Actual:   "row not found",
		}
	}

	// Check in sorted key order so failures are deterministic.
	keys := make([]string, 0, len(a.Values))
	for k := range a.Values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		col := result.column(key)
		if col < 0 {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("column %q to exist", key),
				Actual:   fmt.Sprintf("columns %v", result.Columns),
			}
		}
		if !valuesEqual(a.Values[key], row[col]) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("patient %d %s = %v", a.Patient, key, a.Values[key]),
				Actual:   fmt.Sprintf("patient %d %s = %s", a.Patient, key, render(row[col])),
			}
		}
	}
	return nil
}
