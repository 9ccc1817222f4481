package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cohortql/internal/ir"
)

// Snapshot is the golden form of a run: the compiled statements and the
// result they produced.
type Snapshot struct {
	ScenarioName string
	Statements   []string
	Columns      []string
	Rows         [][]ir.IRValue
}

// toCanonical converts the snapshot to an IRObject for canonical JSON.
func (s *Snapshot) toCanonical() ir.IRObject {
	stmts := make(ir.IRArray, len(s.Statements))
	for i, stmt := range s.Statements {
		stmts[i] = ir.IRString(stmt)
	}
	cols := make(ir.IRArray, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = ir.IRString(c)
	}
	rows := make(ir.IRArray, len(s.Rows))
	for i, row := range s.Rows {
		rows[i] = ir.IRArray(row)
	}
	return ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"statements":    stmts,
		"columns":       cols,
		"rows":          rows,
	}
}

// SnapshotJSON returns the canonical JSON snapshot of a result, the
// content of its golden file.
func SnapshotJSON(name string, result *Result) ([]byte, error) {
	snapshot := Snapshot{
		ScenarioName: name,
		Statements:   result.Statements,
		Columns:      result.Columns,
		Rows:         result.Rows,
	}
	return ir.MarshalCanonical(snapshot.toCanonical())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if the scenario could not be run. Test failure (via
// goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := SnapshotJSON(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
