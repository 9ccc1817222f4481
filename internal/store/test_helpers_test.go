package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/cohortql/internal/ir"
	"github.com/roach88/cohortql/internal/queryir"
	"github.com/roach88/cohortql/internal/serialize"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestPortable builds a one-output definition over table.
func createTestPortable(t *testing.T, table string) *serialize.Portable {
	t.Helper()
	c := queryir.NewCohort().
		Add("population", queryir.From(table).Where("positive", queryir.Lit(ir.IRBool(true))).Exists())
	p, err := serialize.ToPortable(c)
	if err != nil {
		t.Fatalf("ToPortable() failed: %v", err)
	}
	return p
}
