package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/roach88/cohortql/internal/ir"
)

func TestSave_CreatesRevision(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, WithIDGenerator(NewFixedGenerator("rev-1")))
	p := createTestPortable(t, "t")

	rev, created, err := s.Save(ctx, "demo", p)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if !created {
		t.Error("first Save() should create a revision")
	}

	wantHash, err := p.Hash()
	if err != nil {
		t.Fatalf("Hash() failed: %v", err)
	}
	want := Revision{ID: "rev-1", Name: "demo", Seq: 1, Hash: wantHash}
	if rev != want {
		t.Errorf("Save() = %+v, want %+v", rev, want)
	}
}

func TestSave_UnchangedDefinitionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, WithIDGenerator(NewFixedGenerator("rev-1")))

	first, _, err := s.Save(ctx, "demo", createTestPortable(t, "t"))
	if err != nil {
		t.Fatalf("first Save() failed: %v", err)
	}

	// The generator holds one id, so a second revision would panic.
	second, created, err := s.Save(ctx, "demo", createTestPortable(t, "t"))
	if err != nil {
		t.Fatalf("second Save() failed: %v", err)
	}
	if created {
		t.Error("saving an unchanged definition should not create a revision")
	}
	if second != first {
		t.Errorf("second Save() = %+v, want %+v", second, first)
	}
}

func TestSave_ChangedDefinitionBumpsSeq(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, WithIDGenerator(NewFixedGenerator("rev-1", "rev-2", "rev-3")))

	for _, table := range []string{"t", "u", "t"} {
		if _, _, err := s.Save(ctx, "demo", createTestPortable(t, table)); err != nil {
			t.Fatalf("Save(%s) failed: %v", table, err)
		}
	}

	history, err := s.History(ctx, "demo")
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("History() returned %d revisions, want 3", len(history))
	}
	for i, rev := range history {
		if rev.Seq != int64(i+1) {
			t.Errorf("history[%d].Seq = %d, want %d", i, rev.Seq, i+1)
		}
	}
	// Reverting to an earlier definition reuses its definition row.
	if history[0].Hash != history[2].Hash {
		t.Errorf("revisions 1 and 3 should share a hash: %s vs %s", history[0].Hash, history[2].Hash)
	}

	var defs int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM definitions").Scan(&defs); err != nil {
		t.Fatalf("count definitions: %v", err)
	}
	if defs != 2 {
		t.Errorf("definitions = %d, want 2", defs)
	}

	latest, err := s.Latest(ctx, "demo")
	if err != nil {
		t.Fatalf("Latest() failed: %v", err)
	}
	if latest != history[2] {
		t.Errorf("Latest() = %+v, want %+v", latest, history[2])
	}

	second, err := s.RevisionAt(ctx, "demo", 2)
	if err != nil {
		t.Fatalf("RevisionAt() failed: %v", err)
	}
	if second.ID != "rev-2" {
		t.Errorf("RevisionAt(2).ID = %q, want rev-2", second.ID)
	}
}

func TestSave_EmptyName(t *testing.T) {
	s := createTestStore(t)
	if _, _, err := s.Save(context.Background(), "", createTestPortable(t, "t")); err == nil {
		t.Error("expected error for empty name, got nil")
	}
}

func TestSave_DefaultIDsAreUUIDv7(t *testing.T) {
	s := createTestStore(t)

	rev, _, err := s.Save(context.Background(), "demo", createTestPortable(t, "t"))
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	id, err := uuid.Parse(rev.ID)
	if err != nil {
		t.Fatalf("revision id %q is not a UUID: %v", rev.ID, err)
	}
	if id.Version() != 7 {
		t.Errorf("revision id version = %d, want 7", id.Version())
	}
}

func TestLatest_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Latest(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest() error = %v, want ErrNotFound", err)
	}

	_, err = s.RevisionAt(context.Background(), "missing", 1)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("RevisionAt() error = %v, want ErrNotFound", err)
	}
}

func TestHistory_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)

	history, err := s.History(context.Background(), "missing")
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if history == nil || len(history) != 0 {
		t.Errorf("History() = %#v, want empty slice", history)
	}
}

func TestList_LatestPerName(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, WithIDGenerator(NewFixedGenerator("b-1", "a-1", "b-2")))

	saves := []struct{ name, table string }{
		{"beta", "t"},
		{"alpha", "t"},
		{"beta", "u"},
	}
	for _, sv := range saves {
		if _, _, err := s.Save(ctx, sv.name, createTestPortable(t, sv.table)); err != nil {
			t.Fatalf("Save(%s) failed: %v", sv.name, err)
		}
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() returned %d revisions, want 2", len(list))
	}
	if list[0].ID != "a-1" || list[1].ID != "b-2" {
		t.Errorf("List() ids = [%s %s], want [a-1 b-2]", list[0].ID, list[1].ID)
	}
}

func TestDefinition_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	p := createTestPortable(t, "t")

	rev, _, err := s.Save(ctx, "demo", p)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := s.Definition(ctx, rev.Hash)
	if err != nil {
		t.Fatalf("Definition() failed: %v", err)
	}

	want, _ := p.MarshalJSON()
	gotJSON, err := got.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() failed: %v", err)
	}
	if string(gotJSON) != string(want) {
		t.Errorf("Definition() = %s, want %s", gotJSON, want)
	}

	if _, err := s.Definition(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Definition(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCompilation_WriteAndRead(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	rev, _, err := s.Save(ctx, "demo", createTestPortable(t, "t"))
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	stmts := []string{"SELECT 1\nINTO [#group_1]", "SELECT 'a<b'"}
	err = s.WriteCompilation(ctx, Compilation{
		DefinitionHash: rev.Hash,
		Backend:        "tpp",
		Dialect:        "mssql",
		Statements:     stmts,
	})
	if err != nil {
		t.Fatalf("WriteCompilation() failed: %v", err)
	}

	got, err := s.ReadCompilation(ctx, rev.Hash, "tpp", "mssql")
	if err != nil {
		t.Fatalf("ReadCompilation() failed: %v", err)
	}
	if len(got.Statements) != 2 || got.Statements[0] != stmts[0] || got.Statements[1] != stmts[1] {
		t.Errorf("Statements = %q, want %q", got.Statements, stmts)
	}
	if got.StatementsHash != ir.StatementsHash(stmts) {
		t.Errorf("StatementsHash = %s, want %s", got.StatementsHash, ir.StatementsHash(stmts))
	}
	if got.CompilerVersion != ir.CompilerVersion {
		t.Errorf("CompilerVersion = %s, want %s", got.CompilerVersion, ir.CompilerVersion)
	}

	// Recompiling replaces the statements.
	err = s.WriteCompilation(ctx, Compilation{
		DefinitionHash: rev.Hash,
		Backend:        "tpp",
		Dialect:        "mssql",
		Statements:     []string{"SELECT 2"},
	})
	if err != nil {
		t.Fatalf("second WriteCompilation() failed: %v", err)
	}
	got, err = s.ReadCompilation(ctx, rev.Hash, "tpp", "mssql")
	if err != nil {
		t.Fatalf("ReadCompilation() failed: %v", err)
	}
	if len(got.Statements) != 1 || got.Statements[0] != "SELECT 2" {
		t.Errorf("Statements after recompiling = %q", got.Statements)
	}

	if _, err := s.ReadCompilation(ctx, rev.Hash, "tpp", "sqlite"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadCompilation(sqlite) error = %v, want ErrNotFound", err)
	}
}

func TestCompilation_RequiresDefinition(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteCompilation(context.Background(), Compilation{
		DefinitionHash: "missing",
		Backend:        "tpp",
		Dialect:        "mssql",
		Statements:     []string{"SELECT 1"},
	})
	if err == nil {
		t.Error("expected foreign key violation, got nil")
	}
}
