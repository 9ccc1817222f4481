package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/cohortql/internal/ir"
	"github.com/roach88/cohortql/internal/serialize"
)

// ErrNotFound is returned when a revision, definition or compilation does
// not exist.
var ErrNotFound = errors.New("not found")

// Revision is one numbered version of a named definition.
type Revision struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Seq  int64  `json:"seq"`
	Hash string `json:"hash"`
}

// Compilation is the SQL compiled from one definition.
type Compilation struct {
	DefinitionHash  string   `json:"definition_hash"`
	Backend         string   `json:"backend"`
	Dialect         string   `json:"dialect"`
	CompilerVersion string   `json:"compiler_version"`
	Statements      []string `json:"statements"`
	StatementsHash  string   `json:"statements_hash"`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRevision(row rowScanner) (Revision, error) {
	var rev Revision
	if err := row.Scan(&rev.ID, &rev.Name, &rev.Seq, &rev.Hash); err != nil {
		return Revision{}, err
	}
	return rev, nil
}

// Latest returns the newest revision of name.
func (s *Store) Latest(ctx context.Context, name string) (Revision, error) {
	rev, err := scanRevision(s.db.QueryRowContext(ctx, `
		SELECT id, name, seq, definition_hash
		FROM revisions
		WHERE name = ?
		ORDER BY seq DESC, id COLLATE BINARY DESC
		LIMIT 1
	`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, fmt.Errorf("definition %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Revision{}, fmt.Errorf("query latest revision: %w", err)
	}
	return rev, nil
}

// RevisionAt returns revision seq of name.
func (s *Store) RevisionAt(ctx context.Context, name string, seq int64) (Revision, error) {
	rev, err := scanRevision(s.db.QueryRowContext(ctx, `
		SELECT id, name, seq, definition_hash
		FROM revisions
		WHERE name = ? AND seq = ?
	`, name, seq))
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, fmt.Errorf("definition %q revision %d: %w", name, seq, ErrNotFound)
	}
	if err != nil {
		return Revision{}, fmt.Errorf("query revision: %w", err)
	}
	return rev, nil
}

// History returns every revision of name, oldest first.
// Returns an empty slice (not nil) if the name has no revisions.
func (s *Store) History(ctx context.Context, name string) ([]Revision, error) {
	return s.queryRevisions(ctx, `
		SELECT id, name, seq, definition_hash
		FROM revisions
		WHERE name = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, name)
}

// List returns the latest revision of every name, ordered by name.
func (s *Store) List(ctx context.Context) ([]Revision, error) {
	return s.queryRevisions(ctx, `
		SELECT r.id, r.name, r.seq, r.definition_hash
		FROM revisions r
		WHERE r.seq = (SELECT MAX(seq) FROM revisions WHERE name = r.name)
		ORDER BY r.name COLLATE BINARY ASC, r.id COLLATE BINARY ASC
	`)
}

func (s *Store) queryRevisions(ctx context.Context, query string, args ...any) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	revs := []Revision{}
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return revs, nil
}

// Definition loads the portable definition with the given hash.
func (s *Store) Definition(ctx context.Context, hash string) (*serialize.Portable, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM definitions WHERE hash = ?
	`, hash).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("definition %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query definition: %w", err)
	}

	var p serialize.Portable
	if err := p.UnmarshalJSON([]byte(body)); err != nil {
		return nil, fmt.Errorf("definition %s: %w", hash, err)
	}
	return &p, nil
}

// ReadCompilation returns the statements compiled by the current compiler
// version for a definition, backend and dialect.
func (s *Store) ReadCompilation(ctx context.Context, hash, backend, dialect string) (Compilation, error) {
	c := Compilation{
		DefinitionHash:  hash,
		Backend:         backend,
		Dialect:         dialect,
		CompilerVersion: ir.CompilerVersion,
	}

	var stmtsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT statements, statements_hash
		FROM compilations
		WHERE definition_hash = ? AND backend = ? AND dialect = ? AND compiler_version = ?
	`, hash, backend, dialect, c.CompilerVersion).Scan(&stmtsJSON, &c.StatementsHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Compilation{}, fmt.Errorf("compilation of %s for %s/%s: %w", hash, backend, dialect, ErrNotFound)
	}
	if err != nil {
		return Compilation{}, fmt.Errorf("query compilation: %w", err)
	}

	c.Statements, err = unmarshalStatements(stmtsJSON)
	if err != nil {
		return Compilation{}, err
	}
	return c, nil
}
