package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/cohortql/internal/ir"
	"github.com/roach88/cohortql/internal/serialize"
)

// Save stores a definition under name. The definition row is content
// addressed, so identical definitions share one row.
//
// A new revision is created only when the definition differs from the
// name's latest revision; otherwise the latest revision is returned with
// created=false.
func (s *Store) Save(ctx context.Context, name string, p *serialize.Portable) (rev Revision, created bool, err error) {
	if name == "" {
		return Revision{}, false, fmt.Errorf("save definition: empty name")
	}
	body, err := p.MarshalJSON()
	if err != nil {
		return Revision{}, false, fmt.Errorf("save definition: %w", err)
	}
	hash := ir.DefinitionHash(body)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Revision{}, false, fmt.Errorf("save definition: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO definitions (hash, body, format_version)
		VALUES (?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, hash, string(body), p.Version)
	if err != nil {
		return Revision{}, false, fmt.Errorf("save definition: %w", err)
	}

	latest, err := scanRevision(tx.QueryRowContext(ctx, `
		SELECT id, name, seq, definition_hash
		FROM revisions
		WHERE name = ?
		ORDER BY seq DESC, id COLLATE BINARY DESC
		LIMIT 1
	`, name))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		latest = Revision{}
	case err != nil:
		return Revision{}, false, fmt.Errorf("save definition: %w", err)
	case latest.Hash == hash:
		return latest, false, nil
	}

	rev = Revision{
		ID:   s.ids.Generate(),
		Name: name,
		Seq:  latest.Seq + 1,
		Hash: hash,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO revisions (id, name, seq, definition_hash)
		VALUES (?, ?, ?, ?)
	`, rev.ID, rev.Name, rev.Seq, rev.Hash)
	if err != nil {
		return Revision{}, false, fmt.Errorf("save definition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Revision{}, false, fmt.Errorf("save definition: commit: %w", err)
	}
	return rev, true, nil
}

// WriteCompilation records statements compiled from a stored definition.
// Uses ON CONFLICT DO UPDATE so recompiling with the same compiler version
// replaces the previous statements.
//
// Note: The definition referenced by DefinitionHash must exist (foreign key constraint).
func (s *Store) WriteCompilation(ctx context.Context, c Compilation) error {
	stmtsJSON, err := marshalStatements(c.Statements)
	if err != nil {
		return fmt.Errorf("write compilation: %w", err)
	}
	if c.CompilerVersion == "" {
		c.CompilerVersion = ir.CompilerVersion
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO compilations
		(definition_hash, backend, dialect, compiler_version, statements, statements_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(definition_hash, backend, dialect, compiler_version)
		DO UPDATE SET statements = excluded.statements, statements_hash = excluded.statements_hash
	`,
		c.DefinitionHash,
		c.Backend,
		c.Dialect,
		c.CompilerVersion,
		stmtsJSON,
		ir.StatementsHash(c.Statements),
	)
	if err != nil {
		return fmt.Errorf("write compilation: %w", err)
	}
	return nil
}
