package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/cohortql/internal/querysql"
	"github.com/roach88/cohortql/internal/store"
)

// NewStoreCommand creates the store command and its subcommands.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Save, show and list stored definitions",
		Long: `Manage the definition store, a SQLite database (--db) holding named,
numbered revisions of definitions and the SQL compiled from them.

Definitions are content addressed: saving an unchanged definition does not
create a new revision.`,
	}

	cmd.AddCommand(newStoreSaveCommand(rootOpts))
	cmd.AddCommand(newStoreShowCommand(rootOpts))
	cmd.AddCommand(newStoreListCommand(rootOpts))
	cmd.AddCommand(newStoreHistoryCommand(rootOpts))

	return cmd
}

// SaveResult is the JSON payload of store save.
type SaveResult struct {
	Revision       store.Revision `json:"revision"`
	Created        bool           `json:"created"`
	StatementsHash string         `json:"statements_hash"`
}

func newStoreSaveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save <name> <definition.json>",
		Short: "Validate, compile and save a definition under a name",
		Long: `Validate and compile a definition, then save it as the next revision of
name together with the SQL compiled for the configured backend and dialect.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreSave(opts, args[0], args[1], cmd)
		},
	}
}

func runStoreSave(opts *RootOptions, name, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	def, plan, err := compileFile(opts, path, formatter)
	if err != nil {
		return err
	}

	st, err := opts.openStore()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrorCode(err), errorMessage(err), nil)
	}
	defer st.Close()

	ctx := commandContext(cmd)
	rev, created, err := st.Save(ctx, name, def.Portable)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	compilation := store.Compilation{
		DefinitionHash: rev.Hash,
		Backend:        plan.Backend,
		Dialect:        plan.Dialect,
		Statements:     plan.Statements(),
	}
	if err := st.WriteCompilation(ctx, compilation); err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	stored, err := st.ReadCompilation(ctx, rev.Hash, plan.Backend, plan.Dialect)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrorCode(err), err.Error(), nil)
	}

	logger := opts.Logger()
	logger.Info().
		Str("name", rev.Name).
		Int64("seq", rev.Seq).
		Str("hash", rev.Hash).
		Bool("created", created).
		Msg("saved definition")

	if formatter.Format == "json" {
		return formatter.Success(SaveResult{Revision: rev, Created: created, StatementsHash: stored.StatementsHash})
	}
	if created {
		fmt.Fprintf(formatter.Writer, "Saved %s revision %d (%s)\n", rev.Name, rev.Seq, shortHash(rev.Hash))
	} else {
		fmt.Fprintf(formatter.Writer, "%s unchanged at revision %d (%s)\n", rev.Name, rev.Seq, shortHash(rev.Hash))
	}
	return nil
}

// ShowResult is the JSON payload of store show.
type ShowResult struct {
	Revision   store.Revision `json:"revision"`
	Definition any            `json:"definition"`
	Statements []string       `json:"statements,omitempty"`
}

func newStoreShowCommand(opts *RootOptions) *cobra.Command {
	var (
		seq     int64
		showSQL bool
	)

	cmd := &cobra.Command{
		Use:           "show <name>",
		Short:         "Print a stored definition",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreShow(opts, args[0], seq, showSQL, cmd)
		},
	}

	cmd.Flags().Int64Var(&seq, "seq", 0, "revision number (default latest)")
	cmd.Flags().BoolVar(&showSQL, "sql", false, "print the stored SQL for the configured backend and dialect")

	return cmd
}

func runStoreShow(opts *RootOptions, name string, seq int64, showSQL bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	st, err := opts.openStore()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrorCode(err), errorMessage(err), nil)
	}
	defer st.Close()

	ctx := commandContext(cmd)
	var rev store.Revision
	if seq > 0 {
		rev, err = st.RevisionAt(ctx, name, seq)
	} else {
		rev, err = st.Latest(ctx, name)
	}
	if err != nil {
		return formatter.fail(ExitCommandError, ErrorCode(err), err.Error(), nil)
	}

	p, err := st.Definition(ctx, rev.Hash)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrorCode(err), err.Error(), nil)
	}
	body, err := p.Indent()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	var stmts []string
	if showSQL {
		backendName, dialectName, err := opts.target()
		if err != nil {
			return formatter.fail(ExitCommandError, ErrorCode(err), errorMessage(err), nil)
		}
		c, err := st.ReadCompilation(ctx, rev.Hash, backendName, dialectName)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrorCode(err), err.Error(), nil)
		}
		stmts = c.Statements
	}

	if formatter.Format == "json" {
		return formatter.Success(ShowResult{Revision: rev, Definition: p, Statements: stmts})
	}

	w := formatter.Writer
	if showSQL {
		fmt.Fprint(w, querysql.Script(stmts))
		return nil
	}
	fmt.Fprintf(w, "# %s revision %d (%s)\n", rev.Name, rev.Seq, rev.Hash)
	_, err = w.Write(body)
	return err
}

func newStoreListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored definitions at their latest revision",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreRevisions(opts, cmd, func(ctx context.Context, st *store.Store) ([]store.Revision, error) {
				return st.List(ctx)
			})
		},
	}
}

func newStoreHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history <name>",
		Short:         "List every revision of a definition",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreRevisions(opts, cmd, func(ctx context.Context, st *store.Store) ([]store.Revision, error) {
				return st.History(ctx, args[0])
			})
		},
	}
}

func runStoreRevisions(opts *RootOptions, cmd *cobra.Command, query func(context.Context, *store.Store) ([]store.Revision, error)) error {
	formatter := newFormatter(opts, cmd)

	st, err := opts.openStore()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrorCode(err), errorMessage(err), nil)
	}
	defer st.Close()

	revs, err := query(commandContext(cmd), st)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrorCode(err), err.Error(), nil)
	}

	if formatter.Format == "json" {
		if revs == nil {
			revs = []store.Revision{}
		}
		return formatter.Success(revs)
	}
	if len(revs) == 0 {
		fmt.Fprintln(formatter.Writer, "No definitions stored.")
		return nil
	}

	rows := make([][]string, len(revs))
	for i, r := range revs {
		rows[i] = []string{r.Name, strconv.FormatInt(r.Seq, 10), shortHash(r.Hash), r.ID}
	}
	formatter.Table([]string{"name", "revision", "hash", "id"}, rows)
	return nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
