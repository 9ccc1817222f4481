package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cohortql/internal/querysql"
)

// SQLOptions holds flags for the sql command.
type SQLOptions struct {
	*RootOptions
	Output string // output file path
}

// SQLResult is the JSON payload of the sql command.
type SQLResult struct {
	Definition     string   `json:"definition"`
	DefinitionHash string   `json:"definition_hash"`
	Backend        string   `json:"backend"`
	Dialect        string   `json:"dialect"`
	Statements     []string `json:"statements"`
}

// NewSQLCommand creates the sql command.
func NewSQLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SQLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sql <definition.json>",
		Short: "Compile a definition to SQL",
		Long: `Compile a portable cohort definition to staged SQL.

The definition is validated first, then compiled against the configured
backend and dialect. The script creates one temp table per group of values
and ends with the select that returns one row per patient.

Examples:
  cohortql sql study.json
  cohortql sql study.json --dialect sqlite -o study.sql
  cohortql sql study.json --backend ./backend.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSQL(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runSQL(opts *SQLOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	def, plan, err := compileFile(opts.RootOptions, path, formatter)
	if err != nil {
		return err
	}

	hash, err := def.Hash()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	stmts := plan.Statements()

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(querysql.Script(stmts)), 0644); err != nil {
			return formatter.fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(SQLResult{
			Definition:     path,
			DefinitionHash: hash,
			Backend:        plan.Backend,
			Dialect:        plan.Dialect,
			Statements:     stmts,
		})
	}

	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote %d statement(s) to %s\n", len(stmts), opts.Output)
		return nil
	}
	fmt.Fprint(formatter.Writer, querysql.Script(stmts))
	return nil
}

// compileFile loads, validates and compiles one definition file, reporting
// failures through formatter.
func compileFile(opts *RootOptions, path string, formatter *OutputFormatter) (*Definition, *querysql.Plan, error) {
	def, err := LoadDefinition(path)
	if err != nil {
		return nil, nil, formatter.fail(ExitCommandError, ErrorCode(err), errorMessage(err), nil)
	}
	formatter.VerboseLog("Loaded %s: %d node(s), %d output(s)", path, len(def.Portable.Nodes), len(def.Portable.Outputs))

	c, err := opts.newCompiler()
	if err != nil {
		return nil, nil, formatter.fail(ExitCommandError, ErrorCode(err), errorMessage(err), nil)
	}

	plan, err := compileAndValidate(c, def)
	if err != nil {
		return nil, nil, formatter.fail(ExitCommandError, ErrorCode(err), err.Error(), validationDetails(err))
	}
	for _, stage := range plan.Stages {
		formatter.VerboseLog("Staged %s (%s of %s): %v", stage.Table, stage.Kind, stage.Source, stage.Outputs)
	}
	return def, plan, nil
}
