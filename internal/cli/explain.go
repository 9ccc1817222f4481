package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <definition.json>",
		Short: "Show the staging plan of a definition",
		Long: `Show how a definition is compiled: one row per staged temp table with
the source it reads, the columns it materializes, the outputs it serves and
the earlier tables it joins, followed by where each output is read from.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runExplain(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	_, plan, err := compileFile(opts, path, formatter)
	if err != nil {
		return err
	}

	if formatter.Format == "json" {
		return formatter.Success(plan)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Backend: %s  Dialect: %s\n\n", plan.Backend, plan.Dialect)

	stages := make([][]string, len(plan.Stages))
	for i, s := range plan.Stages {
		stages[i] = []string{
			s.Table,
			s.Kind,
			s.Source,
			strings.Join(s.Columns, ", "),
			strings.Join(s.Outputs, ", "),
			strings.Join(s.DependsOn, ", "),
		}
	}
	formatter.Table([]string{"table", "kind", "source", "columns", "outputs", "joins"}, stages)
	fmt.Fprintln(w)

	outputs := make([][]string, len(plan.Outputs))
	for i, o := range plan.Outputs {
		table := o.Table
		if table == "" {
			table = "(literal)"
		}
		outputs[i] = []string{o.Name, table, o.Column}
	}
	formatter.Table([]string{"output", "table", "column"}, outputs)
	return nil
}
