package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cohortql/internal/querysql"
	"github.com/roach88/cohortql/internal/serialize"
	"github.com/roach88/cohortql/internal/study"
)

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	var portable bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Print the example study as SQL or as a portable definition",
		Long: `Print the example SARS-CoV-2 study: patients with a positive SGSS test,
their first and last positive dates, the latest creatinine result between
them and the STP of the practice they were registered with.

By default the study is compiled against the configured backend and
dialect. With --portable its portable definition is printed instead, a
starting point for hand-written definitions.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(rootOpts, portable, cmd)
		},
	}

	cmd.Flags().BoolVar(&portable, "portable", false, "print the portable definition instead of SQL")

	return cmd
}

func runDemo(opts *RootOptions, portable bool, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	cohort := study.Demo()

	if portable {
		data, err := serialize.Marshal(cohort)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
		if formatter.Format == "json" {
			return formatter.Success(json.RawMessage(data))
		}
		_, err = formatter.Writer.Write(data)
		return err
	}

	c, err := opts.newCompiler()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrorCode(err), errorMessage(err), nil)
	}
	stmts, err := c.Compile(cohort)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrorCode(err), err.Error(), nil)
	}

	if formatter.Format == "json" {
		return formatter.Success(stmts)
	}
	fmt.Fprint(formatter.Writer, querysql.Script(stmts))
	return nil
}
