package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/cohortql/internal/querysql"
)

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	Jobs   int    // concurrent compilations
	OutDir string // directory for .sql files
}

// BatchItem is the outcome of compiling one definition.
type BatchItem struct {
	Definition string    `json:"definition"`
	Hash       string    `json:"hash,omitempty"`
	Stages     int       `json:"stages"`
	Output     string    `json:"output,omitempty"`
	Error      *CLIError `json:"error,omitempty"`
}

// BatchResult holds the outcome of a batch run in definition order.
type BatchResult struct {
	Items  []BatchItem `json:"items"`
	Failed int         `json:"failed"`
	Total  int         `json:"total"`
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch <definitions-dir>",
		Short: "Compile every definition in a directory",
		Long: `Compile every *.json definition in a directory concurrently.

Each definition is compiled independently; a failing definition does not
stop the others. With --out each script is written to <out>/<name>.sql.

Exit codes:
  0 - All definitions compiled
  1 - One or more definitions failed
  2 - Command error (invalid paths, unknown backend, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 4, "number of definitions compiled concurrently")
	cmd.Flags().StringVar(&opts.OutDir, "out", "", "write each script to this directory")

	return cmd
}

func runBatch(opts *BatchOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("definitions directory not found: %s", dir), nil)
	}
	if opts.Jobs < 1 {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("--jobs must be at least 1, got %d", opts.Jobs), nil)
	}

	// Glob results are sorted, so items keep a stable order.
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	c, err := opts.newCompiler()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrorCode(err), errorMessage(err), nil)
	}

	if opts.OutDir != "" {
		if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
			return formatter.fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("creating output directory: %v", err), nil)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	items, err := compileBatch(ctx, c, paths, opts.Jobs, opts.OutDir)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	result := BatchResult{Items: items, Total: len(items)}
	for _, item := range items {
		if item.Error != nil {
			result.Failed++
		}
	}
	logger := opts.Logger()
	logger.Info().
		Int("total", result.Total).
		Int("failed", result.Failed).
		Int("jobs", opts.Jobs).
		Msg("batch compiled")

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		outputBatchText(formatter, result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d definition(s) failed", result.Failed))
	}
	return nil
}

// compileBatch compiles paths with at most jobs concurrent compilations.
// Per-definition failures are recorded in the items; only cancellation
// aborts the batch.
func compileBatch(ctx context.Context, c *querysql.Compiler, paths []string, jobs int, outDir string) ([]BatchItem, error) {
	items := make([]BatchItem, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			items[i] = compileBatchItem(c, path, outDir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

func compileBatchItem(c *querysql.Compiler, path, outDir string) BatchItem {
	item := BatchItem{Definition: path}
	fail := func(err error) BatchItem {
		item.Error = &CLIError{Code: ErrorCode(err), Message: errorMessage(err)}
		return item
	}

	def, err := LoadDefinition(path)
	if err != nil {
		return fail(err)
	}
	if item.Hash, err = def.Hash(); err != nil {
		return fail(err)
	}
	plan, err := compileAndValidate(c, def)
	if err != nil {
		return fail(err)
	}
	item.Stages = len(plan.Stages)

	if outDir != "" {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".sql"
		item.Output = filepath.Join(outDir, name)
		if err := os.WriteFile(item.Output, []byte(querysql.Script(plan.Statements())), 0644); err != nil {
			return fail(&LoadError{Code: ErrCodeWriteFailed, Message: err.Error()})
		}
	}
	return item
}

func outputBatchText(formatter *OutputFormatter, result BatchResult) {
	rows := make([][]string, len(result.Items))
	for i, item := range result.Items {
		status := "ok"
		if item.Error != nil {
			status = item.Error.Code + ": " + item.Error.Message
		}
		rows[i] = []string{filepath.Base(item.Definition), strconv.Itoa(item.Stages), status}
	}
	formatter.Table([]string{"definition", "stages", "status"}, rows)
	fmt.Fprintf(formatter.Writer, "\nBatch Summary: %d compiled, %d failed, %d total\n",
		result.Total-result.Failed, result.Failed, result.Total)
}
