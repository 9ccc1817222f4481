package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/cohortql/internal/backend"
	"github.com/roach88/cohortql/internal/queryir"
)

// FileValidation holds the validation result of one file.
type FileValidation struct {
	Path   string     `json:"path"`
	Kind   string     `json:"kind"` // "definition" or "backend"
	Valid  bool       `json:"valid"`
	Errors []CLIError `json:"errors,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate definitions and backend files without compiling",
		Long: `Validate portable definitions (.json) and backend files (.cue, .yaml).

Definitions are decoded and checked for a population output, unique output
names, complete chains and renderable literals. Every problem is reported,
not only the first. Backend files are checked against the backend schema.

Exit codes:
  0 - All files are valid
  1 - One or more files are invalid`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(paths))}
	for _, path := range paths {
		formatter.VerboseLog("Validating %s", path)
		fv := validateFile(path)
		if !fv.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		outputValidateText(formatter, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func validateFile(path string) FileValidation {
	switch filepath.Ext(path) {
	case ".cue", ".yaml", ".yml":
		fv := FileValidation{Path: path, Kind: "backend", Valid: true}
		if _, err := backend.Load(path); err != nil {
			fv.Valid = false
			fv.Errors = []CLIError{{Code: ErrCodeBackendFailed, Message: err.Error()}}
		}
		return fv
	}

	fv := FileValidation{Path: path, Kind: "definition", Valid: true}
	def, err := LoadDefinition(path)
	if err != nil {
		fv.Valid = false
		fv.Errors = []CLIError{{Code: ErrorCode(err), Message: errorMessage(err)}}
		return fv
	}

	err = queryir.Validate(def.Cohort)
	var ve *queryir.ValidationError
	if errors.As(err, &ve) {
		fv.Valid = false
		for _, v := range ve.Violations {
			fv.Errors = append(fv.Errors, CLIError{Code: ErrCodeInvalidDefinition, Message: v.String()})
		}
	}
	return fv
}

func outputValidateText(formatter *OutputFormatter, result ValidationResult) {
	w := formatter.Writer
	for _, f := range result.Files {
		if f.Valid {
			fmt.Fprintf(w, "ok    %s (%s)\n", f.Path, f.Kind)
			continue
		}
		fmt.Fprintf(w, "FAIL  %s (%s)\n", f.Path, f.Kind)
		for _, e := range f.Errors {
			fmt.Fprintf(w, "  %s: %s\n", e.Code, e.Message)
		}
	}
}
