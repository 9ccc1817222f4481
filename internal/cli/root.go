package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/cohortql/internal/backend"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Config is resolved from flags, COHORTQL_* variables and the config
	// file before any command runs.
	Config Config

	logger zerolog.Logger
}

// Config is the merged configuration of a run.
type Config struct {
	Backend string    `mapstructure:"backend"`
	Dialect string    `mapstructure:"dialect"`
	DB      string    `mapstructure:"db"`
	Log     LogConfig `mapstructure:"log"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// envPrefix prefixes environment variables: COHORTQL_BACKEND,
// COHORTQL_LOG_LEVEL and so on.
const envPrefix = "COHORTQL"

// configFlags maps config keys to the persistent flags bound to them.
var configFlags = map[string]string{
	"backend":    "backend",
	"dialect":    "dialect",
	"db":         "db",
	"log.level":  "log-level",
	"log.format": "log-format",
}

// NewRootCommand creates the root command for the cohortql CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{logger: zerolog.Nop()})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cohortql",
		Short: "cohortql - cohort definitions compiled to SQL",
		Long: `Compile patient cohort definitions into staged SQL for a clinical data warehouse.

A definition is a graph of table, filter, row and value nodes stored in a
portable JSON form. cohortql validates definitions, compiles them against a
backend (a mapping of logical tables to physical sources) and keeps a
versioned store of definitions and their compiled SQL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if err := opts.loadConfig(cmd); err != nil {
				return NewExitError(ExitCommandError, err.Error())
			}
			logger, err := SetupLogger(opts.Config.Log, cmd.ErrOrStderr())
			if err != nil {
				return NewExitError(ExitCommandError, err.Error())
			}
			opts.logger = logger
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (yaml)")
	flags.String("backend", backend.TPPName, "builtin backend name or backend file (.cue|.yaml)")
	flags.String("dialect", "mssql", "SQL dialect (mssql|sqlite)")
	flags.String("db", "cohortql.db", "definition store database path")
	flags.String("log-level", zerolog.LevelWarnValue,
		fmt.Sprintf("logging level %s|%s|%s|%s",
			zerolog.LevelDebugValue,
			zerolog.LevelInfoValue,
			zerolog.LevelWarnValue,
			zerolog.LevelErrorValue,
		),
	)
	flags.String("log-format", LogFormatText, "logging format (text|json)")

	// Add subcommands
	cmd.AddCommand(NewSQLCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewBatchCommand(opts))
	cmd.AddCommand(NewStoreCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// loadConfig merges, lowest precedence first: flag defaults, the config
// file, COHORTQL_* environment variables and explicitly set flags.
func (o *RootOptions) loadConfig(cmd *cobra.Command) error {
	v := viper.New()

	flags := cmd.Root().PersistentFlags()
	for key, name := range configFlags {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	if o.ConfigFile != "" {
		v.SetConfigFile(o.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading from config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&o.Config); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
