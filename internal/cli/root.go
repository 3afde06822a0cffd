package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Schema  string // CUE schema directory
	DB      string // journal path

	// Fs serves request and scenario files. Nil means the OS file system.
	Fs afero.Fs

	config *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func (o *RootOptions) fs() afero.Fs {
	if o.Fs == nil {
		return afero.NewOsFs()
	}
	return o.Fs
}

// NewRootCommand creates the root command for the docsql CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithFs(afero.NewOsFs())
}

// NewRootCommandWithFs creates the root command reading files and
// configuration from fs.
func NewRootCommandWithFs(fs afero.Fs) *cobra.Command {
	opts := &RootOptions{Fs: fs, config: newConfig(fs)}

	cmd := &cobra.Command{
		Use:   "docsql",
		Short: "docsql - document queries on Postgres",
		Long: `Compile MongoDB-style selectors, options and pipelines into
parameterized Postgres SQL against tables described in CUE.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				return err
			}
			setupLogging(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, KeyVerbose, "v", false, "verbose output")
	flags.StringVar(&opts.Format, KeyFormat, "text", "output format (json|text)")
	flags.StringVar(&opts.Schema, KeySchema, "", "directory of CUE table definitions")
	flags.StringVar(&opts.DB, KeyDB, "", "path to the compilation journal")
	for _, key := range []string{KeyVerbose, KeyFormat, KeySchema, KeyDB} {
		_ = opts.config.BindPFlag(key, flags.Lookup(key))
	}

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewRecordCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))

	return cmd
}

// resolve merges flags, environment and config file into the options.
func (o *RootOptions) resolve() error {
	if o.config != nil {
		if err := loadConfig(o.config, o.fs()); err != nil {
			return WrapExitError(ExitCommandError, "invalid configuration", err)
		}
		o.Verbose = o.config.GetBool(KeyVerbose)
		o.Format = o.config.GetString(KeyFormat)
		o.Schema = o.config.GetString(KeySchema)
		o.DB = o.config.GetString(KeyDB)
	}

	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	return nil
}

// setupLogging installs the default slog handler. Logs go to w so they
// never mix with JSON output.
func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
