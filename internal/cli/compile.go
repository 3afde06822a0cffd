package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/querysql"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompileResult is the compiled form of one request.
type CompileResult struct {
	Request string          `json:"request"`
	SQL     string          `json:"sql"`
	Args    json.RawMessage `json:"args"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <request>",
		Short: "Compile a request document to SQL",
		Long: `Compile a request document (YAML or JSON) to parameterized SQL.

A request names a table (or a nested "from" request) and optionally a
selector, options and pipeline:

  table: Posts
  selector: {score: {$gt: 3}}
  options: {sort: {score: -1}, limit: 10}

Exit codes:
  0 - Request compiled
  1 - Request rejected by the compiler
  2 - Command error (missing file, bad schema, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the JSON result to a file")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	reg, cliErr := loadRegistry(opts.RootOptions)
	if cliErr != nil {
		return outputCommandError(formatter, cliErr)
	}
	formatter.VerboseLog("Loaded %d table(s) from %s", reg.Len(), opts.Schema)

	doc, cliErr := readRequest(opts.fs(), path)
	if cliErr != nil {
		return outputCommandError(formatter, cliErr)
	}

	q, err := querysql.NewCompiler(reg).CompileDocument(doc)
	if err != nil {
		cliErr := queryError(err)
		_ = formatter.Error(cliErr.Code, cliErr.Message, nil)
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", cliErr.Code, cliErr.Message))
	}
	slog.Debug("compiled request", "path", path, "args", len(q.Args))

	args, err := canonicalArgs(q.Args)
	if err != nil {
		return outputCommandError(formatter, &CLIError{Code: ErrCodeGeneric, Message: err.Error()})
	}
	result := CompileResult{Request: path, SQL: q.SQL, Args: args}

	if opts.Output != "" {
		if err := writeResultFile(opts.fs(), opts.Output, result); err != nil {
			return outputCommandError(formatter, &CLIError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	formatter.Pass("Compiled %s", path)
	fmt.Fprintf(formatter.Writer, "\n%s\n", q.SQL)
	if len(q.Args) > 0 {
		fmt.Fprintln(formatter.Writer, "\nArgs:")
		for i, a := range q.Args {
			v, _ := ir.FromNative(a)
			fmt.Fprintf(formatter.Writer, "  $%d = %s\n", i+1, ir.CanonicalString(v))
		}
	}
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote result to %s\n", opts.Output)
	}
	return nil
}

// outputCommandError outputs a command-level error (exit code 2).
func outputCommandError(formatter *OutputFormatter, cliErr *CLIError) error {
	_ = formatter.Error(cliErr.Code, cliErr.Message, cliErr.Details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", cliErr.Code, cliErr.Message))
}

// writeResultFile writes v as indented JSON.
func writeResultFile(fs afero.Fs, filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	if err := afero.WriteFile(fs, filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
