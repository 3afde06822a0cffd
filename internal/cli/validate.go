package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docsql/internal/querysql"
)

// RequestValidation is the validation outcome of one request file.
type RequestValidation struct {
	Request string    `json:"request"`
	Valid   bool      `json:"valid"`
	Error   *CLIError `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Requests []RequestValidation `json:"requests"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <request>...",
		Short: "Validate requests without rendering SQL",
		Long: `Parse and check request documents against the schema without
rendering SQL. Faster than compile for development feedback.

Exit codes:
  0 - All requests valid
  1 - One or more requests rejected
  2 - Command error (missing file, bad schema, etc.)`,
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
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	reg, cliErr := loadRegistry(opts)
	if cliErr != nil {
		return outputCommandError(formatter, cliErr)
	}
	compiler := querysql.NewCompiler(reg)

	result := ValidationResult{Valid: true, Requests: make([]RequestValidation, 0, len(paths))}
	for _, path := range paths {
		formatter.VerboseLog("Validating request: %s", path)

		doc, cliErr := readRequest(opts.fs(), path)
		if cliErr != nil {
			return outputCommandError(formatter, cliErr)
		}

		rv := RequestValidation{Request: path, Valid: true}
		req, err := querysql.ParseRequest(doc)
		if err == nil {
			_, err = compiler.BuildRequest(req)
		}
		if err != nil {
			rv.Valid = false
			rv.Error = queryError(err)
			result.Valid = false
		}
		result.Requests = append(result.Requests, rv)
	}

	return outputValidation(formatter, result)
}

func outputValidation(formatter *OutputFormatter, result ValidationResult) error {
	var invalid []RequestValidation
	for _, rv := range result.Requests {
		if !rv.Valid {
			invalid = append(invalid, rv)
		}
	}

	if formatter.Format == "json" {
		var failure *CLIError
		if len(invalid) > 0 {
			failure = invalid[0].Error
		}
		if err := formatter.Report(result, failure); err != nil {
			return err
		}
	} else {
		for _, rv := range result.Requests {
			if rv.Valid {
				formatter.Pass("%s", rv.Request)
				continue
			}
			formatter.Fail("%s", rv.Request)
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", rv.Error.Code, rv.Error.Message)
		}
		if len(invalid) == 0 {
			fmt.Fprintln(formatter.Writer)
			formatter.Pass("All requests valid")
		}
	}

	if len(invalid) > 0 {
		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(invalid)))
	}
	return nil
}
