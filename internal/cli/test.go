package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/docsql/internal/harness"
	"github.com/roach88/docsql/internal/schema"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern)
	GoldenDir string // golden snapshot directory
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario>...",
		Short: "Run scenario suites",
		Long: `Run YAML scenario suites through the compiler.

Each argument is a scenario file or a directory of them. Cases are checked
against their expectations and assertions, then the compiled output is
compared with the golden snapshot {golden-dir}/{scenario name}.golden when
one exists. --schema is optional when every scenario has an inline schema.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  docsql test ./testdata/scenarios --schema ./schema
  docsql test ./testdata/scenarios --filter "select*"
  docsql test ./testdata/scenarios --update
  docsql test ./testdata/scenarios --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by file name glob")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", filepath.Join("testdata", "golden"), "golden snapshot directory")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	fs := opts.fs()

	var reg *schema.Registry
	if opts.Schema != "" {
		loaded, cliErr := loadRegistry(opts.RootOptions)
		if cliErr != nil {
			return outputCommandError(formatter, cliErr)
		}
		reg = loaded
	}

	files, err := harness.FindScenarios(fs, paths)
	if err != nil {
		var notFound *harness.ScenarioNotFoundError
		if errors.As(err, &notFound) {
			return outputCommandError(formatter, &CLIError{Code: ErrCodeNotFound, Message: err.Error()})
		}
		return outputCommandError(formatter, &CLIError{Code: ErrCodeGeneric, Message: err.Error()})
	}
	files, err = filterScenarios(files, opts.Filter)
	if err != nil {
		return outputCommandError(formatter, &CLIError{Code: ErrCodeGeneric, Message: err.Error()})
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		sr := runScenario(opts, fs, file, reg)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}

		if formatter.Format != "json" {
			if sr.Pass {
				formatter.Pass("%s", sr.Name)
			} else {
				formatter.Fail("%s", sr.Name)
				for _, e := range sr.Errors {
					fmt.Fprintf(formatter.Writer, "  %s\n", e)
				}
			}
		}
	}

	return outputTests(formatter, result)
}

// filterScenarios keeps the files whose base name, without extension,
// matches the glob.
func filterScenarios(files []string, filter string) ([]string, error) {
	if filter == "" {
		return files, nil
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		base := filepath.Base(f)
		matched, err := filepath.Match(filter, strings.TrimSuffix(base, filepath.Ext(base)))
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			out = append(out, f)
		}
	}
	return out, nil
}

// runScenario executes a single scenario and returns the result.
func runScenario(opts *TestOptions, fs afero.Fs, file string, reg *schema.Registry) ScenarioResult {
	scenario, err := harness.LoadScenario(fs, file)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(file),
			File:   file,
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}
	sr := ScenarioResult{Name: scenario.Name, File: file}

	result, err := harness.Run(scenario, reg)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}

	snapshot, err := harness.Snapshot(scenario.Name, result)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("snapshot failed: %v", err)}
		return sr
	}

	goldenPath := filepath.Join(opts.GoldenDir, scenario.Name+".golden")
	if opts.Update {
		if err := writeGolden(fs, goldenPath, snapshot); err != nil {
			sr.Errors = []string{fmt.Sprintf("failed to update golden file: %v", err)}
			return sr
		}
	} else if msg, err := compareGolden(fs, goldenPath, snapshot); err != nil {
		sr.Errors = []string{fmt.Sprintf("golden comparison failed: %v", err)}
		return sr
	} else if msg != "" {
		result.AddError(msg)
	}

	sr.Pass = result.Pass
	if !result.Pass {
		sr.Errors = result.Errors
	}
	return sr
}

// writeGolden writes the snapshot, creating the golden directory.
func writeGolden(fs afero.Fs, path string, snapshot []byte) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return afero.WriteFile(fs, path, snapshot, 0o644)
}

// compareGolden returns a mismatch message, or "" when the snapshot
// matches or no golden file exists.
func compareGolden(fs afero.Fs, path string, snapshot []byte) (string, error) {
	golden, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read golden file: %w", err)
	}
	if !bytes.Equal(golden, snapshot) {
		return fmt.Sprintf("snapshot does not match %s (run with --update to regenerate)", path), nil
	}
	return "", nil
}

func outputTests(formatter *OutputFormatter, result TestResult) error {
	if formatter.Format == "json" {
		var failure *CLIError
		if result.Failed > 0 {
			failure = &CLIError{
				Code:    ErrCodeTestFailed,
				Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
			}
		}
		if err := formatter.Report(result, failure); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
		if result.Failed == 0 {
			formatter.Pass("All scenarios passed")
		}
	}

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}
