package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/querysql"
	"github.com/roach88/docsql/internal/store"
)

// ReplayDrift describes one journal entry that compiles differently now.
type ReplayDrift struct {
	EntryID string          `json:"entry_id"`
	Seq     int64           `json:"seq"`
	Request json.RawMessage `json:"request,omitempty"`

	WantSQL  string          `json:"want_sql,omitempty"`
	WantArgs json.RawMessage `json:"want_args,omitempty"`
	WantErr  string          `json:"want_error,omitempty"`

	GotSQL  string          `json:"got_sql,omitempty"`
	GotArgs json.RawMessage `json:"got_args,omitempty"`
	GotErr  string          `json:"got_error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Total     int           `json:"total"`
	Unchanged int           `json:"unchanged"`
	Drifted   []ReplayDrift `json:"drifted"`
	Clean     bool          `json:"clean"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Recompile the journal and report drift",
		Long: `Recompile every journaled request, in the order it was recorded, and
compare the result with the recorded SQL, args or error.

Exit codes:
  0 - Every entry compiles as recorded
  1 - One or more entries drifted
  2 - Command error (journal not found, bad schema, etc.)

Examples:
  docsql replay --schema ./schema --db ./docsql.db
  docsql replay --schema ./schema --db ./docsql.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), rootOpts, cmd)
		},
	}

	return cmd
}

func runReplay(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.DB == "" {
		return outputCommandError(formatter, &CLIError{Code: ErrCodeJournal, Message: "no journal: set --db, DOCSQL_DB or db in docsql.yaml"})
	}
	if _, err := os.Stat(opts.DB); err != nil {
		return outputCommandError(formatter, &CLIError{Code: ErrCodeNotFound, Message: fmt.Sprintf("journal not found: %s", opts.DB)})
	}
	reg, cliErr := loadRegistry(opts)
	if cliErr != nil {
		return outputCommandError(formatter, cliErr)
	}
	compiler := querysql.NewCompiler(reg)

	st, err := store.Open(opts.DB)
	if err != nil {
		return outputCommandError(formatter, &CLIError{Code: ErrCodeJournal, Message: fmt.Sprintf("failed to open journal: %v", err)})
	}
	defer st.Close()

	report, err := st.Replay(ctx, func(request ir.Value) (string, []any, error) {
		q, err := compiler.CompileDocument(request)
		if err != nil {
			return "", nil, err
		}
		return q.SQL, q.Args, nil
	})
	if err != nil {
		return outputCommandError(formatter, &CLIError{Code: ErrCodeJournal, Message: fmt.Sprintf("replay failed: %v", err)})
	}
	slog.Info("journal replayed", "total", report.Total, "drifted", len(report.Drifted))

	result := ReplayResult{
		Total:     report.Total,
		Unchanged: report.Unchanged,
		Drifted:   make([]ReplayDrift, 0, len(report.Drifted)),
		Clean:     report.Clean(),
	}
	for _, d := range report.Drifted {
		rd, err := toReplayDrift(ctx, st, d)
		if err != nil {
			return outputCommandError(formatter, &CLIError{Code: ErrCodeJournal, Message: err.Error()})
		}
		result.Drifted = append(result.Drifted, rd)
	}

	return outputReplay(formatter, result)
}

func toReplayDrift(ctx context.Context, st *store.Store, d store.Drift) (ReplayDrift, error) {
	rd := ReplayDrift{
		EntryID: d.EntryID,
		Seq:     d.Seq,
		WantSQL: d.WantSQL,
		WantErr: d.WantErr,
		GotSQL:  d.GotSQL,
		GotErr:  d.GotErr,
	}

	entry, err := st.Get(ctx, d.EntryID)
	if err != nil {
		return ReplayDrift{}, fmt.Errorf("reading entry %s: %w", d.EntryID, err)
	}
	if rd.Request, err = ir.MarshalCanonical(entry.Request); err != nil {
		return ReplayDrift{}, err
	}

	if d.WantErr == "" {
		if rd.WantArgs, err = canonicalArgs(d.WantArgs); err != nil {
			return ReplayDrift{}, err
		}
	}
	if d.GotErr == "" {
		if rd.GotArgs, err = canonicalArgs(d.GotArgs); err != nil {
			return ReplayDrift{}, err
		}
	}
	return rd, nil
}

func outputReplay(formatter *OutputFormatter, result ReplayResult) error {
	if formatter.Format == "json" {
		var failure *CLIError
		if !result.Clean {
			failure = &CLIError{Code: ErrCodeDrift, Message: fmt.Sprintf("%d journal entr(ies) drifted", len(result.Drifted))}
		}
		if err := formatter.Report(result, failure); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		fmt.Fprintf(w, "Replay Summary: %d entr(ies), %d unchanged\n", result.Total, result.Unchanged)

		for _, d := range result.Drifted {
			fmt.Fprintln(w)
			formatter.Fail("Entry %s (seq %d): %s", d.EntryID, d.Seq, d.Request)
			fmt.Fprintf(w, "  recorded: %s\n", outcome(d.WantSQL, d.WantArgs, d.WantErr))
			fmt.Fprintf(w, "  now:      %s\n", outcome(d.GotSQL, d.GotArgs, d.GotErr))
		}

		fmt.Fprintln(w)
		if result.Clean {
			formatter.Pass("Journal replays unchanged")
		} else {
			formatter.Fail("Journal drift detected")
		}
	}

	if !result.Clean {
		// Drift = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d journal entr(ies) drifted", len(result.Drifted)))
	}
	return nil
}

func outcome(sql string, args json.RawMessage, errMsg string) string {
	if errMsg != "" {
		return "error: " + errMsg
	}
	return fmt.Sprintf("%s %s", sql, args)
}
