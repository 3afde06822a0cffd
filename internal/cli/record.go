package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/docsql/internal/querysql"
	"github.com/roach88/docsql/internal/store"
)

// RecordedEntry describes one journaled request.
type RecordedEntry struct {
	Request string    `json:"request"`
	EntryID string    `json:"entry_id"`
	New     bool      `json:"new"`
	Error   *CLIError `json:"error,omitempty"`
}

// RecordResult holds the outcome of a record run.
type RecordResult struct {
	Entries  []RecordedEntry `json:"entries"`
	Recorded int             `json:"recorded"`
	Existing int             `json:"existing"`
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record <request>...",
		Short: "Compile requests and journal the output",
		Long: `Compile request documents and store each request with its SQL, args
or error in the journal. A request already in the journal keeps its first
recorded output; use replay to check it still compiles the same way.

Requests the compiler rejects are journaled too, with their error.

Examples:
  docsql record ./requests/*.yaml --schema ./schema --db ./docsql.db`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd.Context(), rootOpts, args, cmd)
		},
	}

	return cmd
}

func runRecord(ctx context.Context, opts *RootOptions, paths []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.DB == "" {
		return outputCommandError(formatter, &CLIError{Code: ErrCodeJournal, Message: "no journal: set --db, DOCSQL_DB or db in docsql.yaml"})
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

	result := RecordResult{Entries: make([]RecordedEntry, 0, len(paths))}
	for _, path := range paths {
		doc, cliErr := readRequest(opts.fs(), path)
		if cliErr != nil {
			return outputCommandError(formatter, cliErr)
		}

		q, compileErr := compiler.CompileDocument(doc)
		id, inserted, err := st.Record(ctx, store.Compilation{
			Request: doc,
			SQL:     q.SQL,
			Args:    q.Args,
			Err:     compileErr,
		})
		if err != nil {
			return outputCommandError(formatter, &CLIError{Code: ErrCodeJournal, Message: fmt.Sprintf("recording %s: %v", path, err)})
		}
		slog.Info("journal entry", "request", path, "entry", id, "new", inserted)

		entry := RecordedEntry{Request: path, EntryID: id, New: inserted}
		if compileErr != nil {
			entry.Error = queryError(compileErr)
		}
		result.Entries = append(result.Entries, entry)
		if inserted {
			result.Recorded++
		} else {
			result.Existing++
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	for _, e := range result.Entries {
		status := "recorded"
		if !e.New {
			status = "already journaled"
		}
		formatter.Pass("%s: %s as %s", e.Request, status, e.EntryID)
		if e.Error != nil {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", e.Error.Code, e.Error.Message)
		}
	}
	fmt.Fprintf(formatter.Writer, "\nRecord Summary: %d new, %d existing\n", result.Recorded, result.Existing)
	return nil
}
