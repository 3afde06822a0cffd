package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/docsql/internal/ir"
)

// CompileFunc recompiles a journaled request document.
type CompileFunc func(request ir.Value) (sql string, args []any, err error)

// Drift describes an entry whose recompiled output no longer matches the
// journal.
type Drift struct {
	EntryID     string
	Seq         int64
	RequestHash string

	WantSQL  string
	WantArgs []any
	WantErr  string

	GotSQL  string
	GotArgs []any
	GotErr  string
}

// ReplayReport summarizes a replay run.
type ReplayReport struct {
	Total     int
	Unchanged int
	Drifted   []Drift
}

// Clean reports whether every entry recompiled to its recorded output.
func (r ReplayReport) Clean() bool {
	return len(r.Drifted) == 0
}

// Replay recompiles every entry in seq order and compares the result with
// the recorded output. SQL and args are compared through their compiled
// hash; failed compilations are compared by error kind and message.
//
// The journal itself is never modified.
func (s *Store) Replay(ctx context.Context, compile CompileFunc) (ReplayReport, error) {
	entries, err := s.ReadAll(ctx)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}

	report := ReplayReport{Total: len(entries), Drifted: []Drift{}}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("replay: %w", err)
		}

		drift, ok, err := replayEntry(e, compile)
		if err != nil {
			return report, fmt.Errorf("replay entry %s: %w", e.ID, err)
		}
		if ok {
			report.Unchanged++
			continue
		}
		slog.Debug("replay drift", "entry", e.ID, "seq", e.Seq)
		report.Drifted = append(report.Drifted, drift)
	}

	return report, nil
}

// replayEntry returns ok=true when the entry still compiles to its
// recorded output.
func replayEntry(e Entry, compile CompileFunc) (Drift, bool, error) {
	sql, args, compileErr := compile(e.Request)

	drift := Drift{
		EntryID:     e.ID,
		Seq:         e.Seq,
		RequestHash: e.RequestHash,
		WantSQL:     e.SQL,
		WantArgs:    e.Args,
		WantErr:     e.ErrorMessage,
	}

	if compileErr != nil {
		drift.GotErr = compileErr.Error()
		same := e.Failed() && e.ErrorKind == kindOf(compileErr) && e.ErrorMessage == drift.GotErr
		return drift, same, nil
	}

	drift.GotSQL, drift.GotArgs = sql, args
	if e.Failed() {
		return drift, false, nil
	}

	got, err := ir.CompiledHash(sql, args)
	if err != nil {
		return Drift{}, false, err
	}
	return drift, got == e.CompiledHash, nil
}
