package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
	"github.com/roach88/docsql/internal/querysql"
	"github.com/roach88/docsql/internal/schema"
	"github.com/roach88/docsql/internal/store"
	"github.com/roach88/docsql/internal/testutil"
)

// Harness compiles scenario cases and journals them.
type Harness struct {
	compiler *querysql.Compiler
	journal  *store.Store
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// The scenario's inline schema takes precedence over reg. Each run uses a
// fresh in-memory journal with a step clock and sequential entry IDs, so
// runs never share state.
//
// Execution flow:
// 1. Compile every case in order, checking its expect clause
// 2. Record each compilation in the journal
// 3. Replay the journal and report drift
// 4. Evaluate assertions
func Run(scenario *Scenario, reg *schema.Registry) (*Result, error) {
	if scenario.Schema != "" {
		loaded, err := schema.LoadString(scenario.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to load scenario schema: %w", err)
		}
		reg = loaded
	}
	if reg == nil {
		return nil, fmt.Errorf("scenario %s has no schema and no registry was given", scenario.Name)
	}

	journal, err := store.Open(":memory:",
		store.WithClock(testutil.NewStepClock()),
		store.WithIDGenerator(testutil.NewSequentialIDs(scenario.Name)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer journal.Close()

	h := &Harness{
		compiler: querysql.NewCompiler(reg),
		journal:  journal,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()
	result := NewResult()

	for i, c := range scenario.Cases {
		cr, err := h.runCase(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("case %d (%s): %w", i, c.Name, err)
		}
		result.Cases = append(result.Cases, cr)
		for _, msg := range checkExpect(c, cr) {
			result.AddError(msg)
		}
	}

	report, err := journal.Replay(ctx, h.compile)
	if err != nil {
		return nil, fmt.Errorf("failed to replay journal: %w", err)
	}
	for _, d := range report.Drifted {
		result.AddError(fmt.Sprintf("nondeterministic compilation (entry %s): first %q %v %s, then %q %v %s",
			d.EntryID, d.WantSQL, d.WantArgs, d.WantErr, d.GotSQL, d.GotArgs, d.GotErr))
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

func (h *Harness) compile(request ir.Value) (string, []any, error) {
	q, err := h.compiler.CompileDocument(request)
	if err != nil {
		return "", nil, err
	}
	return q.SQL, q.Args, nil
}

func (h *Harness) runCase(ctx context.Context, c Case) (CaseResult, error) {
	cr := CaseResult{Name: c.Name}

	sql, args, compileErr := h.compile(c.Request.Value)
	if compileErr != nil {
		cr.ErrorMessage = compileErr.Error()
		if kind, ok := queryir.KindOf(compileErr); ok {
			cr.ErrorKind = string(kind)
		}
	} else {
		cr.SQL, cr.Args = sql, args
	}

	id, inserted, err := h.journal.Record(ctx, store.Compilation{
		Request: c.Request.Value,
		SQL:     sql,
		Args:    args,
		Err:     compileErr,
	})
	if err != nil {
		return CaseResult{}, fmt.Errorf("record: %w", err)
	}

	h.logger.Info("case compiled",
		"case", c.Name,
		"entry", id,
		"new_entry", inserted,
		"failed", cr.Failed(),
	)
	return cr, nil
}

// checkExpect compares a case result with its expect clause.
func checkExpect(c Case, cr CaseResult) []string {
	e := c.Expect
	if e == nil {
		return nil
	}

	var errs []string
	if e.Error != nil {
		switch {
		case !cr.Failed():
			errs = append(errs, fmt.Sprintf("case %s: expected error %q, got SQL %q", c.Name, e.Error.Message, cr.SQL))
		case cr.ErrorMessage != e.Error.Message:
			errs = append(errs, fmt.Sprintf("case %s: expected error %q, got %q", c.Name, e.Error.Message, cr.ErrorMessage))
		case e.Error.Kind != "" && cr.ErrorKind != e.Error.Kind:
			errs = append(errs, fmt.Sprintf("case %s: expected error kind %s, got %s", c.Name, e.Error.Kind, cr.ErrorKind))
		}
		return errs
	}

	if cr.Failed() {
		return []string{fmt.Sprintf("case %s: unexpected error: %s", c.Name, cr.ErrorMessage)}
	}
	if e.SQL != "" && cr.SQL != e.SQL {
		errs = append(errs, fmt.Sprintf("case %s: SQL mismatch\n  want: %s\n  got:  %s", c.Name, e.SQL, cr.SQL))
	}
	if !e.Args.IsZero() {
		want := ir.CanonicalString(e.Args.Value)
		got, err := argsString(cr.Args)
		if err != nil {
			errs = append(errs, fmt.Sprintf("case %s: %v", c.Name, err))
		} else if got != want {
			errs = append(errs, fmt.Sprintf("case %s: args mismatch\n  want: %s\n  got:  %s", c.Name, want, got))
		}
	}
	return errs
}

// argsString renders compiled args as canonical JSON.
func argsString(args []any) (string, error) {
	arr := make(ir.Array, len(args))
	for i, a := range args {
		v, ok := ir.FromNative(a)
		if !ok {
			return "", fmt.Errorf("arg %d has unsupported type %T", i, a)
		}
		arr[i] = v
	}
	return ir.CanonicalString(arr), nil
}
