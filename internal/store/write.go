package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
)

// Compilation is the outcome of compiling one request document.
// Exactly one of (SQL, Args) or Err is meaningful.
type Compilation struct {
	Request ir.Value
	SQL     string
	Args    []any
	Err     error
}

// Record appends a compilation to the journal.
// Returns the entry ID and whether a new entry was inserted.
//
// Entries are keyed by request hash: recording a request that is already
// journaled returns the existing ID and inserted=false, leaving the stored
// output untouched so replay can still detect drift against it.
func (s *Store) Record(ctx context.Context, c Compilation) (id string, inserted bool, err error) {
	if c.Request == nil {
		return "", false, fmt.Errorf("record: request is required")
	}

	requestHash, err := ir.RequestHash(c.Request)
	if err != nil {
		return "", false, fmt.Errorf("record: %w", err)
	}

	request, err := s.codec.encodeRequest(c.Request)
	if err != nil {
		return "", false, fmt.Errorf("record: %w", err)
	}

	var (
		compiledHash string
		errorKind    string
		errorMessage string
		args         = c.Args
		sqlText      = c.SQL
	)
	if c.Err != nil {
		errorKind = kindOf(c.Err)
		errorMessage = c.Err.Error()
		args, sqlText = nil, ""
	} else {
		compiledHash, err = ir.CompiledHash(sqlText, args)
		if err != nil {
			return "", false, fmt.Errorf("record: %w", err)
		}
	}

	argsBlob, err := encodeArgs(args)
	if err != nil {
		return "", false, fmt.Errorf("record: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("record: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	id = s.ids.NewID()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO compilations
		(id, seq, request_hash, request, sql_text, args, compiled_hash, error_kind, error_message, recorded_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM compilations), ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_hash) DO NOTHING
	`,
		id,
		requestHash,
		request,
		s.codec.encodeSQL(sqlText),
		argsBlob,
		compiledHash,
		errorKind,
		errorMessage,
		s.clock.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", false, fmt.Errorf("record: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("record: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM compilations WHERE request_hash = ?
		`, requestHash).Scan(&id)
		if err != nil {
			return "", false, fmt.Errorf("record: select existing: %w", err)
		}
	} else {
		inserted = true
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("record: commit: %w", err)
	}

	return id, inserted, nil
}

// Forget removes the entry for a request, so the next Record stores fresh
// output for it. Returns false if the request was not journaled.
func (s *Store) Forget(ctx context.Context, request ir.Value) (bool, error) {
	requestHash, err := ir.RequestHash(request)
	if err != nil {
		return false, fmt.Errorf("forget: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM compilations WHERE request_hash = ?`, requestHash)
	if err != nil {
		return false, fmt.Errorf("forget: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("forget: rows affected: %w", err)
	}
	return n > 0, nil
}

// kindOf returns the query error kind of err, or INTERNAL for errors that
// did not come from the compiler.
func kindOf(err error) string {
	if kind, ok := queryir.KindOf(err); ok {
		return string(kind)
	}
	return "INTERNAL"
}
