package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/docsql/internal/ir"
)

// Entry is one journaled compilation.
type Entry struct {
	ID           string
	Seq          int64
	RequestHash  string
	Request      ir.Value
	SQL          string
	Args         []any
	CompiledHash string
	ErrorKind    string
	ErrorMessage string
	RecordedAt   time.Time
}

// Failed reports whether the recorded compilation raised an error.
func (e Entry) Failed() bool {
	return e.ErrorKind != ""
}

const entryColumns = `id, seq, request_hash, request, sql_text, args, compiled_hash, error_kind, error_message, recorded_at`

// Get retrieves a single entry by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM compilations
		WHERE id = ?
	`, id)
	return s.scanEntry(row)
}

// GetByRequest retrieves the entry recorded for a request document.
// Returns sql.ErrNoRows if the request was never recorded.
func (s *Store) GetByRequest(ctx context.Context, request ir.Value) (Entry, error) {
	requestHash, err := ir.RequestHash(request)
	if err != nil {
		return Entry{}, fmt.Errorf("get by request: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM compilations
		WHERE request_hash = ?
	`, requestHash)
	return s.scanEntry(row)
}

// ReadAll returns every entry ordered by seq ASC, id ASC COLLATE BINARY.
// Returns an empty slice (not nil) for an empty journal.
func (s *Store) ReadAll(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM compilations
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query compilations: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := s.scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan compilation: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compilations: %w", err)
	}

	return entries, nil
}

// Count returns the number of journaled entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM compilations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count compilations: %w", err)
	}
	return n, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanEntry(row rowScanner) (Entry, error) {
	var (
		e                      Entry
		request, sqlText, args []byte
		recordedAt             string
	)

	if err := row.Scan(
		&e.ID, &e.Seq, &e.RequestHash, &request, &sqlText, &args,
		&e.CompiledHash, &e.ErrorKind, &e.ErrorMessage, &recordedAt,
	); err != nil {
		return Entry{}, err
	}

	var err error
	if e.Request, err = s.codec.decodeRequest(request); err != nil {
		return Entry{}, err
	}
	if e.SQL, err = s.codec.decodeSQL(sqlText); err != nil {
		return Entry{}, err
	}
	if e.Args, err = decodeArgs(args); err != nil {
		return Entry{}, fmt.Errorf("decode args: %w", err)
	}
	if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
		return Entry{}, fmt.Errorf("parse recorded_at: %w", err)
	}

	return e, nil
}
