package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/testutil"
)

// createTestStore creates a journal in a temp dir with a deterministic
// clock and sequential entry IDs.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path,
		WithClock(testutil.NewStepClock()),
		WithIDGenerator(testutil.NewSequentialIDs("entry")),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testCompilation creates a successful compilation of a small request.
func testCompilation(table string, value int64) Compilation {
	return Compilation{
		Request: ir.Obj(
			ir.O("table", ir.String(table)),
			ir.O("selector", ir.Obj(ir.O("a", ir.Int(value)))),
		),
		SQL:  `SELECT "` + table + `".* FROM "` + table + `" WHERE "a" = $1`,
		Args: []any{value},
	}
}
