package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsql/internal/testutil"
)

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return s
}

func TestRun_PassingScenario(t *testing.T) {
	s := mustParse(t, `
name: passing
description: Expectations that hold
cases:
  - name: eq
    request: {table: TestCollection, selector: {a: 3}}
    expect:
      sql: 'SELECT "TestCollection".* FROM "TestCollection" WHERE "a" = $1'
      args: [3]
  - name: no_expect
    request: {table: TestCollection2}
  - name: bad
    request: {table: TestCollection, selector: {$and: []}}
    expect:
      error: {kind: COMPILE, message: '$and requires a non-empty array'}
`)

	result, err := Run(s, testutil.Registry(t))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Cases, 3)
	assert.Equal(t, []any{int64(3)}, result.Cases[0].Args)
	assert.Equal(t, `SELECT "TestCollection2".* FROM "TestCollection2"`, result.Cases[1].SQL)
	assert.True(t, result.Cases[2].Failed())
	assert.Equal(t, "COMPILE", result.Cases[2].ErrorKind)
}

func TestRun_Mismatches(t *testing.T) {
	tests := []struct {
		name    string
		expect  string
		wantErr string
	}{
		{"sql", `{sql: 'SELECT 1'}`, "case c: SQL mismatch"},
		{"args", `{args: [3.0]}`, "case c: args mismatch"},
		{"expected error", `{error: {message: boom}}`, `case c: expected error "boom", got SQL`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustParse(t, `
name: mismatch
description: d
cases:
  - name: c
    request: {table: TestCollection, selector: {a: 3}}
    expect: `+tt.expect+`
`)
			result, err := Run(s, testutil.Registry(t))
			require.NoError(t, err)
			assert.False(t, result.Pass)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], tt.wantErr)
		})
	}
}

func TestRun_ErrorMismatches(t *testing.T) {
	tests := []struct {
		name    string
		expect  string
		wantErr string
	}{
		{"unexpected error", `{sql: 'SELECT 1'}`, "case c: unexpected error: $and requires a non-empty array"},
		{"message", `{error: {message: other}}`, `case c: expected error "other", got "$and requires a non-empty array"`},
		{"kind", `{error: {kind: VALIDATION, message: '$and requires a non-empty array'}}`, "expected error kind VALIDATION, got COMPILE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustParse(t, `
name: mismatch
description: d
cases:
  - name: c
    request: {table: TestCollection, selector: {$and: []}}
    expect: `+tt.expect+`
`)
			result, err := Run(s, testutil.Registry(t))
			require.NoError(t, err)
			assert.False(t, result.Pass)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], tt.wantErr)
		})
	}
}

func TestRun_InlineSchemaOverridesRegistry(t *testing.T) {
	s := mustParse(t, `
name: inline
description: d
schema: |
  table: Only: columns: {"_id": "TEXT", x: "TEXT"}
cases:
  - name: inline_table
    request: {table: Only, selector: {x: y}}
    expect:
      sql: 'SELECT "Only".* FROM "Only" WHERE "x" = $1'
  - name: registry_table
    request: {table: TestCollection}
    expect:
      error: {kind: VALIDATION, message: 'Unknown table: TestCollection'}
`)

	result, err := Run(s, testutil.Registry(t))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SchemaErrors(t *testing.T) {
	s := mustParse(t, "name: x\ndescription: d\ncases: [{name: a, request: {table: T}}]\n")
	_, err := Run(s, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no schema")

	s.Schema = "table: {"
	_, err = Run(s, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load scenario schema")
}

func TestRun_DuplicateRequestsShareAJournalEntry(t *testing.T) {
	s := mustParse(t, `
name: dup
description: d
cases:
  - name: first
    request: {table: TestCollection, selector: {a: 3}}
  - name: second
    request: {table: TestCollection, selector: {a: 3}}
`)

	result, err := Run(s, testutil.Registry(t))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, result.Cases[0].SQL, result.Cases[1].SQL)
}

func TestRun_Deterministic(t *testing.T) {
	s := mustParse(t, `
name: det
description: d
cases:
  - name: c
    request:
      table: TestCollection
      selector: {$or: [{b: x}, {c.d: 1.5}]}
      options: {sort: {b: -1}, limit: 3}
`)

	r1, err := Run(s, testutil.Registry(t))
	require.NoError(t, err)
	r2, err := Run(s, testutil.Registry(t))
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}
