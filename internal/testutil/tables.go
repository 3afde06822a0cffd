// Package testutil provides fixtures shared by tests: the test table
// registry, a deterministic clock and predictable IDs.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/docsql/internal/schema"
)

// FixtureSchema defines the tables used across compiler tests.
//
// TestCollection covers every column kind the compiler distinguishes:
// a nullable number, text, a JSONB document and a text array.
// TestCollection3 has a non-nullable column for the <> comparison.
const FixtureSchema = `
table: TestCollection: columns: {
	"_id":         "VARCHAR(27)"
	a:             "DOUBLE PRECISION"
	b:             "TEXT"
	c:             "JSONB"
	d:             "TEXT[]"
	schemaVersion: "DOUBLE PRECISION"
}

table: TestCollection2: columns: {
	"_id": "VARCHAR(27)"
	data:  "TEXT"
}

table: TestCollection3: columns: {
	"_id":       "VARCHAR(27)"
	notNullData: {type: "TEXT", nullable: false}
}
`

// Registry loads FixtureSchema.
func Registry(t testing.TB) *schema.Registry {
	t.Helper()
	reg, err := schema.LoadString(FixtureSchema)
	require.NoError(t, err)
	return reg
}

// Table returns one fixture table by name.
func Table(t testing.TB, name string) *schema.Table {
	t.Helper()
	tbl, ok := Registry(t).Lookup(name)
	require.True(t, ok, "fixture table %s", name)
	return tbl
}
