package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// IDColumn is the mandatory primary key column of every table.
const IDColumn = "_id"

// Type is a SQL column type. Array types have Array set and Base naming
// the element type.
type Type struct {
	Base  string
	Array bool
}

// Common types.
var (
	TypeText      = Type{Base: "TEXT"}
	TypeInteger   = Type{Base: "INTEGER"}
	TypeDouble    = Type{Base: "DOUBLE PRECISION"}
	TypeBool      = Type{Base: "BOOL"}
	TypeJSONB     = Type{Base: "JSONB"}
	TypeTimestamp = Type{Base: "TIMESTAMPTZ"}
)

var sizedTypePattern = regexp.MustCompile(`^(VARCHAR|VECTOR)\s*\(\s*(\d+)\s*\)$`)

// baseAliases maps accepted spellings to the canonical base name.
var baseAliases = map[string]string{
	"TEXT":             "TEXT",
	"INTEGER":          "INTEGER",
	"INT":              "INTEGER",
	"BIGINT":           "BIGINT",
	"REAL":             "REAL",
	"DOUBLE PRECISION": "DOUBLE PRECISION",
	"FLOAT8":           "DOUBLE PRECISION",
	"BOOL":             "BOOL",
	"BOOLEAN":          "BOOL",
	"JSONB":            "JSONB",
	"TIMESTAMPTZ":      "TIMESTAMPTZ",
}

// ParseType parses a SQL type name such as "TEXT", "VARCHAR(27)",
// "DOUBLE PRECISION" or "TEXT[]".
func ParseType(s string) (Type, error) {
	name := strings.ToUpper(strings.Join(strings.Fields(s), " "))
	if name == "" {
		return Type{}, fmt.Errorf("empty column type")
	}

	var t Type
	if strings.HasSuffix(name, "[]") {
		t.Array = true
		name = strings.TrimSpace(strings.TrimSuffix(name, "[]"))
	}

	if m := sizedTypePattern.FindStringSubmatch(name); m != nil {
		t.Base = fmt.Sprintf("%s(%s)", m[1], m[2])
		return t, nil
	}

	base, ok := baseAliases[name]
	if !ok {
		return Type{}, fmt.Errorf("unsupported column type %q", s)
	}
	t.Base = base
	return t, nil
}

// MustParseType is like ParseType but panics on error.
func MustParseType(s string) Type {
	t, err := ParseType(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String renders the type as it appears in a Postgres cast.
func (t Type) String() string {
	if t.Array {
		return t.Base + "[]"
	}
	return t.Base
}

// Elem returns the element type of an array type, or t itself.
func (t Type) Elem() Type {
	return Type{Base: t.Base}
}

// IsJSON reports whether the (element) type is JSONB.
func (t Type) IsJSON() bool {
	return t.Base == "JSONB"
}

// Column describes one table column.
type Column struct {
	Name     string
	Type     Type
	Nullable bool
}

// Table is an immutable table definition with ordered columns.
type Table struct {
	Name    string
	Columns []Column
	index   map[string]int
}

// NewTable creates a table, checking for the mandatory "_id" column and
// duplicate column names.
func NewTable(name string, columns ...Column) (*Table, error) {
	if name == "" {
		return nil, fmt.Errorf("table name is required")
	}

	t := &Table{
		Name:    name,
		Columns: append([]Column(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, col := range t.Columns {
		if col.Name == "" {
			return nil, fmt.Errorf("table %s: column %d has no name", name, i)
		}
		if _, dup := t.index[col.Name]; dup {
			return nil, fmt.Errorf("table %s: duplicate column %q", name, col.Name)
		}
		t.index[col.Name] = i
	}
	if _, ok := t.index[IDColumn]; !ok {
		return nil, fmt.Errorf("table %s: missing mandatory %q column", name, IDColumn)
	}
	return t, nil
}

// MustTable is like NewTable but panics on error.
// Use only in tests or for static definitions.
func MustTable(name string, columns ...Column) *Table {
	t, err := NewTable(name, columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// Column looks up a column by exact name.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.Columns[i], true
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// Registry holds table definitions, resolving names case-insensitively.
// It is read-only after construction and safe for concurrent use.
type Registry struct {
	tables map[string]*Table
}

// NewRegistry builds a registry. Two tables whose names differ only by
// case are rejected.
func NewRegistry(tables ...*Table) (*Registry, error) {
	r := &Registry{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		key := foldName(t.Name)
		if existing, dup := r.tables[key]; dup {
			return nil, fmt.Errorf("duplicate table %q (conflicts with %q)", t.Name, existing.Name)
		}
		r.tables[key] = t
	}
	return r, nil
}

// Lookup finds a table by name, ignoring case.
func (r *Registry) Lookup(name string) (*Table, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tables[foldName(name)]
	return t, ok
}

// Tables returns all tables sorted by name.
func (r *Registry) Tables() []*Table {
	out := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of tables.
func (r *Registry) Len() int {
	return len(r.tables)
}

// foldName applies Unicode case folding. cases.Caser is stateful, so each
// call gets its own.
func foldName(name string) string {
	return cases.Fold().String(name)
}
