package querysql

import (
	"github.com/lib/pq"

	"github.com/roach88/docsql/internal/schema"
)

// Source is what a query selects FROM: a table, or another query.
//
// This is a sealed interface - only TableSource and *Query implement it.
type Source interface {
	// column looks up a column visible from this source.
	column(name string) (schema.Column, bool)
	// columns lists the visible columns in output order.
	columns() []schema.Column
	// fromAtom renders the source in a FROM clause.
	fromAtom() atom
}

type tableSource struct {
	table *schema.Table
}

// TableSource selects directly from a table.
func TableSource(t *schema.Table) Source {
	return tableSource{table: t}
}

func (s tableSource) column(name string) (schema.Column, bool) {
	return s.table.Column(name)
}

func (s tableSource) columns() []schema.Column {
	return s.table.Columns
}

func (s tableSource) fromAtom() atom {
	return text(pq.QuoteIdentifier(s.table.Name))
}

// Query is a built SELECT statement. It can be rendered with Compile or
// used as the Source of another query, in which case it is rendered as an
// aliased subquery.
//
// A Query is immutable once built.
type Query struct {
	atoms   []atom
	comment string
	// output holds the columns the statement returns, in order.
	output []schema.Column
}

// Compile renders the statement with placeholders starting at $1.
func (q *Query) Compile() CompiledQuery {
	return q.renderAt(0, 'A')
}

func (q *Query) renderAt(argOffset int, alias byte) CompiledQuery {
	r := &renderer{argOffset: argOffset, alias: alias}
	if q.comment != "" {
		r.sb.WriteString("-- " + q.comment + "\n")
	}
	r.render(q.atoms)
	return CompiledQuery{SQL: r.sb.String(), Args: nonNilArgs(r.args)}
}

func (q *Query) column(name string) (schema.Column, bool) {
	for _, col := range q.output {
		if col.Name == name {
			return col, true
		}
	}
	return schema.Column{}, false
}

func (q *Query) columns() []schema.Column {
	return q.output
}

func (q *Query) fromAtom() atom {
	return nested{q: q}
}

// syntheticColumn describes a computed output column of unknown type.
func syntheticColumn(name string) schema.Column {
	return schema.Column{Name: name, Nullable: true}
}
