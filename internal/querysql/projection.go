package querysql

import (
	"slices"
	"strings"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
	"github.com/roach88/docsql/internal/schema"
)

// selectList is a compiled SELECT list and the columns it produces.
type selectList struct {
	atoms  []atom
	output []schema.Column
}

// compileProjection builds the SELECT list from a projection and the
// addFields stage.
//
// Projection values are classified as:
//   - strings and objects: synthetic fields ("$c" renames, expressions)
//   - other truthy values: included columns
//   - falsy values: excluded columns
//
// With included columns the list is exactly those plus _id, unless _id is
// excluded. With only excluded columns it is every source column but the
// excluded ones. Otherwise it is the star selector. Synthetic fields are
// appended as "expr AS name". joined lists columns added by a lookup.
func (b *builder) compileProjection(projection, addFields ir.Object, joined []schema.Column) (selectList, error) {
	projection = disambiguate(b.src, projection, addFields)

	var include, exclude []string
	var synthetic ir.Object
	for _, p := range projection {
		switch p.Value.(type) {
		case ir.String, ir.Object:
			synthetic = append(synthetic, p)
			continue
		}
		if ir.Truthy(p.Value) {
			include = append(include, p.Key)
		} else {
			exclude = append(exclude, p.Key)
		}
	}
	synthetic = append(synthetic, addFields...)

	var out selectList
	_, hasID := b.src.column(schema.IDColumn)

	switch {
	case len(include) > 0:
		if hasID && !slices.Contains(include, schema.IDColumn) && !slices.Contains(exclude, schema.IDColumn) {
			include = append(include, schema.IDColumn)
		}
		out.atoms, out.output = b.fieldList(include)

	case len(exclude) > 0:
		var names []string
		for _, col := range b.src.columns() {
			if !slices.Contains(exclude, col.Name) {
				names = append(names, col.Name)
			}
		}
		out.atoms, out.output = b.fieldList(names)

	default:
		out.atoms = []atom{text(b.star())}
		out.output = append(out.output, b.src.columns()...)
		out.output = append(out.output, joined...)
	}

	for _, p := range synthetic {
		expr, err := queryir.ParseExpression(p.Value)
		if err != nil {
			return selectList{}, err
		}
		compiled, err := b.compileExpression(expr, "")
		if err != nil {
			return selectList{}, err
		}
		if len(out.atoms) > 0 {
			out.atoms = append(out.atoms, text(","))
		}
		out.atoms = append(out.atoms, compiled...)
		out.atoms = append(out.atoms, text("AS "+quoteIdent(p.Key)))
		out.output = append(out.output, syntheticColumn(p.Key))
	}

	if len(out.atoms) == 0 {
		return selectList{}, queryir.Compilef("Projection selects no columns")
	}
	return out, nil
}

// disambiguate excludes source columns that addFields replaces, so the
// synthetic value is the only column with that name. The projection is
// copied, never modified.
func disambiguate(src Source, projection, addFields ir.Object) ir.Object {
	for _, p := range addFields {
		if _, ok := src.column(p.Key); ok && !projection.Has(p.Key) {
			projection = projection.With(p.Key, ir.Int(0))
		}
	}
	return projection
}

// fieldList renders quoted column names as one comma separated atom.
func (b *builder) fieldList(names []string) ([]atom, []schema.Column) {
	if len(names) == 0 {
		return nil, nil
	}
	quoted := make([]string, len(names))
	output := make([]schema.Column, len(names))
	for i, name := range names {
		quoted[i] = quoteIdent(name)
		if col, ok := b.src.column(name); ok {
			output[i] = col
		} else {
			output[i] = syntheticColumn(name)
		}
	}
	return []atom{text(strings.Join(quoted, ", "))}, output
}

// star selects every column. It is qualified with the table name unless a
// lookup adds columns of its own or the source is a subquery.
func (b *builder) star() string {
	if t, ok := b.src.(tableSource); ok && !b.hasLookup {
		return quoteIdent(t.table.Name) + ".*"
	}
	return "*"
}
