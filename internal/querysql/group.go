package querysql

import (
	"strings"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
	"github.com/roach88/docsql/internal/schema"
)

// grouping is a compiled $group stage.
type grouping struct {
	selectList []atom
	groupBy    []atom
	output     []schema.Column
}

// compileGroup compiles {name: expr} entries into aliased SELECT items.
//
// Key entries ("$col", literals, null, {$first: ...}) are also grouped
// by: a plain field reference by its column, anything else by its alias.
// Aggregates ($sum, $avg, $count, $min, $max) are only selected.
func (b *builder) compileGroup(group ir.Object) (grouping, error) {
	var g grouping
	var keys []string

	for i, p := range group {
		aggregate, err := queryir.IsGroupByAggregateExpression(p.Value)
		if err != nil {
			return grouping{}, err
		}
		if i > 0 {
			g.selectList = append(g.selectList, text(","))
		}
		alias := quoteIdent(p.Key)

		if ir.IsNull(p.Value) {
			g.selectList = append(g.selectList, text("NULL AS "+alias))
			g.output = append(g.output, syntheticColumn(p.Key))
			keys = append(keys, alias)
			continue
		}

		expr, err := queryir.ParseExpression(p.Value)
		if err != nil {
			return grouping{}, err
		}
		compiled, err := b.compileGroupValue(expr, aggregate)
		if err != nil {
			return grouping{}, err
		}
		g.selectList = append(g.selectList, compiled...)
		g.selectList = append(g.selectList, text("AS "+alias))
		g.output = append(g.output, b.groupColumn(p.Key, expr))

		if aggregate {
			continue
		}
		if ref, ok := expr.(queryir.FieldRef); ok {
			field, err := b.resolveScalar(ref.Path, "")
			if err != nil {
				return grouping{}, err
			}
			keys = append(keys, field)
		} else {
			keys = append(keys, alias)
		}
	}

	if len(keys) > 0 {
		g.groupBy = []atom{text("GROUP BY " + strings.Join(keys, ", "))}
	}
	return g, nil
}

// groupAggregates override the expression meaning of $min and $max, which
// otherwise compare their operands row by row.
var groupAggregates = map[string]string{
	"$min": "MIN",
	"$max": "MAX",
}

func (b *builder) compileGroupValue(expr queryir.Expression, aggregate bool) ([]atom, error) {
	op, ok := expr.(queryir.Operator)
	if !ok || !aggregate {
		return b.compileExpression(expr, "")
	}
	fn, ok := groupAggregates[op.Name]
	if !ok {
		return b.compileExpression(expr, "")
	}
	operand, err := b.singleOperand(op)
	if err != nil {
		return nil, err
	}
	out := []atom{text(fn + "(")}
	out = append(out, operand...)
	return append(out, text(")")), nil
}

// groupColumn describes the output column of a group entry. A reference to
// a known column keeps its type under the new name.
func (b *builder) groupColumn(name string, expr queryir.Expression) schema.Column {
	if ref, ok := expr.(queryir.FieldRef); ok {
		if col, ok := b.src.column(ref.Path); ok {
			col.Name = name
			return col
		}
	}
	return syntheticColumn(name)
}
