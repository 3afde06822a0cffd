package querysql

import (
	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
)

// Fragment is a compiled piece of a statement. Its placeholders are
// numbered from $1 when rendered on its own.
type Fragment struct {
	atoms []atom
}

// Render renders the fragment as standalone SQL.
func (f Fragment) Render() CompiledQuery {
	return renderFragment(f.atoms)
}

// Empty reports whether the fragment contributes no SQL.
func (f Fragment) Empty() bool {
	return len(f.atoms) == 0
}

// CompileExpression compiles an expression document against src.
func (c *Compiler) CompileExpression(src Source, doc ir.Value) (Fragment, error) {
	expr, err := queryir.ParseExpression(doc)
	if err != nil {
		return Fragment{}, err
	}
	atoms, err := c.newBuilder(src, queryir.Options{}).compileExpression(expr, "")
	if err != nil {
		return Fragment{}, err
	}
	return Fragment{atoms: atoms}, nil
}

// CompileSelector compiles the WHERE condition of a selector. An empty
// fragment means the query has no WHERE clause. opts supplies the
// collation.
func (c *Compiler) CompileSelector(src Source, doc ir.Value, opts queryir.Options) (Fragment, error) {
	if err := queryir.Validate(queryir.Options{Collation: opts.Collation}, queryir.Pipeline{}).Err(); err != nil {
		return Fragment{}, err
	}
	sel, err := queryir.ParseSelector(doc)
	if err != nil {
		return Fragment{}, err
	}
	atoms, err := c.newBuilder(src, opts).compileSelector(sel)
	if err != nil {
		return Fragment{}, err
	}
	return Fragment{atoms: atoms}, nil
}

// CompileProjection compiles the SELECT list for a projection and an
// addFields stage.
func (c *Compiler) CompileProjection(src Source, projection, addFields ir.Object) (Fragment, error) {
	list, err := c.newBuilder(src, queryir.Options{}).compileProjection(projection, addFields, nil)
	if err != nil {
		return Fragment{}, err
	}
	return Fragment{atoms: list.atoms}, nil
}

// CompileGroup compiles a $group stage into its SELECT list and GROUP BY
// clause.
func (c *Compiler) CompileGroup(src Source, group ir.Object) (list, groupBy Fragment, err error) {
	if err := queryir.Validate(queryir.Options{}, queryir.Pipeline{Group: group}).Err(); err != nil {
		return Fragment{}, Fragment{}, err
	}
	g, err := c.newBuilder(src, queryir.Options{}).compileGroup(group)
	if err != nil {
		return Fragment{}, Fragment{}, err
	}
	return Fragment{atoms: g.selectList}, Fragment{atoms: g.groupBy}, nil
}

// CompileLookup compiles a $lookup stage into its lateral join.
func (c *Compiler) CompileLookup(src Source, l *queryir.Lookup) (Fragment, error) {
	atoms, _, err := c.newBuilder(src, queryir.Options{}).compileLookup(l)
	if err != nil {
		return Fragment{}, err
	}
	return Fragment{atoms: atoms}, nil
}

// IsGroupByAggregateExpression reports whether a group entry is an
// aggregate. See queryir.IsGroupByAggregateExpression.
func IsGroupByAggregateExpression(v ir.Value) (bool, error) {
	return queryir.IsGroupByAggregateExpression(v)
}
