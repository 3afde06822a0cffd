package querysql

import (
	"log/slog"
	"strings"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
	"github.com/roach88/docsql/internal/schema"
)

// Compiler compiles document queries to parameterized Postgres SQL.
//
// A Compiler holds only the read-only table registry. All per-call state
// lives in a builder created inside Build, so one Compiler can be shared
// across goroutines.
type Compiler struct {
	reg *schema.Registry
}

// NewCompiler creates a Compiler resolving lookups against reg.
func NewCompiler(reg *schema.Registry) *Compiler {
	return &Compiler{reg: reg}
}

// builder carries the state of one Build call.
type builder struct {
	reg             *schema.Registry
	src             Source
	caseInsensitive bool
	// near is set when the selector contains $near.
	near *nearSort
	// hasLookup switches the star projection to an unqualified *.
	hasLookup bool
}

func (c *Compiler) newBuilder(src Source, opts queryir.Options) *builder {
	return &builder{
		reg:             c.reg,
		src:             src,
		caseInsensitive: opts.Collation != nil && opts.Collation.Supported(),
	}
}

// Table returns the registered table as a Source.
func (c *Compiler) Table(name string) (Source, error) {
	t, ok := c.reg.Lookup(name)
	if !ok {
		return nil, queryir.Validationf("Unknown table: %s", name)
	}
	return TableSource(t), nil
}

// Compile builds and renders a query. Placeholders start at $1.
func (c *Compiler) Compile(src Source, sel ir.Value, opts queryir.Options, pipe queryir.Pipeline) (CompiledQuery, error) {
	q, err := c.Build(src, sel, opts, pipe)
	if err != nil {
		return CompiledQuery{}, err
	}
	return q.Compile(), nil
}

// Build compiles a query without rendering it. The result can be rendered
// with Compile or used as the source of another query.
//
// Clause order is fixed: SELECT list, FROM, lookup, join hook, WHERE,
// GROUP BY, ORDER BY, LIMIT, OFFSET, FOR UPDATE. Options are validated
// before any SQL is built; no partial query is returned with an error.
func (c *Compiler) Build(src Source, sel ir.Value, opts queryir.Options, pipe queryir.Pipeline) (*Query, error) {
	if src == nil {
		return nil, queryir.Compilef("cannot compile a query without a source")
	}
	if err := queryir.Validate(opts, pipe).Err(); err != nil {
		return nil, err
	}

	selector, err := queryir.ParseSelector(sel)
	if err != nil {
		return nil, err
	}

	b := c.newBuilder(src, opts)
	where, err := b.compileSelector(selector)
	if err != nil {
		return nil, err
	}
	if err := queryir.ValidateSample(opts, pipe, b.near != nil); err != nil {
		return nil, err
	}

	var join []atom
	var joined []schema.Column
	if pipe.Lookup != nil {
		join, joined, err = b.compileLookup(pipe.Lookup)
		if err != nil {
			return nil, err
		}
		b.hasLookup = true
	}

	var (
		list    []atom
		groupBy []atom
		output  []schema.Column
	)
	switch {
	case opts.Count:
		list = []atom{text("count(*)")}
		output = []schema.Column{{Name: "count", Type: schema.Type{Base: "BIGINT"}}}
	case len(pipe.Group) > 0:
		g, err := b.compileGroup(pipe.Group)
		if err != nil {
			return nil, err
		}
		list, groupBy, output = g.selectList, g.groupBy, g.output
	default:
		p, err := b.compileProjection(opts.Projection, pipe.AddFields, joined)
		if err != nil {
			return nil, err
		}
		list, output = p.atoms, p.output
	}

	atoms := []atom{text("SELECT")}
	atoms = append(atoms, list...)
	atoms = append(atoms, text("FROM"), src.fromAtom())
	atoms = append(atoms, join...)
	atoms = append(atoms, text(pipe.JoinHook))
	if len(where) > 0 {
		atoms = append(atoms, text("WHERE"))
		atoms = append(atoms, where...)
	}
	atoms = append(atoms, groupBy...)

	order, err := b.compileOrder(opts, pipe)
	if err != nil {
		return nil, err
	}
	atoms = append(atoms, order...)
	atoms = append(atoms, compileLimits(opts, pipe)...)
	if pipe.ForUpdate {
		atoms = append(atoms, text("FOR UPDATE"))
	}

	q := &Query{
		atoms:   atoms,
		comment: sanitizeComment(opts.Comment),
		output:  output,
	}
	slog.Debug("query built",
		"atoms", len(atoms),
		"columns", len(output),
		"count", opts.Count,
		"lookup", b.hasLookup,
	)
	return q, nil
}

// compileOrder renders ORDER BY. An explicit sort wins over $near; random
// sampling excludes both and is checked by ValidateSample.
func (b *builder) compileOrder(opts queryir.Options, pipe queryir.Pipeline) ([]atom, error) {
	switch {
	case len(opts.Sort) > 0:
		parts := make([]string, len(opts.Sort))
		for i, s := range opts.Sort {
			field, err := b.resolveScalar(s.Field, "")
			if err != nil {
				return nil, err
			}
			parts[i] = field + sortSuffix(b.src, s)
		}
		return []atom{text("ORDER BY " + strings.Join(parts, ", "))}, nil

	case b.near != nil:
		f := b.near.field
		return []atom{
			text("ORDER BY EARTH_DISTANCE(LL_TO_EARTH(("),
			text(f),
			text("->'coordinates'->0)::FLOAT8, ("),
			text(f),
			text("->'coordinates'->1)::FLOAT8), LL_TO_EARTH("),
			newArg(ir.Float(b.near.point.Lon())),
			text(","),
			newArg(ir.Float(b.near.point.Lat())),
			text(")) ASC NULLS LAST"),
		}, nil

	case pipe.SampleSize > 0:
		return []atom{text("ORDER BY RANDOM()")}, nil
	}
	return nil, nil
}

// sortSuffix puts nulls last in descending order and first in ascending
// order. Non-nullable columns get no NULLS clause.
func sortSuffix(src Source, s queryir.SortField) string {
	col, known := src.column(s.Field)
	nullable := !known || col.Nullable
	switch {
	case s.Descending && nullable:
		return " DESC NULLS LAST"
	case s.Descending:
		return " DESC"
	case nullable:
		return " ASC NULLS FIRST"
	default:
		return " ASC"
	}
}

// compileLimits renders LIMIT and OFFSET. A sample caps the limit.
func compileLimits(opts queryir.Options, pipe queryir.Pipeline) []atom {
	var out []atom
	limit := opts.Limit
	if pipe.SampleSize > 0 && (limit == 0 || pipe.SampleSize < limit) {
		limit = pipe.SampleSize
	}
	if limit > 0 {
		out = append(out, text("LIMIT"), newArg(ir.Int(limit)))
	}
	if opts.Skip > 0 {
		out = append(out, text("OFFSET"), newArg(ir.Int(opts.Skip)))
	}
	return out
}
