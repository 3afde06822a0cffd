package querysql

import (
	"strings"

	"github.com/paulmach/orb"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
)

// comparisonOperators maps selector operators to SQL.
var comparisonOperators = map[string]string{
	queryir.OpEq:  "=",
	queryir.OpNe:  "<>",
	queryir.OpLt:  "<",
	queryir.OpLte: "<=",
	queryir.OpGt:  ">",
	queryir.OpGte: ">=",
}

// nearSort records a $near selector. $near filters nothing; it orders the
// results by distance unless an explicit sort is given.
type nearSort struct {
	field string
	point orb.Point
}

// compileSelector compiles a selector. A nil result means the selector
// contributes no SQL.
func (b *builder) compileSelector(sel queryir.Selector) ([]atom, error) {
	switch s := sel.(type) {
	case nil:
		return nil, nil
	case queryir.And:
		return b.compileMulti(s.Items, "AND")
	case queryir.Or:
		return b.compileMulti(s.Items, "OR")
	case queryir.Comment:
		return nil, nil
	case queryir.ExprSelector:
		return b.compileExpression(s.Expr, "")
	case queryir.FieldSelector:
		return b.compileCondition(s.Path, s.Cond)
	default:
		return nil, queryir.Compilef("unsupported selector type: %T", sel)
	}
}

// compileMulti joins the non-empty items with sep inside parentheses.
// Items that compile to nothing are dropped, but do not remove the
// parentheses: {a: 3, $comment: "x"} renders as ( "a" = $1 ).
func (b *builder) compileMulti(items []queryir.Selector, sep string) ([]atom, error) {
	var out []atom
	for _, item := range items {
		compiled, err := b.compileSelector(item)
		if err != nil {
			return nil, err
		}
		if len(compiled) == 0 {
			continue
		}
		if len(out) > 0 {
			out = append(out, text(sep))
		}
		out = append(out, compiled...)
	}
	if len(out) == 0 {
		return nil, nil
	}
	out = append([]atom{text("(")}, out...)
	return append(out, text(")")), nil
}

func (b *builder) compileCondition(path string, cond queryir.Condition) ([]atom, error) {
	hint := ""
	switch c := cond.(type) {
	case queryir.Compare:
		hint = valueHint(c.Value)
	case queryir.In:
		hint = uniformHint(c.Values)
	case queryir.All:
		hint = uniformHint(c.Values)
	}
	field, access, err := b.resolveField(path, hint)
	if err != nil {
		return nil, err
	}
	if access != nil {
		cmp, ok := cond.(queryir.Compare)
		if !ok || (cmp.Op != queryir.OpEq && cmp.Op != queryir.OpNe) {
			return nil, queryir.Compilef("Unsupported condition on array element path: %s", path)
		}
		match := b.compileArrayAccess(access, cmp.Value)
		if cmp.Op == queryir.OpNe {
			match = append([]atom{text("NOT (")}, match...)
			match = append(match, text(")"))
		}
		return match, nil
	}

	switch c := cond.(type) {
	case queryir.Compare:
		return b.compileCompare(path, field, comparisonOperators[c.Op], c.Value)

	case queryir.Not:
		inner, err := b.compileCondition(path, c.Cond)
		if err != nil {
			return nil, err
		}
		out := []atom{text("NOT (")}
		out = append(out, inner...)
		return append(out, text(")")), nil

	case queryir.In:
		return b.compileIn(path, field, c.Values, false), nil

	case queryir.All:
		return b.compileIn(path, field, c.Values, true), nil

	case queryir.Exists:
		if c.Exists {
			return []atom{text(field + " IS NOT NULL")}, nil
		}
		return []atom{text(field + " IS NULL")}, nil

	case queryir.Size:
		return []atom{text("ARRAY_LENGTH(" + field + ", 1) ="), newArg(c.N)}, nil

	case queryir.GeoWithin:
		location := c.Location
		if location == "" {
			location = field
		}
		return []atom{
			text("(EARTH_DISTANCE(LL_TO_EARTH((" + location + "->>'lng')::FLOAT8,"),
			text("(" + location + "->>'lat')::FLOAT8),"),
			text("LL_TO_EARTH("),
			newArg(ir.Float(c.Center.Lon())),
			text(","),
			newArg(ir.Float(c.Center.Lat())),
			text(")) / 6378000) <"),
			newArg(ir.Float(c.Radius)),
		}, nil

	case queryir.Near:
		b.near = &nearSort{field: field, point: c.Point}
		return []atom{text("1=1")}, nil

	case queryir.AllOf:
		out := []atom{text("(")}
		for i, sub := range c.Conds {
			compiled, err := b.compileCondition(path, sub)
			if err != nil {
				return nil, err
			}
			if i > 0 {
				out = append(out, text("AND"))
			}
			out = append(out, compiled...)
		}
		return append(out, text(")")), nil

	default:
		return nil, queryir.Compilef("unsupported condition type: %T", cond)
	}
}

// compileCompare handles the document-vs-SQL mismatches of a single
// comparison: array columns, tri-state null/boolean tests, collation and
// null-safe inequality.
func (b *builder) compileCompare(path, field, op string, value ir.Value) ([]atom, error) {
	col, known := b.src.column(path)

	if _, isArray := value.(ir.Array); known && col.Type.Array && !isArray {
		cast := text("]::" + col.Type.String())
		switch op {
		case "=":
			return []atom{text(field + " @> ARRAY["), newArg(value), cast}, nil
		case "<>":
			return []atom{text("NOT (" + field + " @> ARRAY["), newArg(value), cast + ")"}, nil
		default:
			return nil, queryir.Compilef("Invalid array operator: %s", op)
		}
	}

	hint := ""
	if isDotted(path) && !containsCast(field) {
		hint = valueHint(value)
	}
	target := field + hint

	if op == "=" || op == "<>" {
		switch v := value.(type) {
		case nil, ir.Null:
			if op == "=" {
				return []atom{text(target + " IS NULL")}, nil
			}
			return []atom{text(target + " IS NOT NULL")}, nil
		case ir.Bool:
			word := "TRUE"
			if !v {
				word = "FALSE"
			}
			if op == "=" {
				return []atom{text(target + " IS " + word)}, nil
			}
			return []atom{text(target + " IS NOT " + word)}, nil
		}
	}

	if _, isString := value.(ir.String); op == "=" && isString && b.caseInsensitive {
		return []atom{text("LOWER(" + field + ") = LOWER("), newArg(value), text(")")}, nil
	}

	nullable := !known || col.Nullable
	if nullable && op == "<>" {
		return []atom{text(target + " IS DISTINCT FROM"), newArg(value)}, nil
	}
	return []atom{text(target + " " + op), newArg(value)}, nil
}

// compileIn renders $in and $all. Placeholders carry the element type of
// the column so Postgres can compare them without guessing.
func (b *builder) compileIn(path, field string, values ir.Array, all bool) []atom {
	col, known := b.src.column(path)

	var fieldHint, elemHint string
	if known {
		fieldHint = typeHint(col.Type)
		elemHint = typeHint(col.Type.Elem())
	} else {
		elemHint = uniformHint(values)
	}

	var list []atom
	for i, v := range values {
		if i > 0 {
			list = append(list, text(","))
		}
		list = append(list, newArg(v), text(elemHint))
	}

	if all {
		if len(values) == 0 {
			return []atom{text("FALSE")}
		}
		out := []atom{text(field), text("@> ARRAY[")}
		out = append(out, list...)
		return append(out, text("]"))
	}

	if len(values) == 0 {
		list = []atom{text("SELECT NULL" + elemHint)}
	}
	if known && col.Type.Array {
		out := []atom{text(field), text(fieldHint), text("&& ARRAY[")}
		out = append(out, list...)
		return append(out, text("]"))
	}
	// A JSON path resolved with a hint is already cast.
	cast := elemHint
	if containsCast(field) {
		cast = ""
	}
	out := []atom{text(field), text(cast), text("IN (")}
	out = append(out, list...)
	return append(out, text(")"))
}

// uniformHint returns the hint shared by every value, or "".
func uniformHint(values ir.Array) string {
	if len(values) == 0 {
		return ""
	}
	hint := valueHint(values[0])
	for _, v := range values[1:] {
		if valueHint(v) != hint {
			return ""
		}
	}
	return hint
}

// compileArrayAccess matches rows where any element of an array column has
// value at path.
func (b *builder) compileArrayAccess(access *arrayAccess, value ir.Value) []atom {
	return []atom{
		text("(_id IN (SELECT _id FROM"),
		b.src.fromAtom(),
		text(", UNNEST(" + quoteIdent(access.column) + ") unnested WHERE " + jsonPath("unnested", access.path) + " ="),
		newArg(value),
		text("))"),
	}
}

func isDotted(path string) bool {
	return strings.IndexByte(path, '.') > 0
}

func containsCast(field string) bool {
	return strings.Contains(field, "::")
}
