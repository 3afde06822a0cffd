package querysql

import (
	"database/sql/driver"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/roach88/docsql/internal/ir"
)

// CompiledQuery is a parameterized Postgres statement.
//
// Args[i] binds placeholder $i+1. Values are plain Go types: nil, string,
// int64, float64, bool, time.Time or []any. Objects are bound as their
// canonical JSON text.
type CompiledQuery struct {
	SQL  string
	Args []any
}

// DriverArgs returns Args ready for database/sql with lib/pq. Slices are
// wrapped with pq.Array using the narrowest typed array that fits.
func (q CompiledQuery) DriverArgs() []any {
	out := make([]any, len(q.Args))
	for i, a := range q.Args {
		if elems, ok := a.([]any); ok {
			out[i] = driverArray(elems)
			continue
		}
		out[i] = a
	}
	return out
}

func driverArray(elems []any) driver.Valuer {
	var (
		strs   = make([]string, 0, len(elems))
		ints   = make([]int64, 0, len(elems))
		floats = make([]float64, 0, len(elems))
		bools  = make([]bool, 0, len(elems))
	)
	for _, e := range elems {
		switch v := e.(type) {
		case string:
			strs = append(strs, v)
		case int64:
			ints = append(ints, v)
			floats = append(floats, float64(v))
		case float64:
			floats = append(floats, v)
		case bool:
			bools = append(bools, v)
		}
	}
	switch len(elems) {
	case len(strs):
		return pq.StringArray(strs)
	case len(ints):
		return pq.Int64Array(ints)
	case len(floats):
		return pq.Float64Array(floats)
	case len(bools):
		return pq.BoolArray(bools)
	}
	return pq.GenericArray{A: elems}
}

// atom is one piece of a statement: literal SQL text, a bound argument or
// a nested query.
type atom interface {
	isAtom()
}

// text is literal SQL. Empty text is skipped when rendering.
type text string

func (text) isAtom() {}

// arg is a bound value. hint is appended directly to the placeholder
// (e.g. "$1::JSONB[]").
type arg struct {
	value ir.Value
	hint  string
}

func (arg) isAtom() {}

// nested renders a query as an aliased subquery: "( ... ) A".
type nested struct {
	q *Query
}

func (nested) isAtom() {}

func newArg(v ir.Value) arg {
	a := arg{value: v}
	if arr, ok := v.(ir.Array); ok && len(arr) > 0 {
		if _, isObj := arr[0].(ir.Object); isObj {
			a.hint = "::JSONB[]"
		}
	}
	return a
}

// native converts the bound value to the form carried in CompiledQuery.Args.
func (a arg) native() any {
	switch v := a.value.(type) {
	case ir.Object:
		return ir.CanonicalString(v)
	case ir.Array:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = arg{value: elem}.native()
		}
		return out
	case ir.Time:
		return time.Time(v)
	default:
		return ir.Native(v)
	}
}

// renderer accumulates SQL text and args for one statement. Placeholder
// numbers continue from argOffset; subquery aliases start at alias.
type renderer struct {
	sb        strings.Builder
	args      []any
	argOffset int
	alias     byte
	started   bool
}

func (r *renderer) write(s string) {
	if s == "" {
		return
	}
	if r.started {
		r.sb.WriteByte(' ')
	}
	r.sb.WriteString(s)
	r.started = true
}

func (r *renderer) render(atoms []atom) {
	for _, a := range atoms {
		switch a := a.(type) {
		case text:
			r.write(string(a))
		case arg:
			r.args = append(r.args, a.native())
			r.write("$" + strconv.Itoa(r.argOffset+len(r.args)) + a.hint)
		case nested:
			name := string(rune(r.alias))
			r.alias++
			inner := a.q.renderAt(r.argOffset+len(r.args), r.alias)
			r.args = append(r.args, inner.Args...)
			r.write("(")
			r.write(inner.SQL)
			r.write(") " + name)
		}
	}
}

// renderFragment renders atoms as a standalone statement starting at $1.
func renderFragment(atoms []atom) CompiledQuery {
	r := &renderer{alias: 'A'}
	r.render(atoms)
	return CompiledQuery{SQL: r.sb.String(), Args: nonNilArgs(r.args)}
}

func nonNilArgs(args []any) []any {
	if args == nil {
		return []any{}
	}
	return args
}

// sanitizeComment keeps a comment on a single SQL line.
func sanitizeComment(comment string) string {
	return strings.ReplaceAll(comment, "\n", "_")
}
