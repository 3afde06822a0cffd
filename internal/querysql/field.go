package querysql

import (
	"strings"

	"github.com/lib/pq"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
	"github.com/roach88/docsql/internal/schema"
)

// Type hints appended to JSON paths and placeholders.
const (
	hintInteger   = "::INTEGER"
	hintReal      = "::REAL"
	hintText      = "::TEXT"
	hintBool      = "::BOOL"
	hintTimestamp = "::TIMESTAMPTZ"
	hintJSONB     = "::JSONB"
)

// valueHint infers a cast from a literal. Arrays, null and operator
// objects get no hint.
func valueHint(v ir.Value) string {
	switch val := v.(type) {
	case ir.Int:
		return hintInteger
	case ir.Float:
		if _, ok := ir.AsInt(val); ok {
			return hintInteger
		}
		return hintReal
	case ir.String:
		return hintText
	case ir.Bool:
		return hintBool
	case ir.Time:
		return hintTimestamp
	case ir.Object:
		if val.HasOperatorKey() {
			return ""
		}
		return hintJSONB
	default:
		return ""
	}
}

// typeHint renders a column type as a cast. Unknown types get no hint.
func typeHint(t schema.Type) string {
	if t.Base == "" {
		return ""
	}
	return "::" + t.String()
}

// arrayAccess reports a dotted path whose root is an array column. Such
// paths cannot be expressed as a scalar and are compiled as a search over
// the unnested array instead.
type arrayAccess struct {
	column string
	path   []string
}

func quoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

// resolveField turns a field path into SQL.
//
// A plain name is a quoted identifier. A dotted path descends into a JSON
// column: numeric segments index arrays, other segments select keys. When
// hint is "::TEXT" the last key is extracted as text with ->>.
func (b *builder) resolveField(path, hint string) (string, *arrayAccess, error) {
	if strings.Contains(path, ".$") {
		return "", nil, queryir.Unimplementedf("`.$` array fields not implemented")
	}

	dot := strings.IndexByte(path, '.')
	if dot < 0 {
		return quoteIdent(path), nil, nil
	}

	segments := strings.Split(path, ".")
	root, rest := segments[0], segments[1:]
	if col, ok := b.src.column(root); ok && col.Type.Array {
		return "", &arrayAccess{column: root, path: rest}, nil
	}

	lastKey := -1
	if hint == hintText {
		for i, seg := range rest {
			if !isIndex(seg) {
				lastKey = i
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(quoteIdent(root))
	for i, seg := range rest {
		switch {
		case isIndex(seg):
			sb.WriteString("[" + seg + "]")
		case i == lastKey:
			sb.WriteString("->>" + pq.QuoteLiteral(seg))
		default:
			sb.WriteString("->" + pq.QuoteLiteral(seg))
		}
	}
	sb.WriteString(")")
	sb.WriteString(hint)
	return sb.String(), nil, nil
}

// resolveScalar is resolveField for contexts where array access is not
// supported.
func (b *builder) resolveScalar(path, hint string) (string, error) {
	sql, access, err := b.resolveField(path, hint)
	if err != nil {
		return "", err
	}
	if access != nil {
		return "", queryir.Compilef("Non-scalar array access: %s", path)
	}
	return sql, nil
}

func isIndex(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// jsonPath renders a path below an already-resolved JSON value, extracting
// the final key as text: unnested->'a'->>'b'.
func jsonPath(base string, path []string) string {
	var sb strings.Builder
	sb.WriteString(base)
	for i, seg := range path {
		if i == len(path)-1 {
			sb.WriteString("->>")
		} else {
			sb.WriteString("->")
		}
		sb.WriteString(pq.QuoteLiteral(seg))
	}
	return sb.String()
}
