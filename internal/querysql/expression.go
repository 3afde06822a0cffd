package querysql

import (
	"strconv"
	"strings"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
)

// exprHandler compiles one operator application.
type exprHandler func(b *builder, op queryir.Operator) ([]atom, error)

// infixOperators are rendered as "( a OP b ... )".
var infixOperators = map[string]string{
	"$add":      "+",
	"$subtract": "-",
	"$multiply": "*",
	"$divide":   "/",
	"$pow":      "^",
	"$eq":       "=",
	"$ne":       "<>",
	"$lt":       "<",
	"$lte":      "<=",
	"$gt":       ">",
	"$gte":      ">=",
}

// magnitudeOperators compile their operands with an integer hint.
var magnitudeOperators = map[string]bool{
	"$lt":  true,
	"$lte": true,
	"$gt":  true,
	"$gte": true,
}

var unaryFunctions = map[string]string{
	"$abs":   "ABS",
	"$exp":   "EXP",
	"$floor": "FLOOR",
	"$sum":   "SUM",
	"$avg":   "AVG",
}

var variadicFunctions = map[string]string{
	"$min":    "LEAST",
	"$max":    "GREATEST",
	"$ifNull": "COALESCE",
}

var exprHandlers map[string]exprHandler

func init() {
	exprHandlers = map[string]exprHandler{
		"$count":             compileCount,
		"$first":             compileFirst,
		"$in":                compileArrayIn,
		"$arrayElemAt":       compileArrayElemAt,
		"$jsonArrayContains": compileJSONArrayContains,
	}
	for name := range infixOperators {
		exprHandlers[name] = compileInfix
	}
	for name := range unaryFunctions {
		exprHandlers[name] = compileUnary
	}
	for name := range variadicFunctions {
		exprHandlers[name] = compileVariadic
	}
}

// compileExpression compiles an expression. hint is applied to field
// references that resolve to JSON paths.
func (b *builder) compileExpression(expr queryir.Expression, hint string) ([]atom, error) {
	switch e := expr.(type) {
	case queryir.FieldRef:
		field, err := b.resolveScalar(e.Path, hint)
		if err != nil {
			return nil, err
		}
		return []atom{text(field)}, nil

	case queryir.Literal:
		if obj, ok := e.Value.(ir.Object); ok && len(obj) == 0 {
			return []atom{text("'{}'::JSONB")}, nil
		}
		return []atom{newArg(e.Value)}, nil

	case queryir.Cond:
		return b.compileCond(e)

	case queryir.Operator:
		handler, ok := exprHandlers[e.Name]
		if !ok {
			return nil, invalidExpression(e)
		}
		return handler(b, e)

	default:
		return nil, queryir.Compilef("unsupported expression type: %T", expr)
	}
}

func compileInfix(b *builder, op queryir.Operator) ([]atom, error) {
	if len(op.Args) == 0 {
		return nil, queryir.Compilef("%s expects at least one operand", op.Name)
	}

	hint := ""
	if magnitudeOperators[op.Name] {
		hint = hintInteger
	}
	operands := make([][]atom, len(op.Args))
	for i, a := range op.Args {
		compiled, err := b.compileExpression(a, hint)
		if err != nil {
			return nil, err
		}
		operands[i] = compiled
	}

	dateDiff := op.Name == "$subtract" && len(operands) == 2 &&
		(hasTimeArg(operands[0]) || hasTimeArg(operands[1]))

	open, closing := "(", ")"
	if dateDiff {
		open, closing = "(1000 * EXTRACT(EPOCH FROM", "))"
	}

	out := []atom{text(open)}
	for i, operand := range operands {
		if i > 0 {
			out = append(out, text(infixOperators[op.Name]))
		}
		out = append(out, operand...)
	}
	return append(out, text(closing)), nil
}

func hasTimeArg(atoms []atom) bool {
	for _, a := range atoms {
		if a, ok := a.(arg); ok {
			if _, isTime := a.value.(ir.Time); isTime {
				return true
			}
		}
	}
	return false
}

func compileUnary(b *builder, op queryir.Operator) ([]atom, error) {
	operand, err := b.singleOperand(op)
	if err != nil {
		return nil, err
	}
	out := []atom{text(unaryFunctions[op.Name] + "(")}
	out = append(out, operand...)
	return append(out, text(")")), nil
}

func compileCount(b *builder, op queryir.Operator) ([]atom, error) {
	if len(op.Args) == 1 {
		if lit, ok := op.Args[0].(queryir.Literal); ok {
			if obj, ok := lit.Value.(ir.Object); ok && len(obj) == 0 {
				return []atom{text("COUNT(*)")}, nil
			}
		}
	}
	operand, err := b.singleOperand(op)
	if err != nil {
		return nil, err
	}
	out := []atom{text("COUNT(")}
	out = append(out, operand...)
	return append(out, text(")")), nil
}

func compileFirst(b *builder, op queryir.Operator) ([]atom, error) {
	return b.singleOperand(op)
}

func (b *builder) singleOperand(op queryir.Operator) ([]atom, error) {
	if len(op.Args) != 1 {
		return nil, queryir.Compilef("%s expects a single operand", op.Name)
	}
	return b.compileExpression(op.Args[0], "")
}

func compileVariadic(b *builder, op queryir.Operator) ([]atom, error) {
	if len(op.Args) == 0 {
		return nil, queryir.Compilef("%s expects at least one operand", op.Name)
	}
	prefix := variadicFunctions[op.Name] + "("
	var out []atom
	for _, a := range op.Args {
		compiled, err := b.compileExpression(a, "")
		if err != nil {
			return nil, err
		}
		out = append(out, text(prefix))
		out = append(out, compiled...)
		prefix = ","
	}
	return append(out, text(")")), nil
}

// compileArrayIn renders {$in: [value, array]} as array containment.
func compileArrayIn(b *builder, op queryir.Operator) ([]atom, error) {
	if len(op.Args) != 2 {
		return nil, queryir.Compilef("$in expects [value, array]")
	}
	value, err := b.compileExpression(op.Args[0], "")
	if err != nil {
		return nil, err
	}
	array, err := b.compileExpression(op.Args[1], "")
	if err != nil {
		return nil, err
	}
	out := append(array, text("@> {"))
	out = append(out, value...)
	return append(out, text("}")), nil
}

// compileArrayElemAt renders {$arrayElemAt: [array, index]}. Postgres
// arrays are 1-based.
func compileArrayElemAt(b *builder, op queryir.Operator) ([]atom, error) {
	if len(op.Args) != 2 {
		return nil, queryir.Compilef("$arrayElemAt expects [array, index]")
	}

	if ref, ok := op.Args[0].(queryir.FieldRef); ok {
		lit, ok := op.Args[1].(queryir.Literal)
		if !ok {
			return nil, queryir.Compilef("$arrayElemAt on a field expects a literal index")
		}
		index, ok := ir.AsInt(lit.Value)
		if !ok {
			return nil, queryir.Compilef("$arrayElemAt index must be an integer: %s", ir.CanonicalString(lit.Value))
		}
		segments := strings.Split(ref.Path, ".")
		elem := "(" + quoteIdent(segments[0]) + ")[1 + " + strconv.FormatInt(index, 10) + "]"
		if len(segments) > 1 {
			elem = jsonPath(elem, segments[1:])
		}
		return []atom{text(elem)}, nil
	}

	array, err := b.compileExpression(op.Args[0], "")
	if err != nil {
		return nil, err
	}
	index, err := b.compileExpression(op.Args[1], "")
	if err != nil {
		return nil, err
	}
	out := []atom{text("(")}
	out = append(out, array...)
	out = append(out, text(")[ 1 +"))
	out = append(out, index...)
	return append(out, text("]")), nil
}

// compileJSONArrayContains renders {$jsonArrayContains: ["col.a.b", value]}:
// the JSON column contains an array holding value at path a.b.
func compileJSONArrayContains(b *builder, op queryir.Operator) ([]atom, error) {
	if len(op.Args) != 2 {
		return nil, queryir.Compilef("$jsonArrayContains expects [path, value]")
	}
	lit, ok := op.Args[0].(queryir.Literal)
	if !ok {
		return nil, queryir.Compilef("$jsonArrayContains expects a literal path")
	}
	path, ok := lit.Value.(ir.String)
	if !ok || path == "" {
		return nil, queryir.Compilef("$jsonArrayContains expects a literal path")
	}

	segments := strings.Split(string(path), ".")
	for _, seg := range segments[1:] {
		if strings.ContainsAny(seg, `'"\`) {
			return nil, queryir.Compilef("$jsonArrayContains path segment cannot contain quotes: %s", seg)
		}
	}
	field, err := b.resolveScalar(segments[0], "")
	if err != nil {
		return nil, err
	}
	value, err := b.compileExpression(op.Args[1], "")
	if err != nil {
		return nil, err
	}

	out := []atom{text(field), text("@> ('")}
	for _, seg := range segments[1:] {
		out = append(out, text(`{ "`+seg+`":`))
	}
	out = append(out, text(`["' ||`))
	out = append(out, value...)
	out = append(out, text(`|| '"]`))
	for range segments[1:] {
		out = append(out, text("}"))
	}
	return append(out, text("')::JSONB")), nil
}

// compileCond renders a $cond as a CASE expression. When both branches are
// literals of the same kind the result carries their type hint.
func (b *builder) compileCond(c queryir.Cond) ([]atom, error) {
	var cond []atom
	var err error
	switch {
	case c.IfSelector != nil:
		cond, err = b.compileSelector(c.IfSelector)
		if err == nil && len(cond) == 0 {
			err = queryir.Compilef("$cond condition compiles to nothing")
		}
	default:
		if ref, ok := c.IfExpr.(queryir.FieldRef); ok {
			var field string
			field, err = b.resolveScalar(ref.Path, "")
			cond = []atom{text(field), text("IS NOT NULL")}
		} else {
			cond, err = b.compileExpression(c.IfExpr, "")
		}
	}
	if err != nil {
		return nil, err
	}

	then, err := b.compileExpression(c.Then, "")
	if err != nil {
		return nil, err
	}
	els, err := b.compileExpression(c.Else, "")
	if err != nil {
		return nil, err
	}

	out := []atom{text("(CASE WHEN")}
	out = append(out, cond...)
	out = append(out, text("THEN"))
	out = append(out, then...)
	out = append(out, text("ELSE"))
	out = append(out, els...)
	out = append(out, text("END)"))
	if hint := unifiedHint(then, els); hint != "" {
		out = append(out, text(hint))
	}
	return out, nil
}

// unifiedHint returns the type hint shared by the first args of both
// fragments, or "" when they differ in kind.
func unifiedHint(a, b []atom) string {
	argA, okA := firstArg(a)
	argB, okB := firstArg(b)
	if !okA || !okB || valueKind(argA.value) != valueKind(argB.value) {
		return ""
	}
	return valueHint(argA.value)
}

func firstArg(atoms []atom) (arg, bool) {
	for _, a := range atoms {
		if a, ok := a.(arg); ok {
			return a, true
		}
	}
	return arg{}, false
}

// valueKind groups values the way a dynamically typed caller would see them:
// numbers, strings and booleans are kinds of their own, everything else is
// an object.
func valueKind(v ir.Value) string {
	switch v.(type) {
	case ir.Int, ir.Float:
		return "number"
	case ir.String:
		return "string"
	case ir.Bool:
		return "boolean"
	default:
		return "object"
	}
}

func invalidExpression(op queryir.Operator) error {
	return queryir.Compilef("Invalid expression: %s", ir.CanonicalString(expressionDocument(op)))
}

// expressionDocument rebuilds a document form of an expression for error
// messages.
func expressionDocument(expr queryir.Expression) ir.Value {
	switch e := expr.(type) {
	case queryir.Literal:
		return e.Value
	case queryir.FieldRef:
		return ir.String("$" + e.Path)
	case queryir.Operator:
		if len(e.Args) == 1 {
			return ir.Obj(ir.O(e.Name, expressionDocument(e.Args[0])))
		}
		args := make(ir.Array, len(e.Args))
		for i, a := range e.Args {
			args[i] = expressionDocument(a)
		}
		return ir.Obj(ir.O(e.Name, args))
	case queryir.Cond:
		return ir.Obj(ir.O("$cond", ir.Obj(
			ir.O("then", expressionDocument(e.Then)),
			ir.O("else", expressionDocument(e.Else)),
		)))
	default:
		return ir.Null{}
	}
}
