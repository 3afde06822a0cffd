package queryir

import (
	"strings"

	"github.com/roach88/docsql/internal/ir"
)

// Expression is a value-producing aggregation expression, as used in
// $expr, $cond, $addFields and $group.
//
// This is a sealed interface - only types in this package implement it.
type Expression interface {
	expressionNode() // Marker method - seals interface to this package
}

// Literal is a constant bound as a placeholder argument. Objects whose first
// key is not an operator are literals too.
type Literal struct {
	Value ir.Value
}

func (Literal) expressionNode() {}

// FieldRef references a column or JSON path. "$a.b" parses to
// FieldRef{Path: "a.b"}.
type FieldRef struct {
	Path string
}

func (FieldRef) expressionNode() {}

// Operator applies a named operator ("$add", "$sum", ...) to its operands.
//
// An array operand document yields one Arg per element; any other operand
// yields a single Arg. Operator names are checked by the SQL backend, so
// parsing never rejects an unknown name.
type Operator struct {
	Name string
	Args []Expression
}

func (Operator) expressionNode() {}

// Cond is a ternary $cond. Exactly one of IfSelector and IfExpr is set.
// An IfExpr that is a FieldRef tests the field for non-null.
type Cond struct {
	IfSelector Selector
	IfExpr     Expression
	Then       Expression
	Else       Expression
}

func (Cond) expressionNode() {}

// ParseExpression converts an expression document into an Expression tree.
func ParseExpression(doc ir.Value) (Expression, error) {
	switch v := doc.(type) {
	case ir.String:
		if strings.HasPrefix(string(v), "$") {
			return FieldRef{Path: string(v)[1:]}, nil
		}
		return Literal{Value: v}, nil
	case ir.Object:
		return parseExpressionObject(v)
	case nil:
		return Literal{Value: ir.Null{}}, nil
	default:
		return Literal{Value: doc}, nil
	}
}

func parseExpressionObject(obj ir.Object) (Expression, error) {
	if len(obj) == 0 || !strings.HasPrefix(obj[0].Key, "$") {
		return Literal{Value: obj}, nil
	}
	if len(obj) > 1 {
		return nil, Compilef("Invalid expression: %s", ir.CanonicalString(obj))
	}

	name, operand := obj[0].Key, obj[0].Value
	if name == "$cond" {
		return parseCond(operand)
	}

	op := Operator{Name: name}
	if arr, ok := operand.(ir.Array); ok {
		op.Args = make([]Expression, 0, len(arr))
		for _, elem := range arr {
			arg, err := ParseExpression(elem)
			if err != nil {
				return nil, err
			}
			op.Args = append(op.Args, arg)
		}
		return op, nil
	}

	arg, err := ParseExpression(operand)
	if err != nil {
		return nil, err
	}
	op.Args = []Expression{arg}
	return op, nil
}

// parseCond accepts {if, then, else} or [if, then, else].
func parseCond(operand ir.Value) (Expression, error) {
	var ifDoc, thenDoc, elseDoc ir.Value
	switch v := operand.(type) {
	case ir.Object:
		var okIf, okThen, okElse bool
		ifDoc, okIf = v.Get("if")
		thenDoc, okThen = v.Get("then")
		elseDoc, okElse = v.Get("else")
		if !okIf || !okThen || !okElse {
			return nil, Compilef("$cond requires if, then and else: %s", ir.CanonicalString(v))
		}
	case ir.Array:
		if len(v) != 3 {
			return nil, Compilef("$cond requires if, then and else: %s", ir.CanonicalString(v))
		}
		ifDoc, thenDoc, elseDoc = v[0], v[1], v[2]
	default:
		return nil, Compilef("Invalid expression: %s", ir.CanonicalString(ir.Obj(ir.O("$cond", operand))))
	}

	var cond Cond
	if obj, ok := ifDoc.(ir.Object); ok && len(obj) > 0 && !strings.HasPrefix(obj[0].Key, "$") {
		sel, err := ParseSelector(obj)
		if err != nil {
			return nil, err
		}
		cond.IfSelector = sel
	} else {
		expr, err := ParseExpression(ifDoc)
		if err != nil {
			return nil, err
		}
		cond.IfExpr = expr
	}

	var err error
	if cond.Then, err = ParseExpression(thenDoc); err != nil {
		return nil, err
	}
	if cond.Else, err = ParseExpression(elseDoc); err != nil {
		return nil, err
	}
	return cond, nil
}
