package queryir

import (
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/roach88/docsql/internal/ir"
)

// Selector is a filter predicate over table rows.
//
// This is a sealed interface - only types in this package implement it.
// Backends switch exhaustively over:
//   - And / Or: logical combinators, always parenthesized
//   - Comment: an inert $comment entry
//   - ExprSelector: a $expr predicate
//   - FieldSelector: a condition applied to one field path
type Selector interface {
	selectorNode() // Marker method - seals interface to this package
}

// And requires every item to hold.
//
// A selector document with more than one key parses to an And of its
// entries, so {a: 3, $comment: "x"} is an And of two items even though
// only one of them produces SQL.
type And struct {
	Items []Selector
}

func (And) selectorNode() {}

// Or requires at least one item to hold.
type Or struct {
	Items []Selector
}

func (Or) selectorNode() {}

// Comment is a $comment annotation. It never produces SQL.
type Comment struct {
	Value ir.Value
}

func (Comment) selectorNode() {}

// ExprSelector is a $expr predicate evaluated as an expression.
type ExprSelector struct {
	Expr Expression
}

func (ExprSelector) selectorNode() {}

// FieldSelector applies Cond to the value at Path.
// Path is a column name or a dotted path into a JSON column.
type FieldSelector struct {
	Path string
	Cond Condition
}

func (FieldSelector) selectorNode() {}

// Condition is the right-hand side of a field selector.
//
// This is a sealed interface - only types in this package implement it.
type Condition interface {
	conditionNode() // Marker method - seals interface to this package
}

// Comparison operator names.
const (
	OpEq  = "$eq"
	OpNe  = "$ne"
	OpLt  = "$lt"
	OpLte = "$lte"
	OpGt  = "$gt"
	OpGte = "$gte"
)

// Compare compares the field against a literal. A bare value in a selector
// ({a: 3}) is Compare{Op: OpEq}.
type Compare struct {
	Op    string
	Value ir.Value
}

func (Compare) conditionNode() {}

// In matches when the field equals any of Values (or, for array columns,
// when the arrays overlap).
type In struct {
	Values ir.Array
}

func (In) conditionNode() {}

// All matches when the field contains every one of Values.
type All struct {
	Values ir.Array
}

func (All) conditionNode() {}

// Not negates a condition. $nin parses to Not{In}.
type Not struct {
	Cond Condition
}

func (Not) conditionNode() {}

// Size matches arrays with exactly N elements.
type Size struct {
	N ir.Value
}

func (Size) conditionNode() {}

// Exists matches non-null (true) or null (false) fields.
type Exists struct {
	Exists bool
}

func (Exists) conditionNode() {}

// Near orders results by distance from Point instead of filtering.
type Near struct {
	Point orb.Point
}

func (Near) conditionNode() {}

// GeoWithin matches locations within Radius radians of Center.
//
// Location, when set, is a raw SQL expression naming the JSON object that
// holds "lng" and "lat" keys. When empty the field itself is used.
type GeoWithin struct {
	Center   orb.Point
	Radius   float64
	Location string
}

func (GeoWithin) conditionNode() {}

// AllOf holds several operators on one field, e.g. {$gt: 2, $lt: 10}.
type AllOf struct {
	Conds []Condition
}

func (AllOf) conditionNode() {}

// ParseSelector converts a selector document into a Selector tree.
//
// A nil or null document, an empty object, and an object holding only
// a $comment all mean "no filter"; the first two return a nil Selector.
// A string selector is shorthand for {_id: <string>}.
func ParseSelector(doc ir.Value) (Selector, error) {
	switch v := doc.(type) {
	case nil, ir.Null:
		return nil, nil
	case ir.String:
		return FieldSelector{Path: "_id", Cond: Compare{Op: OpEq, Value: v}}, nil
	case ir.Object:
		return parseSelectorObject(v)
	default:
		return nil, Compilef("Invalid selector: %s", ir.CanonicalString(doc))
	}
}

func parseSelectorObject(obj ir.Object) (Selector, error) {
	switch len(obj) {
	case 0:
		return nil, nil
	case 1:
		return parseSelectorEntry(obj[0].Key, obj[0].Value)
	}

	items := make([]Selector, 0, len(obj))
	for _, p := range obj {
		item, err := parseSelectorEntry(p.Key, p.Value)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return And{Items: items}, nil
}

func parseSelectorEntry(key string, val ir.Value) (Selector, error) {
	switch key {
	case "$and":
		items, err := parseCombinator(key, val)
		if err != nil {
			return nil, err
		}
		return And{Items: items}, nil
	case "$or":
		items, err := parseCombinator(key, val)
		if err != nil {
			return nil, err
		}
		return Or{Items: items}, nil
	case "$expr":
		expr, err := ParseExpression(val)
		if err != nil {
			return nil, err
		}
		return ExprSelector{Expr: expr}, nil
	case "$comment":
		return Comment{Value: val}, nil
	}

	if strings.HasPrefix(key, "$") {
		return nil, Compilef("Unsupported selector operator: %s", key)
	}
	if strings.Contains(key, ".$") {
		return nil, Unimplementedf("`.$` array fields not implemented")
	}

	cond, err := parseCondition(key, val)
	if err != nil {
		return nil, err
	}
	return FieldSelector{Path: key, Cond: cond}, nil
}

// parseCombinator accepts either an array of selectors or an object whose
// entries are treated as one-key selectors.
func parseCombinator(op string, val ir.Value) ([]Selector, error) {
	var items []Selector
	switch v := val.(type) {
	case ir.Array:
		for _, elem := range v {
			item, err := ParseSelector(elem)
			if err != nil {
				return nil, err
			}
			if item != nil {
				items = append(items, item)
			}
		}
		if len(v) == 0 {
			return nil, Compilef("%s requires a non-empty array", op)
		}
	case ir.Object:
		for _, p := range v {
			item, err := parseSelectorEntry(p.Key, p.Value)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if len(v) == 0 {
			return nil, Compilef("%s requires a non-empty object", op)
		}
	default:
		return nil, Compilef("%s expects an array or object: %s", op, ir.CanonicalString(val))
	}
	return items, nil
}

// parseCondition interprets the value side of a field selector. Objects are
// always operator maps; anything else is an implicit equality.
func parseCondition(field string, val ir.Value) (Condition, error) {
	obj, ok := val.(ir.Object)
	if !ok {
		return Compare{Op: OpEq, Value: val}, nil
	}

	switch len(obj) {
	case 0:
		return nil, Compilef("Invalid comparison selector: %s: %s", field, ir.CanonicalString(obj))
	case 1:
		return parseOperator(field, obj[0].Key, obj[0].Value)
	}

	conds := make([]Condition, 0, len(obj))
	for _, p := range obj {
		cond, err := parseOperator(field, p.Key, p.Value)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return AllOf{Conds: conds}, nil
}

func parseOperator(field, op string, val ir.Value) (Condition, error) {
	switch op {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
		return Compare{Op: op, Value: val}, nil

	case "$not":
		inner, err := parseCondition(field, val)
		if err != nil {
			return nil, err
		}
		return Not{Cond: inner}, nil

	case "$in", "$nin", "$all":
		values, ok := val.(ir.Array)
		if !ok {
			return nil, Compilef("%s expects an array", op)
		}
		switch op {
		case "$in":
			return In{Values: values}, nil
		case "$nin":
			return Not{Cond: In{Values: values}}, nil
		default:
			return All{Values: values}, nil
		}

	case "$exists":
		return Exists{Exists: ir.Truthy(val)}, nil

	case "$size":
		if _, ok := ir.AsFloat(val); !ok {
			return nil, Compilef("Invalid array size: %s", ir.CanonicalString(val))
		}
		return Size{N: val}, nil

	case "$near":
		return parseNear(val)

	case "$geoWithin":
		return parseGeoWithin(val)
	}

	return nil, Compilef("Invalid comparison selector: %s: %s", field, ir.CanonicalString(ir.Obj(ir.O(op, val))))
}

// parseNear reads {$geometry: <GeoJSON Point>}.
func parseNear(val ir.Value) (Condition, error) {
	invalid := Compilef("Invalid $near selector")

	obj, ok := val.(ir.Object)
	if !ok {
		return nil, invalid
	}
	geometry, ok := obj.Get("$geometry")
	if !ok {
		return nil, invalid
	}
	data, err := ir.MarshalCanonical(geometry)
	if err != nil {
		return nil, invalid
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, invalid
	}
	point, ok := g.Geometry().(orb.Point)
	if !ok {
		return nil, invalid
	}
	return Near{Point: point}, nil
}

// parseGeoWithin reads {$centerSphere: [[lng, lat], radius], $comment: {locationName}}.
func parseGeoWithin(val ir.Value) (Condition, error) {
	invalid := Compilef("Invalid $geoWithin selector")

	obj, ok := val.(ir.Object)
	if !ok {
		return nil, invalid
	}
	sphere, ok := obj.Get("$centerSphere")
	if !ok {
		return nil, invalid
	}
	parts, ok := sphere.(ir.Array)
	if !ok || len(parts) != 2 {
		return nil, invalid
	}
	coords, ok := parts[0].(ir.Array)
	if !ok || len(coords) != 2 {
		return nil, invalid
	}
	lng, okLng := ir.AsFloat(coords[0])
	lat, okLat := ir.AsFloat(coords[1])
	radius, okRadius := ir.AsFloat(parts[1])
	if !okLng || !okLat || !okRadius {
		return nil, invalid
	}

	cond := GeoWithin{Center: orb.Point{lng, lat}, Radius: radius}
	if comment, ok := obj.Get("$comment"); ok {
		commentObj, ok := comment.(ir.Object)
		if !ok {
			return nil, invalid
		}
		if name, ok := commentObj.Get("locationName"); ok {
			s, ok := name.(ir.String)
			if !ok || s == "" {
				return nil, invalid
			}
			cond.Location = string(s)
		}
	}
	return cond, nil
}
