package queryir

import (
	"encoding/json"

	"github.com/roach88/docsql/internal/ir"
)

// SortField is one ORDER BY entry.
type SortField struct {
	Field      string
	Descending bool
}

// Collation selects a string comparison mode. Only {locale: "en",
// strength: 2} (case-insensitive English) is supported.
type Collation struct {
	Locale   string `json:"locale"`
	Strength int64  `json:"strength"`
}

// CaseInsensitive is the one supported collation.
var CaseInsensitive = Collation{Locale: "en", Strength: 2}

// Supported reports whether the collation can be compiled.
func (c Collation) Supported() bool {
	return c == CaseInsensitive
}

func (c Collation) String() string {
	data, _ := json.Marshal(c)
	return string(data)
}

// Options are the query options accompanying a selector.
// Zero Limit and Skip mean "absent".
type Options struct {
	Sort       []SortField
	Limit      int64
	Skip       int64
	Projection ir.Object
	Collation  *Collation
	Count      bool
	Comment    string
}

// Lookup is a $lookup stage. Let and Pipeline are recorded only so the
// compiler can reject the pipeline form.
type Lookup struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
	Let          ir.Value
	Pipeline     ir.Value
}

// IsPipeline reports whether the lookup uses the let/pipeline form.
func (l *Lookup) IsPipeline() bool {
	return l.Let != nil || l.Pipeline != nil
}

// Pipeline is the aggregation fragment of a query.
type Pipeline struct {
	Group      ir.Object
	AddFields  ir.Object
	Lookup     *Lookup
	SampleSize int64
	JoinHook   string
	ForUpdate  bool
}

// ParseOptions reads an options document. Unknown keys are ignored, as
// drivers pass options the compiler has no use for.
func ParseOptions(doc ir.Value) (Options, error) {
	var opts Options
	obj, err := asObject("options", doc)
	if err != nil || obj == nil {
		return opts, err
	}

	for _, p := range obj {
		switch p.Key {
		case "sort":
			opts.Sort, err = parseSort(p.Value)
		case "limit":
			opts.Limit, err = nonNegativeInt("limit", p.Value)
		case "skip":
			opts.Skip, err = nonNegativeInt("skip", p.Value)
		case "projection":
			opts.Projection, err = asObject("projection", p.Value)
		case "collation":
			opts.Collation, err = parseCollation(p.Value)
		case "count":
			opts.Count = ir.Truthy(p.Value)
		case "comment":
			opts.Comment, err = asString("comment", p.Value)
		}
		if err != nil {
			return Options{}, err
		}
	}
	return opts, nil
}

// ParsePipeline reads a pipeline document with the keys group, addFields,
// lookup, sampleSize, joinHook and forUpdate.
func ParsePipeline(doc ir.Value) (Pipeline, error) {
	var pipe Pipeline
	obj, err := asObject("pipeline", doc)
	if err != nil || obj == nil {
		return pipe, err
	}

	for _, p := range obj {
		switch p.Key {
		case "group":
			pipe.Group, err = asObject("group", p.Value)
		case "addFields":
			pipe.AddFields, err = asObject("addFields", p.Value)
		case "lookup":
			pipe.Lookup, err = parseLookup(p.Value)
		case "sampleSize":
			pipe.SampleSize, err = nonNegativeInt("sampleSize", p.Value)
		case "joinHook":
			pipe.JoinHook, err = asString("joinHook", p.Value)
		case "forUpdate":
			pipe.ForUpdate = ir.Truthy(p.Value)
		default:
			err = Validationf("Unknown pipeline stage: %s", p.Key)
		}
		if err != nil {
			return Pipeline{}, err
		}
	}
	return pipe, nil
}

func parseSort(v ir.Value) ([]SortField, error) {
	obj, err := asObject("sort", v)
	if err != nil {
		return nil, err
	}
	fields := make([]SortField, 0, len(obj))
	for _, p := range obj {
		dir, ok := ir.AsFloat(p.Value)
		if !ok {
			return nil, Validationf("Invalid sort direction for %s: %s", p.Key, ir.CanonicalString(p.Value))
		}
		fields = append(fields, SortField{Field: p.Key, Descending: dir != 1})
	}
	return fields, nil
}

// parseCollation accepts {locale, strength}. Shapes that cannot be read
// as a collation are reported with the same message as unsupported ones.
func parseCollation(v ir.Value) (*Collation, error) {
	if ir.IsNull(v) {
		return nil, nil
	}
	unsupported := Validationf("Unsupported collation type: %s", ir.CanonicalString(v))

	obj, ok := v.(ir.Object)
	if !ok {
		return nil, unsupported
	}
	var c Collation
	for _, p := range obj {
		switch p.Key {
		case "locale":
			s, ok := p.Value.(ir.String)
			if !ok {
				return nil, unsupported
			}
			c.Locale = string(s)
		case "strength":
			n, ok := ir.AsInt(p.Value)
			if !ok {
				return nil, unsupported
			}
			c.Strength = n
		default:
			return nil, unsupported
		}
	}
	return &c, nil
}

func parseLookup(v ir.Value) (*Lookup, error) {
	obj, err := asObject("lookup", v)
	if err != nil || obj == nil {
		return nil, err
	}
	l := &Lookup{}
	for _, p := range obj {
		switch p.Key {
		case "from":
			l.From, err = asString("lookup.from", p.Value)
		case "localField":
			l.LocalField, err = asString("lookup.localField", p.Value)
		case "foreignField":
			l.ForeignField, err = asString("lookup.foreignField", p.Value)
		case "as":
			l.As, err = asString("lookup.as", p.Value)
		case "let":
			l.Let = p.Value
		case "pipeline":
			l.Pipeline = p.Value
		}
		if err != nil {
			return nil, err
		}
	}
	return l, nil
}

func asObject(name string, v ir.Value) (ir.Object, error) {
	switch val := v.(type) {
	case nil, ir.Null:
		return nil, nil
	case ir.Object:
		return val, nil
	default:
		return nil, Validationf("%s must be an object, got %s", name, ir.CanonicalString(v))
	}
}

func asString(name string, v ir.Value) (string, error) {
	switch val := v.(type) {
	case nil, ir.Null:
		return "", nil
	case ir.String:
		return string(val), nil
	default:
		return "", Validationf("%s must be a string, got %s", name, ir.CanonicalString(v))
	}
}

func nonNegativeInt(name string, v ir.Value) (int64, error) {
	if ir.IsNull(v) {
		return 0, nil
	}
	n, ok := ir.AsInt(v)
	if !ok || n < 0 {
		return 0, Validationf("Invalid %s: %s", name, ir.CanonicalString(v))
	}
	return n, nil
}
