package querysql

import (
	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
)

// Request is the document form of a compile call:
//
//	table: Posts            # or from: {<nested request>}
//	selector: {...}
//	options: {...}
//	pipeline: {...}
//
// Exactly one of table and from is set.
type Request struct {
	Table    string
	From     *Request
	Selector ir.Value
	Options  queryir.Options
	Pipeline queryir.Pipeline
}

// ParseRequest reads a request document.
func ParseRequest(doc ir.Value) (*Request, error) {
	obj, ok := doc.(ir.Object)
	if !ok {
		return nil, queryir.Validationf("request must be an object, got %s", ir.CanonicalString(doc))
	}

	req := &Request{}
	for _, p := range obj {
		var err error
		switch p.Key {
		case "table":
			s, ok := p.Value.(ir.String)
			if !ok || s == "" {
				return nil, queryir.Validationf("table must be a non-empty string, got %s", ir.CanonicalString(p.Value))
			}
			req.Table = string(s)
		case "from":
			req.From, err = ParseRequest(p.Value)
		case "selector":
			req.Selector = p.Value
		case "options":
			req.Options, err = queryir.ParseOptions(p.Value)
		case "pipeline":
			req.Pipeline, err = queryir.ParsePipeline(p.Value)
		default:
			return nil, queryir.Validationf("Unknown request field: %s", p.Key)
		}
		if err != nil {
			return nil, err
		}
	}

	switch {
	case req.Table == "" && req.From == nil:
		return nil, queryir.Validationf("request needs a table or a from subquery")
	case req.Table != "" && req.From != nil:
		return nil, queryir.Validationf("request cannot have both table and from")
	}
	return req, nil
}

// BuildRequest builds a request, recursively building its from subquery.
func (c *Compiler) BuildRequest(req *Request) (*Query, error) {
	var src Source
	if req.From != nil {
		inner, err := c.BuildRequest(req.From)
		if err != nil {
			return nil, err
		}
		src = inner
	} else {
		t, err := c.Table(req.Table)
		if err != nil {
			return nil, err
		}
		src = t
	}
	return c.Build(src, req.Selector, req.Options, req.Pipeline)
}

// CompileRequest builds and renders a request.
func (c *Compiler) CompileRequest(req *Request) (CompiledQuery, error) {
	q, err := c.BuildRequest(req)
	if err != nil {
		return CompiledQuery{}, err
	}
	return q.Compile(), nil
}

// CompileDocument parses and compiles a request document.
func (c *Compiler) CompileDocument(doc ir.Value) (CompiledQuery, error) {
	req, err := ParseRequest(doc)
	if err != nil {
		return CompiledQuery{}, err
	}
	return c.CompileRequest(req)
}
