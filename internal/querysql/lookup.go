package querysql

import (
	"github.com/roach88/docsql/internal/queryir"
	"github.com/roach88/docsql/internal/schema"
)

// compileLookup compiles a localField/foreignField $lookup into a lateral
// join that aggregates the matching foreign rows into one JSONB array
// column named by As. It returns that column for the query output.
func (b *builder) compileLookup(l *queryir.Lookup) ([]atom, []schema.Column, error) {
	if err := queryir.Validate(queryir.Options{}, queryir.Pipeline{Lookup: l}).Err(); err != nil {
		return nil, nil, err
	}

	foreign, ok := b.reg.Lookup(l.From)
	if !ok {
		return nil, nil, queryir.Validationf("Invalid $lookup: %s is not a valid table name", l.From)
	}

	local := quoteIdent(l.LocalField)
	if t, ok := b.src.(tableSource); ok {
		local = quoteIdent(t.table.Name) + "." + local
	}
	from := quoteIdent(foreign.Name)

	sql := ", LATERAL (SELECT jsonb_agg(" + from + ".*) AS " + quoteIdent(l.As) +
		" FROM " + from +
		" WHERE " + local + " = " + from + "." + quoteIdent(l.ForeignField) + ") Q"

	joined := schema.Column{Name: l.As, Type: schema.TypeJSONB, Nullable: true}
	return []atom{text(sql)}, []schema.Column{joined}, nil
}
