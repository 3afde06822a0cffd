// Package schema describes the relational tables that selectors compile against.
//
// A Table is an ordered list of Columns with a mandatory "_id" primary key.
// Each Column carries its SQL type and nullability; the query compiler uses
// them to pick between IS DISTINCT FROM and <>, to infer element types for
// IN lists, and to choose array operators.
//
// Tables are declared in CUE and loaded once at startup:
//
//	table: Posts: columns: {
//		"_id":    "VARCHAR(27)"
//		title:    {type: "TEXT", nullable: false}
//		tagIds:   "TEXT[]"
//		contents: "JSONB"
//	}
//
// CUE treats identifiers with a leading underscore as hidden fields, so
// "_id" must be quoted. A Registry holds the loaded tables and resolves
// names case-insensitively.
package schema
