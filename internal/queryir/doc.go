// Package queryir provides the typed intermediate representation of a
// document query: selectors, conditions, expressions, options and the
// aggregation pipeline fragment.
//
// ARCHITECTURE:
//
// Documents are parsed into the IR before any SQL is produced:
//
//	[selector doc] → ParseSelector   → Selector
//	[options doc]  → ParseOptions    → Options
//	[pipeline doc] → ParsePipeline   → Pipeline
//	                 Validate        → ValidationResult
//	                                 → [querysql backend]
//
// Parsing recognizes document shapes and rejects malformed ones. Anything
// that depends on the table schema (column types, array columns, lookup
// targets) is resolved later by the SQL backend.
//
// SEALED INTERFACES:
//
// Selector, Condition and Expression are sealed interfaces using the
// marker method pattern. Only types in this package can implement them,
// so backends can switch exhaustively:
//
//	switch s := sel.(type) {
//	case queryir.And:
//	case queryir.Or:
//	case queryir.Comment:
//	case queryir.ExprSelector:
//	case queryir.FieldSelector:
//	}
//
// KEY ORDER:
//
// Selector documents are ir.Object values, which keep their key order.
// The order of And items, AllOf conditions and operator arguments follows
// the document, and with it the order of placeholders in the compiled SQL.
//
// ERRORS:
//
// Every failure is an *Error with one of three kinds: KindValidation for
// unsupported options, KindUnimplemented for recognized shapes that are
// refused, and KindCompile for unknown operators and malformed selectors.
package queryir
