// Package ir provides the document value model shared by every docsql package.
//
// Selectors, options and pipeline stages arrive as MongoDB-style documents.
// Key order inside those documents is significant: it decides the order of
// SQL clauses and therefore the numbering of bind placeholders. Object is
// an ordered list of pairs rather than a map for that reason.
//
// This package imports nothing internal. All other internal packages import
// ir; ir remains the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Object preserves input key order (never sorted)
//   - Integers stay int64, fractional numbers become Float
//   - {"$date": "<RFC3339>"} decodes to Time
//   - Canonical JSON keeps document order, NFC-normalizes strings and never
//     escapes HTML characters
package ir
