// Package doc provides the schema-free JSON value model stored by lunadb.
//
// Documents are trees of Value. Value is a sealed interface: only Null,
// String, Int, Float, Bool, Array and Object implement it, so every
// consumer can switch over the complete set of shapes.
//
// Key properties:
//   - Integral JSON numbers decode to Int, all other numbers to Float
//   - Object keys always marshal in sorted order, so equal documents
//     produce byte-identical JSON
//   - No schema is imposed; validation happens only at the storage boundary
//     (Parse / ParseObject)
//
// doc imports nothing internal.
package doc
