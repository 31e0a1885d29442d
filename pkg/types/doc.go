// Package types defines the type expression graph: scalar atoms with
// refinements, open and closed structs, lists, unions, references,
// conditionals, and unevaluated composites.
//
// Expressions are built once when packages load and are immutable afterwards.
// Canonical renders an expression deterministically and Fingerprint digests
// that rendering, which is what drift detection compares between loads.
package types
