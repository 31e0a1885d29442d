// Package value provides the tagged representation of structured data used by
// the engine, both for literals inside schema documents and for data under test.
//
// Values are immutable. Every constructor copies its inputs, and accessors
// never hand out internal slices, so a Value can be shared freely between
// concurrent evaluations.
//
// # Paths
//
// Paths address nested values using the same notation validation errors use:
//
//	p, _ := value.ParsePath("lease.tenants[0].name")
//	v, ok := value.Lookup(doc, p)
package value
