// Package schema provides parsing and validation for ontology package documents.
//
// A package document is a YAML (or JSON) file declaring a named package, the
// packages it imports, its type definitions, and its state machines. This
// package turns those documents into type expressions, reporting every
// problem with its path and line number. Cross-package resolution happens
// later, in the resolver.
package schema
