// Package resolver links package documents into an immutable Graph.
//
// Loading expands paths and globs, parses documents concurrently, and checks
// the result as a whole: imports must exist and be acyclic, every reference
// must name a definition of its own package or of an imported one,
// compositions must unify, and conditions must test fields their struct
// declares. All problems are reported together as *LoadError values.
//
// A Graph implements unify.Resolver and carries a fingerprint of every
// definition's effective constraint, which drift detection compares across
// versions.
package resolver
