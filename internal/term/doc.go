// Package term owns the runtime value model.
//
// Ownership boundary:
// - process-wide symbol interner
//
// - the Term sum type (literal, number, list)
//
// - deep copy and structural equality
//
// Terms are values. A list term owns its items slice; any term that crosses
// from a pattern binding into a rewritten body must go through Copy.
package term
