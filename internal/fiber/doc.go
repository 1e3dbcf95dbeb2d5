// Package fiber owns the rewrite engine.
//
// Ownership boundary:
// - tape and mailbox of one execution unit
//
// - the step algorithm: rightmost literal primary, rule lookup, match, rewrite, splice
//
// - evaluate-to-fixpoint and tape compaction
//
// A fiber's tape is written only by the goroutine evaluating it. Snapshot may
// be called from any goroutine.
package fiber
