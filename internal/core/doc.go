// Package core provides the native primitive rules every program starts with:
// arithmetic, comparison, list shaping, messaging between fibers, tracing and
// nested evaluation.
package core
