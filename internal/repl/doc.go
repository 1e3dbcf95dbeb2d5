// Package repl is the interactive command loop.
//
// Input is evaluated on a private fiber named "repl" that is not owned by the
// pool, so only the loop goroutine ever evaluates it. Lines starting with '#'
// are commands.
package repl
