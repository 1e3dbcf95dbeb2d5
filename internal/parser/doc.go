// Package parser turns source text into terms and rule modules.
//
// Source grammar:
//
//	version 0
//	# comment
//	name pattern... => body... ;
//	name body... ;
//
// Terms are bare words, decimal numbers, and lists bracketed by [ ] or ( ).
// A "string" is sugar for a list of one-character literals.
package parser
