package parser

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokString
	tokOpen
	tokClose
	tokEnd
)

type token struct {
	kind tokenKind
	text string
	line int
	// closing bracket expected for tokOpen
	closer rune
}

func isDelimiter(r rune) bool {
	switch r {
	case '[', ']', '(', ')', ';', '"':
		return true
	}
	return unicode.IsSpace(r)
}

func lex(src string) ([]token, error) {
	var toks []token
	runes := []rune(src)
	line := 1
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case r == '\n':
			line++
			i++
		case unicode.IsSpace(r):
			i++
		case r == '#':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case r == '[':
			toks = append(toks, token{kind: tokOpen, text: "[", line: line, closer: ']'})
			i++
		case r == '(':
			toks = append(toks, token{kind: tokOpen, text: "(", line: line, closer: ')'})
			i++
		case r == ']' || r == ')':
			toks = append(toks, token{kind: tokClose, text: string(r), line: line})
			i++
		case r == ';':
			toks = append(toks, token{kind: tokEnd, text: ";", line: line})
			i++
		case r == '"':
			start := line
			var b strings.Builder
			i++
			closed := false
			for i < len(runes) {
				c := runes[i]
				if c == '"' {
					closed = true
					i++
					break
				}
				if c == '\\' && i+1 < len(runes) {
					i++
					c = unescape(runes[i])
				}
				if c == '\n' {
					line++
				}
				b.WriteRune(c)
				i++
			}
			if !closed {
				return nil, fmt.Errorf("%w: line %d: unterminated string", ErrUnbalanced, start)
			}
			toks = append(toks, token{kind: tokString, text: b.String(), line: start})
		default:
			start := i
			for i < len(runes) && !isDelimiter(runes[i]) {
				i++
			}
			toks = append(toks, token{kind: tokWord, text: string(runes[start:i]), line: line})
		}
	}
	return toks, nil
}

func unescape(r rune) rune {
	switch r {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	}
	return r
}
