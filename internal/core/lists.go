package core

import "github.com/danmuck/mantra/internal/term"

func asItems(t term.Term) []term.Term {
	if items, ok := t.Items(); ok {
		return items
	}
	return []term.Term{t}
}

// cat joins two lists; a non-list operand counts as a one-element list.
func cat(args []term.Term) ([]term.Term, error) {
	left, right := asItems(args[0]), asItems(args[1])
	out := make([]term.Term, 0, len(left)+len(right))
	out = append(out, left...)
	out = append(out, right...)
	return []term.Term{term.List(out...)}, nil
}

func cons(args []term.Term) ([]term.Term, error) {
	items, ok := args[1].Items()
	if !ok {
		return nil, mismatch("list", args[1])
	}
	out := make([]term.Term, 0, len(items)+1)
	out = append(out, args[0])
	out = append(out, items...)
	return []term.Term{term.List(out...)}, nil
}

func unquote(args []term.Term) ([]term.Term, error) {
	items, ok := args[0].Items()
	if !ok {
		return nil, mismatch("list", args[0])
	}
	return items, nil
}

func duplicate(args []term.Term) ([]term.Term, error) {
	return []term.Term{args[0], args[0].Copy()}, nil
}

// choose ifEmpty ifNonEmpty cond
func choose(args []term.Term) ([]term.Term, error) {
	if cond, ok := args[2].Items(); ok && len(cond) == 0 {
		return args[:1], nil
	}
	return args[1:2], nil
}

func head(args []term.Term) ([]term.Term, error) {
	items, ok := args[0].Items()
	if !ok {
		return nil, mismatch("list", args[0])
	}
	if len(items) == 0 {
		return nil, ErrEmptyList
	}
	return []term.Term{items[0], term.List(items[1:]...)}, nil
}
