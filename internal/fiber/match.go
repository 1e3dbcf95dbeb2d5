package fiber

import (
	"github.com/danmuck/mantra/internal/rules"
	"github.com/danmuck/mantra/internal/term"
)

// Bindings maps pattern variables to the argument terms they matched.
type Bindings map[term.Symbol]term.Term

// Match walks pattern against the head of args. It returns the bindings and
// the number of top-level argument positions consumed.
func Match(pattern, args []term.Term) (Bindings, int, bool) {
	b := make(Bindings)
	n, ok := matchSeq(pattern, args, b)
	if !ok {
		return nil, 0, false
	}
	return b, n, true
}

func matchSeq(pattern, args []term.Term, b Bindings) (int, bool) {
	if len(args) < len(pattern) {
		return 0, false
	}
	consumed := 0
	for i := range pattern {
		if !matchTerm(pattern[i], args[i], b) {
			return 0, false
		}
		consumed++
	}
	return consumed, true
}

func matchTerm(p, a term.Term, b Bindings) bool {
	switch p.Kind() {
	case term.KindLiteral:
		sym, _ := p.Symbol()
		if sym == term.Wildcard {
			return true
		}
		// repeated variables unify instead of overwriting
		if bound, ok := b[sym]; ok {
			return bound.Equal(a)
		}
		b[sym] = a
		return true
	case term.KindNumber:
		want, _ := p.Decimal()
		got, ok := a.Decimal()
		return ok && want.Equal(got)
	case term.KindList:
		items, _ := p.Items()
		argItems, ok := a.Items()
		if !ok {
			return false
		}
		if prefix, tail, ok := splitRest(items); ok {
			if len(argItems) < len(prefix) {
				return false
			}
			if _, ok := matchSeq(prefix, argItems[:len(prefix)], b); !ok {
				return false
			}
			rest := term.List(term.CopyAll(argItems[len(prefix):])...)
			return matchTerm(tail, rest, b)
		}
		if len(items) != len(argItems) {
			return false
		}
		_, ok = matchSeq(items, argItems, b)
		return ok
	default:
		return false
	}
}

// splitRest recognizes [p0 p1 .. tail].
func splitRest(items []term.Term) ([]term.Term, term.Term, bool) {
	n := len(items)
	if n < 2 || !items[n-2].Is(term.Rest) {
		return nil, term.Term{}, false
	}
	return items[:n-2], items[n-1], true
}

// Rewrite instantiates body under b. Every bound value is deep-copied at each
// use site, so the result shares no storage with b or body.
func Rewrite(body []term.Term, b Bindings) []term.Term {
	out := make([]term.Term, 0, len(body))
	for _, t := range body {
		out = append(out, rewriteTerm(t, b))
	}
	return out
}

func rewriteTerm(t term.Term, b Bindings) term.Term {
	switch t.Kind() {
	case term.KindLiteral:
		sym, _ := t.Symbol()
		if v, ok := b[sym]; ok {
			return v.Copy()
		}
		return t
	case term.KindList:
		items, _ := t.Items()
		return term.List(Rewrite(items, b)...)
	default:
		return t.Copy()
	}
}

// applyClauses tries clauses in declaration order.
func applyClauses(clauses []rules.Clause, args []term.Term) ([]term.Term, int, bool) {
	for _, c := range clauses {
		b, n, ok := Match(c.Pattern, args)
		if !ok {
			continue
		}
		if c.Body == nil {
			return nil, n, true
		}
		return Rewrite(c.Body, b), n, true
	}
	return nil, 0, false
}
