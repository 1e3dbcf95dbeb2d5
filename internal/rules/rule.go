package rules

import (
	"fmt"

	"github.com/danmuck/mantra/internal/term"
)

// NativeFunc receives exactly Arity argument terms. It must not modify them.
type NativeFunc func(args []term.Term) ([]term.Term, error)

// Clause is one pattern/body pair of a derived rule.
type Clause struct {
	Pattern []term.Term
	// Body nil means match and consume, produce nothing.
	Body []term.Term
}

// Rule is either native (Native != nil) or derived (ordered Clauses).
type Rule struct {
	Name    term.Symbol
	Arity   int
	Native  NativeFunc
	Clauses []Clause
}

// NewNative builds a fixed-arity native rule.
func NewNative(name string, arity int, fn NativeFunc) *Rule {
	return &Rule{Name: term.Intern(name), Arity: arity, Native: fn}
}

// NewDerived builds a clause-based rule.
func NewDerived(name term.Symbol, clauses ...Clause) *Rule {
	return &Rule{Name: name, Clauses: clauses}
}

func (r *Rule) IsNative() bool {
	return r.Native != nil
}

func (r *Rule) String() string {
	if r.IsNative() {
		return fmt.Sprintf("%s/%d native", r.Name, r.Arity)
	}
	return fmt.Sprintf("%s (%d clauses)", r.Name, len(r.Clauses))
}
