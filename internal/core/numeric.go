package core

import (
	"github.com/danmuck/mantra/internal/rules"
	"github.com/danmuck/mantra/internal/term"
	"github.com/shopspring/decimal"
)

type binaryOp func(a, b decimal.Decimal) (decimal.Decimal, error)

func add(a, b decimal.Decimal) (decimal.Decimal, error) { return a.Add(b), nil }
func sub(a, b decimal.Decimal) (decimal.Decimal, error) { return a.Sub(b), nil }
func mul(a, b decimal.Decimal) (decimal.Decimal, error) { return a.Mul(b), nil }

// div rounds to decimal.DivisionPrecision fractional digits.
func div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	return a.Div(b), nil
}

func operands(args []term.Term) (decimal.Decimal, decimal.Decimal, error) {
	a, ok := args[0].Decimal()
	if !ok {
		return decimal.Zero, decimal.Zero, mismatch("number", args[0])
	}
	b, ok := args[1].Decimal()
	if !ok {
		return decimal.Zero, decimal.Zero, mismatch("number", args[1])
	}
	return a, b, nil
}

func arithmetic(op binaryOp) rules.NativeFunc {
	return func(args []term.Term) ([]term.Term, error) {
		a, b, err := operands(args)
		if err != nil {
			return nil, err
		}
		v, err := op(a, b)
		if err != nil {
			return nil, err
		}
		return []term.Term{term.Number(v)}, nil
	}
}

func compare(ok func(cmp int) bool) rules.NativeFunc {
	return func(args []term.Term) ([]term.Term, error) {
		a, b, err := operands(args)
		if err != nil {
			return nil, err
		}
		return truth(ok(a.Cmp(b))), nil
	}
}

func equals(want bool) rules.NativeFunc {
	return func(args []term.Term) ([]term.Term, error) {
		return truth(args[0].Equal(args[1]) == want), nil
	}
}
