package core

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/mantra/internal/fiber"
	"github.com/danmuck/mantra/internal/rules"
	"github.com/danmuck/mantra/internal/term"
)

const ModuleName = "core"

var (
	ErrTypeMismatch   = errors.New("core: type mismatch")
	ErrDivisionByZero = errors.New("core: division by zero")
	ErrUnknownFiber   = errors.New("core: unknown fiber")
	ErrEmptyList      = errors.New("core: empty list")
)

// Mailer is the slice of the fiber pool the messaging natives need.
type Mailer interface {
	Send(name term.Symbol, msg []term.Term) error
	Snapshot(name term.Symbol) ([]term.Term, error)
}

type natives struct {
	mail  Mailer
	rules fiber.Rules
	trace io.Writer
}

// NewModule builds the core module. trace receives the output of the trace
// native; nil discards it.
func NewModule(mail Mailer, rs fiber.Rules, trace io.Writer) *rules.Module {
	if trace == nil {
		trace = io.Discard
	}
	n := &natives{mail: mail, rules: rs, trace: trace}
	m := rules.NewModule(ModuleName)
	for _, r := range n.table() {
		if err := m.Register(r); err != nil {
			// names in the table are unique
			panic(err)
		}
	}
	return m
}

func (n *natives) table() []*rules.Rule {
	return []*rules.Rule{
		rules.NewNative("+", 2, arithmetic(add)),
		rules.NewNative("-", 2, arithmetic(sub)),
		rules.NewNative("*", 2, arithmetic(mul)),
		rules.NewNative("/", 2, arithmetic(div)),

		rules.NewNative("=", 2, equals(true)),
		rules.NewNative("!=", 2, equals(false)),
		rules.NewNative(">", 2, compare(func(c int) bool { return c > 0 })),
		rules.NewNative("<", 2, compare(func(c int) bool { return c < 0 })),
		rules.NewNative(">=", 2, compare(func(c int) bool { return c >= 0 })),
		rules.NewNative("<=", 2, compare(func(c int) bool { return c <= 0 })),

		rules.NewNative("cat", 2, cat),
		rules.NewNative("cons", 2, cons),
		rules.NewNative("unquote", 1, unquote),
		rules.NewNative("copy", 1, duplicate),
		rules.NewNative("choose", 3, choose),
		rules.NewNative("head", 1, head),

		rules.NewNative("pass", 2, n.send),
		rules.NewNative("send", 2, n.send),
		rules.NewNative("showFiber", 1, n.showFiber),
		rules.NewNative("trace", 1, n.traceTerm),
		rules.NewNative("do", 1, n.do),
	}
}

func truth(ok bool) []term.Term {
	if ok {
		return []term.Term{term.Quote(term.Literal(term.True))}
	}
	return []term.Term{term.List()}
}

func mismatch(want string, got term.Term) error {
	return fmt.Errorf("%w: want %s, got %s %s", ErrTypeMismatch, want, got.Kind(), got)
}

// fiberName accepts a quoted name [name] or a bare literal.
func fiberName(t term.Term) (term.Symbol, error) {
	if sym, ok := t.Symbol(); ok {
		return sym, nil
	}
	if items, ok := t.Items(); ok && len(items) > 0 {
		if sym, ok := items[0].Symbol(); ok {
			return sym, nil
		}
	}
	return 0, mismatch("fiber name", t)
}

func (n *natives) send(args []term.Term) ([]term.Term, error) {
	name, err := fiberName(args[0])
	if err != nil {
		return nil, err
	}
	msg, ok := args[1].Items()
	if !ok {
		msg = args[1:2]
	}
	if err := n.mail.Send(name, msg); err != nil {
		return nil, err
	}
	return nil, nil
}

func (n *natives) showFiber(args []term.Term) ([]term.Term, error) {
	name, err := fiberName(args[0])
	if err != nil {
		return nil, err
	}
	tape, err := n.mail.Snapshot(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnknownFiber, name, err)
	}
	return []term.Term{term.List(tape...)}, nil
}

func (n *natives) traceTerm(args []term.Term) ([]term.Term, error) {
	if _, err := fmt.Fprintln(n.trace, args[0].String()); err != nil {
		return nil, err
	}
	return nil, nil
}

// do runs a quoted sequence to its blocked fixpoint on a scratch fiber.
func (n *natives) do(args []term.Term) ([]term.Term, error) {
	items, ok := args[0].Items()
	if !ok {
		return nil, mismatch("list", args[0])
	}
	scratch := fiber.New("do")
	scratch.Replace(items)
	if _, err := scratch.Evaluate(n.rules, false); err != nil {
		return nil, err
	}
	return []term.Term{term.List(scratch.Snapshot()...)}, nil
}
