package term

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Kind tags the three term variants.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindLiteral
	KindNumber
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindNumber:
		return "number"
	case KindList:
		return "list"
	default:
		return "invalid"
	}
}

// Term is a literal symbol, a decimal number, or an ordered list of terms.
type Term struct {
	kind  Kind
	sym   Symbol
	num   decimal.Decimal
	items []Term
}

// Literal builds a literal term for an interned symbol.
func Literal(sym Symbol) Term {
	return Term{kind: KindLiteral, sym: sym}
}

// Lit interns name and builds a literal term for it.
func Lit(name string) Term {
	return Literal(Intern(name))
}

// Number builds a numeric term.
func Number(d decimal.Decimal) Term {
	return Term{kind: KindNumber, num: d}
}

// Int builds a numeric term from an integer.
func Int(v int64) Term {
	return Number(decimal.NewFromInt(v))
}

// List builds a list term. The list takes ownership of items.
func List(items ...Term) Term {
	if items == nil {
		items = []Term{}
	}
	return Term{kind: KindList, items: items}
}

// Quote wraps t in a one-element list.
func Quote(t Term) Term {
	return List(t)
}

func (t Term) Kind() Kind {
	return t.kind
}

func (t Term) IsLiteral() bool {
	return t.kind == KindLiteral
}

func (t Term) IsNumber() bool {
	return t.kind == KindNumber
}

func (t Term) IsList() bool {
	return t.kind == KindList
}

// Is reports whether t is the literal sym.
func (t Term) Is(sym Symbol) bool {
	return t.kind == KindLiteral && t.sym == sym
}

// Symbol returns the literal's symbol.
func (t Term) Symbol() (Symbol, bool) {
	if t.kind != KindLiteral {
		return 0, false
	}
	return t.sym, true
}

// Decimal returns the number's value.
func (t Term) Decimal() (decimal.Decimal, bool) {
	if t.kind != KindNumber {
		return decimal.Zero, false
	}
	return t.num, true
}

// Items returns the list's own items slice. Callers that keep or modify the
// result must Copy first.
func (t Term) Items() ([]Term, bool) {
	if t.kind != KindList {
		return nil, false
	}
	return t.items, true
}

// Len is the number of list items, zero for non-lists.
func (t Term) Len() int {
	return len(t.items)
}

// Copy returns a deep copy sharing no list storage with t.
func (t Term) Copy() Term {
	if t.kind != KindList {
		return t
	}
	return Term{kind: KindList, items: CopyAll(t.items)}
}

// CopyAll deep-copies a term sequence.
func CopyAll(ts []Term) []Term {
	out := make([]Term, len(ts))
	for i := range ts {
		out[i] = ts[i].Copy()
	}
	return out
}

// Equal is deep structural equality on symbol identity and numeric value.
func (t Term) Equal(o Term) bool {
	if t.kind != o.kind {
		return false
	}
	switch t.kind {
	case KindLiteral:
		return t.sym == o.sym
	case KindNumber:
		return t.num.Equal(o.num)
	case KindList:
		return EqualAll(t.items, o.items)
	default:
		return true
	}
}

// EqualAll compares two sequences element-wise.
func EqualAll(a, b []Term) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (t Term) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t Term) write(b *strings.Builder) {
	switch t.kind {
	case KindLiteral:
		b.WriteString(t.sym.Name())
	case KindNumber:
		b.WriteString(t.num.String())
	case KindList:
		b.WriteByte('[')
		for i, item := range t.items {
			if i > 0 {
				b.WriteByte(' ')
			}
			item.write(b)
		}
		b.WriteByte(']')
	default:
		b.WriteString("<invalid>")
	}
}

// Format renders a sequence space-separated, the way the REPL prints a tape.
func Format(ts []Term) string {
	var b strings.Builder
	for i, t := range ts {
		if i > 0 {
			b.WriteByte(' ')
		}
		t.write(&b)
	}
	return b.String()
}
