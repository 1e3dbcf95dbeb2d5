// Command textops is an extension providing string natives. Build with
//
//	go build -buildmode=plugin -o extensions/textops.so ./extensions/textops
//
// then load it from the REPL with "#extend textops".
package main

import (
	"fmt"
	"strings"

	"github.com/danmuck/mantra/internal/extension"
	"github.com/danmuck/mantra/internal/rules"
	"github.com/danmuck/mantra/internal/term"
)

const moduleName = "textops"

var MantraABIVersion = extension.ABIVersion

// Extend registers the textops module. A reload replaces it in place.
func Extend(host extension.Host, hotReload bool) error {
	return host.Rules().Register(Module(), true)
}

func Module() *rules.Module {
	m := rules.NewModule(moduleName)
	for _, r := range []*rules.Rule{
		rules.NewNative("chars", 1, chars),
		rules.NewNative("join", 2, join),
	} {
		if err := m.Register(r); err != nil {
			panic(err)
		}
	}
	return m
}

// chars [hello] -> [h e l l o]
func chars(args []term.Term) ([]term.Term, error) {
	word, err := text(args[0])
	if err != nil {
		return nil, err
	}
	items := make([]term.Term, 0, len(word))
	for _, r := range word {
		items = append(items, term.Lit(string(r)))
	}
	return []term.Term{term.List(items...)}, nil
}

// join [sep] [a b c] -> [asepbsepc]
func join(args []term.Term) ([]term.Term, error) {
	sep, err := text(args[0])
	if err != nil {
		return nil, err
	}
	items, ok := args[1].Items()
	if !ok {
		return nil, fmt.Errorf("join: want list, got %s", args[1])
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		s, err := text(it)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	return []term.Term{term.Quote(term.Lit(strings.Join(parts, sep)))}, nil
}

// text reads a quoted word [w], a bare literal, a number, or a character list.
func text(t term.Term) (string, error) {
	switch t.Kind() {
	case term.KindLiteral:
		sym, _ := t.Symbol()
		return sym.Name(), nil
	case term.KindNumber:
		d, _ := t.Decimal()
		return d.String(), nil
	case term.KindList:
		items, _ := t.Items()
		var b strings.Builder
		for _, it := range items {
			s, err := text(it)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("textops: unsupported term %s", t)
}

func main() {}
