package extension

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"testing"

	"github.com/danmuck/mantra/internal/pool"
	"github.com/danmuck/mantra/internal/rules"
	"github.com/danmuck/mantra/internal/term"
	"github.com/danmuck/mantra/internal/testutil/testlog"
)

type fakeLib map[string]plugin.Symbol

func (f fakeLib) Lookup(name string) (plugin.Symbol, error) {
	sym, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("symbol %s not found", name)
	}
	return sym, nil
}

func opener(lib Library) Opener {
	return func(string) (Library, error) { return lib, nil }
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("not really elf"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func newHost(t *testing.T) (Host, *rules.RuleSet) {
	t.Helper()
	rs := rules.NewRuleSet()
	p, err := pool.New(rs, pool.Config{Workers: 1})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return NewHost(p, rs), rs
}

func twiceExtension(rs *rules.RuleSet) func(Host, bool) error {
	return func(h Host, hotReload bool) error {
		if !hotReload {
			return errors.New("expected hot reload")
		}
		m := rules.NewModule("twice")
		err := m.Register(rules.NewNative("twice", 1, func(args []term.Term) ([]term.Term, error) {
			return []term.Term{args[0], args[0].Copy()}, nil
		}))
		if err != nil {
			return err
		}
		return h.Rules().Register(m, true)
	}
}

func TestLoadRegistersRules(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	touch(t, dir, "twice.so")
	host, rs := newHost(t)

	version := ABIVersion
	lib := fakeLib{
		SymbolABIVersion: &version,
		SymbolExtend:     twiceExtension(rs),
	}
	l := NewLoader(host, []string{dir}, WithOpener(opener(lib)))
	if err := l.Load("twice"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := rs.Get(term.Intern("twice")); !ok {
		t.Fatalf("extension rule not registered")
	}
	loaded := l.Loaded()
	if len(loaded) != 1 || loaded[0].Name != "twice" || loaded[0].Path != filepath.Join(dir, "twice.so") {
		t.Fatalf("unexpected loaded list %+v", loaded)
	}
}

func TestLoadFailures(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	touch(t, dir, "ext.so")
	host, rs := newHost(t)
	good := ABIVersion
	bad := ABIVersion + 1

	cases := []struct {
		name string
		lib  fakeLib
		want error
	}{
		{"no version", fakeLib{SymbolExtend: twiceExtension(rs)}, ErrMissingEntryPoint},
		{"wrong version", fakeLib{SymbolABIVersion: &bad, SymbolExtend: twiceExtension(rs)}, ErrABIVersion},
		{"no entry", fakeLib{SymbolABIVersion: &good}, ErrMissingEntryPoint},
		{"wrong signature", fakeLib{SymbolABIVersion: &good, SymbolExtend: func() {}}, ErrMissingEntryPoint},
		{"entry fails", fakeLib{SymbolABIVersion: &good, SymbolExtend: func(Host, bool) error { return errors.New("nope") }}, ErrExtendFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLoader(host, []string{dir}, WithOpener(opener(tc.lib)))
			if err := l.Load("ext"); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(l.Loaded()) != 0 {
				t.Fatalf("failed load should not be recorded")
			}
		})
	}
}

func TestResolve(t *testing.T) {
	testlog.Start(t)
	first, second := t.TempDir(), t.TempDir()
	touch(t, second, "a.so")
	touch(t, first, "b.plugin")
	host, _ := newHost(t)
	l := NewLoader(host, []string{first, second})

	got, err := l.Resolve("a")
	if err != nil || got != filepath.Join(second, "a.so") {
		t.Fatalf("expected a.so in second dir, got %q err=%v", got, err)
	}
	got, err = l.Resolve("b.plugin")
	if err != nil || got != filepath.Join(first, "b.plugin") {
		t.Fatalf("explicit extension should be kept, got %q err=%v", got, err)
	}
	abs := touch(t, first, "c.so")
	if got, err := l.Resolve(abs); err != nil || got != abs {
		t.Fatalf("absolute path should resolve to itself, got %q err=%v", got, err)
	}
	if _, err := l.Resolve("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := l.Resolve(" "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty name, got %v", err)
	}
}
