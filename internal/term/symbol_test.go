package term

import (
	"fmt"
	"sync"
	"testing"

	"github.com/danmuck/mantra/internal/testutil/testlog"
)

func TestInternIdempotent(t *testing.T) {
	testlog.Start(t)
	a := Intern("symbol.test.alpha")
	b := Intern("symbol.test.alpha")
	if a != b {
		t.Fatalf("intern not idempotent: %d != %d", a, b)
	}
	if Intern("symbol.test.beta") == a {
		t.Fatalf("distinct names must get distinct ids")
	}
	name, ok := Resolve(a)
	if !ok || name != "symbol.test.alpha" {
		t.Fatalf("resolve failed: %q ok=%v", name, ok)
	}
}

func TestResolveUnknown(t *testing.T) {
	testlog.Start(t)
	if _, ok := Resolve(Symbol(1 << 30)); ok {
		t.Fatalf("expected unknown id to fail")
	}
	if Symbol(1<<30).Name() != "<noname>" {
		t.Fatalf("unexpected name for unknown id")
	}
}

func TestInternConcurrent(t *testing.T) {
	testlog.Start(t)
	const workers = 16
	const names = 64
	results := make([][]Symbol, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids := make([]Symbol, names)
			for i := 0; i < names; i++ {
				ids[i] = Intern(fmt.Sprintf("symbol.concurrent.%d", i))
			}
			results[w] = ids
		}(w)
	}
	wg.Wait()
	for w := 1; w < workers; w++ {
		for i := 0; i < names; i++ {
			if results[w][i] != results[0][i] {
				t.Fatalf("worker %d name %d got id %d want %d", w, i, results[w][i], results[0][i])
			}
		}
	}
	for i := 0; i < names; i++ {
		if results[0][i].Name() != fmt.Sprintf("symbol.concurrent.%d", i) {
			t.Fatalf("id %d resolves to %q", results[0][i], results[0][i].Name())
		}
	}
}

func TestLookupDoesNotIntern(t *testing.T) {
	testlog.Start(t)
	const name = "symbol.test.lookup-only"
	if _, ok := Lookup(name); ok {
		t.Fatalf("name should not be interned yet")
	}
	if _, ok := Lookup(name); ok {
		t.Fatalf("a failed lookup must not intern the name")
	}
	id := Intern(name)
	got, ok := Lookup(name)
	if !ok || got != id {
		t.Fatalf("expected %d after intern, got %d ok=%v", id, got, ok)
	}
}
