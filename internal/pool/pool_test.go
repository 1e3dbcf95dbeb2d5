package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/mantra/internal/fiber"
	"github.com/danmuck/mantra/internal/rules"
	"github.com/danmuck/mantra/internal/term"
	"github.com/danmuck/mantra/internal/testutil/testlog"
)

func counterRules(t *testing.T, extra ...*rules.Rule) *rules.RuleSet {
	t.Helper()
	m := rules.NewModule("counter")
	plus := rules.NewNative("+", 2, func(args []term.Term) ([]term.Term, error) {
		a, ok := args[0].Decimal()
		if !ok {
			return nil, fmt.Errorf("not a number: %s", args[0])
		}
		b, ok := args[1].Decimal()
		if !ok {
			return nil, fmt.Errorf("not a number: %s", args[1])
		}
		return []term.Term{term.Number(a.Add(b))}, nil
	})
	sum := rules.NewDerived(term.Intern("sum"), rules.Clause{
		Pattern: []term.Term{term.Lit("a"), term.Lit("b")},
		Body:    []term.Term{term.Lit("sum"), term.Lit("+"), term.Lit("a"), term.Lit("b")},
	})
	for _, r := range append([]*rules.Rule{plus, sum}, extra...) {
		if err := m.Register(r); err != nil {
			t.Fatalf("register %s: %v", r, err)
		}
	}
	rs := rules.NewRuleSet()
	if err := rs.Register(m, true); err != nil {
		t.Fatalf("register module: %v", err)
	}
	return rs
}

func startPool(t *testing.T, rs fiber.Rules, workers int) *Pool {
	t.Helper()
	p, err := New(rs, Config{Workers: workers})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func quiesce(t *testing.T, p *Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Quiesce(ctx); err != nil {
		t.Fatalf("quiesce: %v", err)
	}
}

func TestNewRejectsInvalidWorkers(t *testing.T) {
	testlog.Start(t)
	if _, err := New(rules.NewRuleSet(), Config{}); !errors.Is(err, ErrInvalidWorkers) {
		t.Fatalf("expected ErrInvalidWorkers, got %v", err)
	}
}

func TestSendCreatesUnknownFiber(t *testing.T) {
	testlog.Start(t)
	p := startPool(t, counterRules(t), 2)
	name := term.Intern("fresh")
	if _, ok := p.Fiber(name); ok {
		t.Fatalf("fiber should not exist yet")
	}
	if err := p.Send(name, []term.Term{term.Lit("+"), term.Int(1), term.Int(2)}); err != nil {
		t.Fatalf("send: %v", err)
	}
	quiesce(t, p)
	got, err := p.Snapshot(name)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !term.EqualAll(got, []term.Term{term.Int(3)}) {
		t.Fatalf("expected 3, got %s", term.Format(got))
	}
}

func TestRegisterRoundRobinAndDuplicates(t *testing.T) {
	testlog.Start(t)
	p, err := New(rules.NewRuleSet(), Config{Workers: 2})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer p.Close()

	for i, name := range []string{"w0", "w1", "w2", "w3"} {
		if err := p.Register(fiber.New(name)); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
		w, ok := p.WorkerOf(term.Intern(name))
		if !ok || w != i%2 {
			t.Fatalf("fiber %s on worker %d, want %d", name, w, i%2)
		}
	}
	if err := p.Register(fiber.New("w0")); !errors.Is(err, ErrFiberExists) {
		t.Fatalf("expected ErrFiberExists, got %v", err)
	}
	names := p.Names()
	if len(names) != 4 || names[0] != "w0" || names[3] != "w3" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	testlog.Start(t)
	p, err := New(rules.NewRuleSet(), Config{Workers: 1})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.SendNamed("late", nil); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed on start, got %v", err)
	}
}

func TestSnapshotUnknownFiber(t *testing.T) {
	testlog.Start(t)
	p := startPool(t, rules.NewRuleSet(), 1)
	if _, err := p.Snapshot(term.Intern("nobody")); !errors.Is(err, ErrUnknownFiber) {
		t.Fatalf("expected ErrUnknownFiber, got %v", err)
	}
}

func TestConcurrentSendersKeepTapesConsistent(t *testing.T) {
	testlog.Start(t)
	const (
		fibers  = 8
		senders = 4
		perSend = 50
	)
	p := startPool(t, counterRules(t), 2)

	names := make([]term.Symbol, fibers)
	for i := range names {
		f := fiber.New(fmt.Sprintf("counter-%d", i))
		f.Replace([]term.Term{term.Lit("sum"), term.Int(0)})
		if err := p.Register(f); err != nil {
			t.Fatalf("register: %v", err)
		}
		names[i] = f.Name()
	}

	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perSend; i++ {
				for _, name := range names {
					if err := p.Send(name, []term.Term{term.Int(1)}); err != nil {
						t.Errorf("send: %v", err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	quiesce(t, p)

	want := []term.Term{term.Lit("sum"), term.Int(senders * perSend)}
	for _, name := range names {
		got, err := p.Snapshot(name)
		if err != nil {
			t.Fatalf("snapshot %s: %v", name, err)
		}
		if !term.EqualAll(got, want) {
			t.Fatalf("fiber %s: expected %s, got %s", name, term.Format(want), term.Format(got))
		}
	}
}

func TestNativeSendFromWorker(t *testing.T) {
	testlog.Start(t)
	var p *Pool
	fwd := rules.NewNative("fwd", 1, func(args []term.Term) ([]term.Term, error) {
		return nil, p.SendNamed("sink", []term.Term{term.Lit("+"), args[0], term.Int(10)})
	})
	p = startPool(t, counterRules(t, fwd), 3)

	if err := p.SendNamed("source", []term.Term{term.Lit("fwd"), term.Int(5)}); err != nil {
		t.Fatalf("send: %v", err)
	}
	quiesce(t, p)
	src, _ := p.Snapshot(term.Intern("source"))
	if len(src) != 0 {
		t.Fatalf("expected empty source tape, got %s", term.Format(src))
	}
	sink, err := p.Snapshot(term.Intern("sink"))
	if err != nil {
		t.Fatalf("snapshot sink: %v", err)
	}
	if !term.EqualAll(sink, []term.Term{term.Int(15)}) {
		t.Fatalf("expected 15, got %s", term.Format(sink))
	}
}

func TestFaultingFiberDoesNotStopWorker(t *testing.T) {
	testlog.Start(t)
	p := startPool(t, counterRules(t), 1)
	if err := p.SendNamed("bad", []term.Term{term.Lit("+"), term.Lit("x"), term.Int(1)}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := p.SendNamed("good", []term.Term{term.Lit("+"), term.Int(2), term.Int(2)}); err != nil {
		t.Fatalf("send: %v", err)
	}
	quiesce(t, p)
	bad, _ := p.Snapshot(term.Intern("bad"))
	if len(bad) != 3 {
		t.Fatalf("faulted tape should be unchanged, got %s", term.Format(bad))
	}
	good, _ := p.Snapshot(term.Intern("good"))
	if !term.EqualAll(good, []term.Term{term.Int(4)}) {
		t.Fatalf("expected 4, got %s", term.Format(good))
	}
}

func TestQuiesceHonorsContext(t *testing.T) {
	testlog.Start(t)
	p, err := New(rules.NewRuleSet(), Config{Workers: 1})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer p.Close()
	// not started, so the message stays undelivered
	if err := p.SendNamed("idle", []term.Term{term.Int(1)}); err != nil {
		t.Fatalf("send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Quiesce(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
