package fiber

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/danmuck/mantra/internal/observability"
	"github.com/danmuck/mantra/internal/rules"
	"github.com/danmuck/mantra/internal/term"
	"github.com/rs/zerolog/log"
)

var ErrNativeFault = errors.New("fiber: native rule fault")

// Status is the two-state result of a step.
type Status int

const (
	Active Status = iota
	Blocked
)

func (s Status) String() string {
	if s == Active {
		return "active"
	}
	return "blocked"
}

// Rules resolves a primary's symbol to its rule.
type Rules interface {
	Get(sym term.Symbol) (*rules.Rule, bool)
}

// Report summarizes one Evaluate call.
type Report struct {
	Delivered int
	Steps     int
	Compacted int
	Status    Status
}

// Fiber owns a tape of terms and a mailbox of pending messages.
type Fiber struct {
	name    term.Symbol
	mu      sync.RWMutex
	tape    []term.Term
	mailbox mailbox
}

func New(name string) *Fiber {
	return NewWithSymbol(term.Intern(name))
}

func NewWithSymbol(name term.Symbol) *Fiber {
	return &Fiber{
		name: name,
		tape: make([]term.Term, 0, 64),
	}
}

func (f *Fiber) Name() term.Symbol {
	return f.name
}

// Receive enqueues a private copy of msg. Safe for concurrent producers.
func (f *Fiber) Receive(msg []term.Term) {
	f.mailbox.push(term.CopyAll(msg))
}

// Pending is the number of undelivered messages.
func (f *Fiber) Pending() int {
	return f.mailbox.len()
}

// Flush appends every pending message to the tape in arrival order and
// returns how many were delivered.
func (f *Fiber) Flush() int {
	msgs := f.mailbox.drain()
	if len(msgs) == 0 {
		return 0
	}
	f.mu.Lock()
	for _, msg := range msgs {
		f.tape = append(f.tape, msg...)
	}
	f.mu.Unlock()
	return len(msgs)
}

// Snapshot returns a deep copy of the current tape.
func (f *Fiber) Snapshot() []term.Term {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return term.CopyAll(f.tape)
}

// Replace swaps the whole tape for a copy of ts.
func (f *Fiber) Replace(ts []term.Term) {
	cp := term.CopyAll(ts)
	f.mu.Lock()
	f.tape = cp
	f.mu.Unlock()
}

// Reset clears the tape. Pending messages are kept.
func (f *Fiber) Reset() {
	f.mu.Lock()
	clear(f.tape)
	f.tape = f.tape[:0]
	f.mu.Unlock()
}

func (f *Fiber) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.tape)
}

func (f *Fiber) String() string {
	return term.Format(f.Snapshot())
}

// Step performs one reduction. A native fault returns Blocked with an
// ErrNativeFault error and leaves the tape untouched.
func (f *Fiber) Step(rs Rules) (Status, error) {
	primary := f.lastLiteral()
	if primary < 0 {
		observability.RecordStep("blocked")
		return Blocked, nil
	}
	sym, _ := f.tape[primary].Symbol()
	rule, ok := rs.Get(sym)
	if !ok {
		observability.RecordStep("blocked")
		return Blocked, nil
	}

	args := f.tape[primary+1:]
	var result []term.Term
	consumed := 0
	if rule.IsNative() {
		if len(args) < rule.Arity {
			observability.RecordStep("blocked")
			return Blocked, nil
		}
		consumed = rule.Arity
		out, err := callNative(rule, term.CopyAll(args[:consumed]))
		if err != nil {
			observability.RecordStep("fault")
			log.Debug().Str("fiber", f.name.Name()).Err(err).Msg("fiber.Fiber.Step native fault")
			return Blocked, err
		}
		result = out
	} else {
		out, n, ok := applyClauses(rule.Clauses, args)
		if !ok {
			observability.RecordStep("blocked")
			return Blocked, nil
		}
		result, consumed = out, n
	}

	f.splice(primary, consumed, result)
	observability.RecordStep("active")
	return Active, nil
}

// Evaluate flushes the mailbox and steps until Blocked. With compact set the
// leading run of terms that can never be reduced again is discarded.
func (f *Fiber) Evaluate(rs Rules, compact bool) (Report, error) {
	rep := Report{Delivered: f.Flush(), Status: Blocked}
	for {
		st, err := f.Step(rs)
		if err != nil {
			return rep, err
		}
		if st == Blocked {
			break
		}
		rep.Steps++
	}
	if compact {
		rep.Compacted = f.Compact()
	}
	return rep, nil
}

// Compact drops every term left of the earliest literal, or the whole tape
// when no literal remains, and returns the number dropped.
func (f *Fiber) Compact() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	first := len(f.tape)
	for i, t := range f.tape {
		if t.IsLiteral() {
			first = i
			break
		}
	}
	if first == 0 {
		return 0
	}
	f.tape = slices.Delete(f.tape, 0, first)
	return first
}

func (f *Fiber) lastLiteral() int {
	for i := len(f.tape) - 1; i >= 0; i-- {
		if f.tape[i].IsLiteral() {
			return i
		}
	}
	return -1
}

func (f *Fiber) splice(at, consumed int, result []term.Term) {
	f.mu.Lock()
	f.tape = slices.Replace(f.tape, at, at+1+consumed, result...)
	f.mu.Unlock()
}

func callNative(r *rules.Rule, args []term.Term) (out []term.Term, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("%w: %s: panic: %v", ErrNativeFault, r.Name, rec)
		}
	}()
	out, err = r.Native(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNativeFault, r.Name, err)
	}
	return out, nil
}
