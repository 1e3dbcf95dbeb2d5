package pool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/mantra/internal/fiber"
	"github.com/danmuck/mantra/internal/observability"
	"github.com/danmuck/mantra/internal/term"
	"github.com/rs/zerolog/log"
)

var (
	ErrPoolClosed     = errors.New("pool: closed")
	ErrPoolStarted    = errors.New("pool: already started")
	ErrFiberExists    = errors.New("pool: fiber already registered")
	ErrUnknownFiber   = errors.New("pool: unknown fiber")
	ErrInvalidWorkers = errors.New("pool: workers must be positive")
)

const quiescePoll = time.Millisecond

type Config struct {
	Workers int
	// Compact tapes after every pass. Snapshots then show only the live
	// suffix, so fully reduced values are dropped.
	Compact bool
}

// FiberInfo is a read-only view of one registered fiber.
type FiberInfo struct {
	Name   string      `json:"name"`
	Worker int         `json:"worker"`
	Tape   []term.Term `json:"-"`
}

type entry struct {
	fiber  *fiber.Fiber
	worker *worker
}

// Pool is a registry of named fibers plus the workers that evaluate them.
type Pool struct {
	rules   fiber.Rules
	compact bool
	workers []*worker

	mu     sync.RWMutex
	fibers map[term.Symbol]entry
	next   int

	// undelivered messages plus passes in flight
	active atomic.Int64

	started atomic.Bool
	closed  atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(rs fiber.Rules, cfg Config) (*Pool, error) {
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, cfg.Workers)
	}
	p := &Pool{
		rules:   rs,
		compact: cfg.Compact,
		workers: make([]*worker, cfg.Workers),
		fibers:  make(map[term.Symbol]entry),
	}
	for i := range p.workers {
		p.workers[i] = newWorker(i)
	}
	return p, nil
}

// Start launches one goroutine per worker. Work queued before Start is
// picked up immediately.
func (p *Pool) Start(ctx context.Context) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	if !p.started.CompareAndSwap(false, true) {
		return ErrPoolStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for _, w := range p.workers {
		p.wg.Add(1)
		go p.run(ctx, w)
		w.signal()
	}
	log.Info().Int("workers", len(p.workers)).Msg("pool.Pool.Start")
	return nil
}

// Close stops the workers and waits for in-flight passes to finish.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	log.Info().Msg("pool.Pool.Close")
	return nil
}

func (p *Pool) Workers() int {
	return len(p.workers)
}

// Register pins f to the next worker in round-robin order and schedules an
// initial evaluation of its tape.
func (p *Pool) Register(f *fiber.Fiber) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.mu.Lock()
	if _, ok := p.fibers[f.Name()]; ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFiberExists, f.Name())
	}
	w := p.assignLocked(f)
	p.mu.Unlock()

	p.deliver(f, w, nil)
	return nil
}

// Send enqueues msg for the named fiber, creating the fiber on first use, and
// marks its worker dirty. Safe to call from any goroutine, including natives
// running on a worker.
func (p *Pool) Send(name term.Symbol, msg []term.Term) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	e := p.lookupOrCreate(name)
	p.deliver(e.fiber, e.worker, msg)
	observability.RecordSend()
	return nil
}

func (p *Pool) SendNamed(name string, msg []term.Term) error {
	return p.Send(term.Intern(name), msg)
}

func (p *Pool) Fiber(name term.Symbol) (*fiber.Fiber, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.fibers[name]
	return e.fiber, ok
}

// Snapshot returns a copy of the named fiber's tape.
func (p *Pool) Snapshot(name term.Symbol) ([]term.Term, error) {
	f, ok := p.Fiber(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFiber, name)
	}
	return f.Snapshot(), nil
}

func (p *Pool) WorkerOf(name term.Symbol) (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.fibers[name]
	if !ok {
		return 0, false
	}
	return e.worker.id, true
}

// Names lists registered fiber names, sorted.
func (p *Pool) Names() []string {
	p.mu.RLock()
	names := make([]string, 0, len(p.fibers))
	for sym := range p.fibers {
		names = append(names, sym.Name())
	}
	p.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Fibers lists every fiber with its worker and a tape snapshot, sorted by name.
func (p *Pool) Fibers() []FiberInfo {
	p.mu.RLock()
	out := make([]FiberInfo, 0, len(p.fibers))
	for sym, e := range p.fibers {
		out = append(out, FiberInfo{Name: sym.Name(), Worker: e.worker.id, Tape: e.fiber.Snapshot()})
	}
	p.mu.RUnlock()
	slices.SortFunc(out, func(a, b FiberInfo) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// Quiesce blocks until every sent message has been delivered and no pass is
// running, or ctx ends.
func (p *Pool) Quiesce(ctx context.Context) error {
	ticker := time.NewTicker(quiescePoll)
	defer ticker.Stop()
	for {
		if p.active.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Pool) lookupOrCreate(name term.Symbol) entry {
	p.mu.RLock()
	e, ok := p.fibers[name]
	p.mu.RUnlock()
	if ok {
		return e
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.fibers[name]; ok {
		return e
	}
	f := fiber.NewWithSymbol(name)
	w := p.assignLocked(f)
	return entry{fiber: f, worker: w}
}

func (p *Pool) assignLocked(f *fiber.Fiber) *worker {
	w := p.workers[p.next%len(p.workers)]
	p.next++
	p.fibers[f.Name()] = entry{fiber: f, worker: w}
	w.add(f)
	observability.SetFiberCount(len(p.fibers))
	log.Debug().Str("fiber", f.Name().Name()).Int("worker", w.id).Msg("pool.Pool.assign")
	return w
}

// deliver counts the message before it becomes visible so Quiesce never sees
// zero while it is pending.
func (p *Pool) deliver(f *fiber.Fiber, w *worker, msg []term.Term) {
	p.active.Add(1)
	f.Receive(msg)
	w.signal()
}

func (p *Pool) run(ctx context.Context, w *worker) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
			p.pass(w)
		}
	}
}

// pass evaluates every fiber owned by w to a blocked fixpoint.
func (p *Pool) pass(w *worker) {
	p.active.Add(1)
	defer p.active.Add(-1)
	start := time.Now()
	for _, f := range w.owned() {
		rep, err := f.Evaluate(p.rules, p.compact)
		p.active.Add(-int64(rep.Delivered))
		if err != nil {
			log.Warn().
				Str("fiber", f.Name().Name()).
				Int("worker", w.id).
				Err(err).
				Msg("pool.Pool.pass native fault")
		}
	}
	observability.RecordPass(w.id, time.Since(start))
}
