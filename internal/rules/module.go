package rules

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/mantra/internal/term"
)

var (
	ErrDuplicateRuleDefinition = errors.New("rules: duplicate rule definition")
	ErrNilRule                 = errors.New("rules: rule is nil")
	ErrModuleSealed            = errors.New("rules: module sealed")
)

// Module groups rules by symbol.
type Module struct {
	name   string
	mu     sync.RWMutex
	rules  map[term.Symbol]*Rule
	order  []term.Symbol
	sealed bool
}

func NewModule(name string) *Module {
	return &Module{
		name:  name,
		rules: make(map[term.Symbol]*Rule),
	}
}

func (m *Module) Name() string {
	return m.name
}

// Register adds r. Derived rules under an existing derived symbol append their
// clauses; any pairing that involves a native rule is a conflict.
func (m *Module) Register(r *Rule) error {
	if r == nil {
		return ErrNilRule
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sealed {
		return fmt.Errorf("%w: %s", ErrModuleSealed, m.name)
	}

	existing, ok := m.rules[r.Name]
	if !ok {
		stored := *r
		stored.Clauses = append([]Clause(nil), r.Clauses...)
		m.rules[r.Name] = &stored
		m.order = append(m.order, r.Name)
		return nil
	}
	if existing.IsNative() || r.IsNative() {
		return fmt.Errorf("%w: %s in module %s", ErrDuplicateRuleDefinition, r.Name, m.name)
	}
	existing.Clauses = append(existing.Clauses, r.Clauses...)
	return nil
}

// AddClause appends one clause to the derived rule named sym.
func (m *Module) AddClause(sym term.Symbol, c Clause) error {
	return m.Register(NewDerived(sym, c))
}

func (m *Module) Get(sym term.Symbol) (*Rule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[sym]
	return r, ok
}

// Rules returns rules in first-registration order.
func (m *Module) Rules() []*Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Rule, 0, len(m.order))
	for _, sym := range m.order {
		out = append(out, m.rules[sym])
	}
	return out
}

func (m *Module) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

func (m *Module) seal() {
	m.mu.Lock()
	m.sealed = true
	m.mu.Unlock()
}
