package rules

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/mantra/internal/observability"
	"github.com/danmuck/mantra/internal/term"
	"github.com/rs/zerolog/log"
)

var (
	ErrNilModule      = errors.New("rules: module is nil")
	ErrModuleNotFound = errors.New("rules: module not found")
)

type moduleEntry struct {
	module *Module
	active bool
}

// ModuleInfo is a read-only view of one registered module.
type ModuleInfo struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Rules  int    `json:"rules"`
}

// CacheStats reports lookup cache diagnostics.
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
	Reloads uint64 `json:"reloads"`
}

// RuleSet is an ordered module collection with a memoized symbol lookup.
// Earlier modules shadow later ones. The cache, including negative entries,
// is dropped on every registration event under the same lock that guards the
// module list, so a lookup never mixes old cache state with new modules.
type RuleSet struct {
	mu      sync.RWMutex
	modules []moduleEntry
	cache   map[term.Symbol]*Rule

	hits    atomic.Uint64
	misses  atomic.Uint64
	reloads atomic.Uint64
}

func NewRuleSet() *RuleSet {
	return &RuleSet{cache: make(map[term.Symbol]*Rule)}
}

// Register adds m, or replaces the module with the same name in place.
func (rs *RuleSet) Register(m *Module, active bool) error {
	if m == nil {
		return ErrNilModule
	}
	m.seal()

	rs.mu.Lock()
	defer rs.mu.Unlock()
	reload := false
	for i := range rs.modules {
		if rs.modules[i].module.Name() == m.Name() {
			rs.modules[i] = moduleEntry{module: m, active: active}
			reload = true
			break
		}
	}
	if !reload {
		rs.modules = append(rs.modules, moduleEntry{module: m, active: active})
	}
	rs.invalidateLocked()

	observability.RecordModuleRegistration(reload)
	if reload {
		rs.reloads.Add(1)
		log.Info().Str("module", m.Name()).Int("rules", m.Len()).Msg("rules.RuleSet.Register reload")
	} else {
		log.Info().Str("module", m.Name()).Int("rules", m.Len()).Bool("active", active).Msg("rules.RuleSet.Register")
	}
	return nil
}

// SetActive toggles whether a registered module takes part in lookups.
func (rs *RuleSet) SetActive(name string, active bool) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i := range rs.modules {
		if rs.modules[i].module.Name() == name {
			rs.modules[i].active = active
			rs.invalidateLocked()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrModuleNotFound, name)
}

// Get resolves sym to the first matching rule among active modules.
func (rs *RuleSet) Get(sym term.Symbol) (*Rule, bool) {
	rs.mu.RLock()
	rule, cached := rs.cache[sym]
	rs.mu.RUnlock()
	if cached {
		rs.hits.Add(1)
		observability.RecordRuleLookup(true)
		return rule, rule != nil
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rule, cached := rs.cache[sym]; cached {
		rs.hits.Add(1)
		observability.RecordRuleLookup(true)
		return rule, rule != nil
	}
	rs.misses.Add(1)
	observability.RecordRuleLookup(false)
	rule = nil
	for _, entry := range rs.modules {
		if !entry.active {
			continue
		}
		if r, ok := entry.module.Get(sym); ok {
			rule = r
			break
		}
	}
	rs.cache[sym] = rule
	return rule, rule != nil
}

// Module returns the registered module called name.
func (rs *RuleSet) Module(name string) (*Module, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	for _, entry := range rs.modules {
		if entry.module.Name() == name {
			return entry.module, true
		}
	}
	return nil, false
}

// Modules lists registered modules in shadowing order.
func (rs *RuleSet) Modules() []ModuleInfo {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]ModuleInfo, 0, len(rs.modules))
	for _, entry := range rs.modules {
		out = append(out, ModuleInfo{
			Name:   entry.module.Name(),
			Active: entry.active,
			Rules:  entry.module.Len(),
		})
	}
	return out
}

func (rs *RuleSet) Stats() CacheStats {
	rs.mu.RLock()
	entries := len(rs.cache)
	rs.mu.RUnlock()
	return CacheStats{
		Hits:    rs.hits.Load(),
		Misses:  rs.misses.Load(),
		Entries: entries,
		Reloads: rs.reloads.Load(),
	}
}

func (rs *RuleSet) invalidateLocked() {
	if len(rs.cache) > 0 {
		log.Debug().Int("entries", len(rs.cache)).Msg("rules.RuleSet cache invalidated")
	}
	rs.cache = make(map[term.Symbol]*Rule)
}
