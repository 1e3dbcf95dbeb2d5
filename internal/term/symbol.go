package term

import "sync"

// Symbol is an interned name id. Once assigned an id is never reused or removed.
type Symbol uint32

type symbolTable struct {
	mu    sync.RWMutex
	ids   map[string]Symbol
	names []string
}

var symbols = &symbolTable{
	ids:   make(map[string]Symbol),
	names: make([]string, 0, 256),
}

// Well-known symbols used by the matcher and the core module.
var (
	Wildcard = Intern("_")
	Rest     = Intern("..")
	True     = Intern("true")
)

// Intern returns the id for name, assigning a new one on first use.
func Intern(name string) Symbol {
	symbols.mu.RLock()
	id, ok := symbols.ids[name]
	symbols.mu.RUnlock()
	if ok {
		return id
	}

	symbols.mu.Lock()
	defer symbols.mu.Unlock()
	if id, ok := symbols.ids[name]; ok {
		return id
	}
	id = Symbol(len(symbols.names))
	symbols.names = append(symbols.names, name)
	symbols.ids[name] = id
	return id
}

// Lookup returns the id for name without interning it.
func Lookup(name string) (Symbol, bool) {
	symbols.mu.RLock()
	defer symbols.mu.RUnlock()
	id, ok := symbols.ids[name]
	return id, ok
}

// Resolve returns the name bound to id.
func Resolve(id Symbol) (string, bool) {
	symbols.mu.RLock()
	defer symbols.mu.RUnlock()
	if int(id) >= len(symbols.names) {
		return "", false
	}
	return symbols.names[id], true
}

// Name returns the interned name, or "<noname>" for an unassigned id.
func (s Symbol) Name() string {
	name, ok := Resolve(s)
	if !ok {
		return "<noname>"
	}
	return name
}

func (s Symbol) String() string {
	return s.Name()
}
