package extension

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/mantra/internal/pool"
	"github.com/danmuck/mantra/internal/rules"
	"github.com/rs/zerolog/log"
)

// ABIVersion must match the provider's exported MantraABIVersion.
const ABIVersion = 1

const (
	SymbolABIVersion = "MantraABIVersion"
	SymbolExtend     = "Extend"
	LibraryExt       = ".so"
)

var (
	ErrNotFound          = errors.New("extension: library not found")
	ErrMissingEntryPoint = errors.New("extension: missing entry point")
	ErrABIVersion        = errors.New("extension: abi version mismatch")
	ErrExtendFailed      = errors.New("extension: entry point failed")
)

// Host is what a provider may touch.
type Host interface {
	Pool() *pool.Pool
	Rules() *rules.RuleSet
}

type host struct {
	pool  *pool.Pool
	rules *rules.RuleSet
}

func NewHost(p *pool.Pool, rs *rules.RuleSet) Host {
	return host{pool: p, rules: rs}
}

func (h host) Pool() *pool.Pool      { return h.pool }
func (h host) Rules() *rules.RuleSet { return h.rules }

// Library is an opened provider; *plugin.Plugin satisfies it.
type Library interface {
	Lookup(name string) (plugin.Symbol, error)
}

type Opener func(path string) (Library, error)

func OpenPlugin(path string) (Library, error) {
	return plugin.Open(path)
}

// Info describes one loaded provider.
type Info struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	LoadedAt time.Time `json:"loaded_at"`
}

type Option func(*Loader)

// WithOpener replaces plugin.Open.
func WithOpener(open Opener) Option {
	return func(l *Loader) {
		l.open = open
	}
}

// Loader resolves and invokes providers, remembering what it loaded.
type Loader struct {
	host Host
	dirs []string
	open Opener

	mu     sync.RWMutex
	loaded map[string]Info
}

func NewLoader(h Host, dirs []string, opts ...Option) *Loader {
	l := &Loader{
		host:   h,
		dirs:   append([]string(nil), dirs...),
		open:   OpenPlugin,
		loaded: make(map[string]Info),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Resolve finds the library file for name. ".so" is appended when name has no
// extension. Bare names are tried in the working directory, then in each
// configured directory.
func (l *Loader) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrNotFound)
	}
	if filepath.Ext(name) == "" {
		name += LibraryExt
	}
	candidates := []string{name}
	if !filepath.IsAbs(name) {
		for _, dir := range l.dirs {
			candidates = append(candidates, filepath.Join(dir, name))
		}
	}
	for _, c := range candidates {
		if st, err := os.Stat(c); err == nil && st.Mode().IsRegular() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s (searched %s)", ErrNotFound, name, strings.Join(candidates, ", "))
}

// Load resolves name, checks the ABI version and runs the provider's entry
// point with hotReload set.
func (l *Loader) Load(name string) error {
	path, err := l.Resolve(name)
	if err != nil {
		return err
	}
	lib, err := l.open(path)
	if err != nil {
		return fmt.Errorf("extension: open %s: %w", path, err)
	}

	version, err := abiVersion(lib)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if version != ABIVersion {
		return fmt.Errorf("%w: %s has %d, runtime has %d", ErrABIVersion, path, version, ABIVersion)
	}

	sym, err := lib.Lookup(SymbolExtend)
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrMissingEntryPoint, path, SymbolExtend)
	}
	extend, ok := sym.(func(Host, bool) error)
	if !ok {
		return fmt.Errorf("%w: %s: %s has type %T", ErrMissingEntryPoint, path, SymbolExtend, sym)
	}
	if err := extend(l.host, true); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrExtendFailed, path, err)
	}

	info := Info{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), Path: path, LoadedAt: time.Now()}
	l.mu.Lock()
	l.loaded[info.Name] = info
	l.mu.Unlock()
	log.Info().Str("extension", info.Name).Str("path", path).Msg("extension.Loader.Load")
	return nil
}

func abiVersion(lib Library) (int, error) {
	sym, err := lib.Lookup(SymbolABIVersion)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingEntryPoint, SymbolABIVersion)
	}
	switch v := sym.(type) {
	case *int:
		return *v, nil
	case int:
		return v, nil
	}
	return 0, fmt.Errorf("%w: %s has type %T", ErrABIVersion, SymbolABIVersion, sym)
}

// Loaded lists loaded providers sorted by name.
func (l *Loader) Loaded() []Info {
	l.mu.RLock()
	out := make([]Info, 0, len(l.loaded))
	for _, info := range l.loaded {
		out = append(out, info)
	}
	l.mu.RUnlock()
	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.Name, b.Name) })
	return out
}
