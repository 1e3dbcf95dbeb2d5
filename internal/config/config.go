package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/mantra/internal/logging"
)

const DefaultPath = "mantra.toml"

var (
	ErrInvalidWorkers  = errors.New("config: workers must be at least 1")
	ErrInvalidDuration = errors.New("config: invalid duration")
	ErrInvalidLevel    = errors.New("config: invalid log level")
)

// Config is the mantra.toml layout.
type Config struct {
	Workers       int      `toml:"workers"`
	Prelude       string   `toml:"prelude"`
	ExtensionDirs []string `toml:"extension_dirs"`
	// Compact drops dead tape prefixes of pooled fibers after every pass.
	// showFiber then sees only the live suffix.
	Compact bool        `toml:"compact"`
	REPL    REPLConfig  `toml:"repl"`
	Admin   AdminConfig `toml:"admin"`
	Log     LogConfig   `toml:"log"`
}

type REPLConfig struct {
	Prompt    string `toml:"prompt"`
	History   string `toml:"history"`
	SlowDelay string `toml:"slow_delay"`
}

// AdminConfig controls the HTTP surface. An empty Addr disables it.
type AdminConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
	// Token, when set, is required as a bearer token on mutating routes.
	Token string `toml:"token"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

func Default() Config {
	return Config{
		Workers:       runtime.NumCPU(),
		Prelude:       "prelude.tra",
		ExtensionDirs: []string{"extensions"},
		REPL: REPLConfig{
			Prompt:    "> ",
			History:   ".mantra_history",
			SlowDelay: "250ms",
		},
		Admin: AdminConfig{
			CorsOrigins: []string{"http://localhost:3000"},
		},
		Log: LogConfig{Level: "info"},
	}
}

// SlowDelayDuration parses repl.slow_delay. Call Validate first.
func (c Config) SlowDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.REPL.SlowDelay)
	if err != nil {
		return 0
	}
	return d
}

// Load overlays the keys defined in path onto Default.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load mantra config: %w", err)
	}

	if meta.IsDefined("workers") {
		cfg.Workers = raw.Workers
	}
	if meta.IsDefined("prelude") {
		cfg.Prelude = strings.TrimSpace(raw.Prelude)
	}
	if meta.IsDefined("compact") {
		cfg.Compact = raw.Compact
	}
	if meta.IsDefined("extension_dirs") {
		cfg.ExtensionDirs = raw.ExtensionDirs
	}
	if meta.IsDefined("repl", "prompt") {
		cfg.REPL.Prompt = raw.REPL.Prompt
	}
	if meta.IsDefined("repl", "history") {
		cfg.REPL.History = strings.TrimSpace(raw.REPL.History)
	}
	if meta.IsDefined("repl", "slow_delay") {
		cfg.REPL.SlowDelay = strings.TrimSpace(raw.REPL.SlowDelay)
	}
	if meta.IsDefined("admin", "addr") {
		cfg.Admin.Addr = strings.TrimSpace(raw.Admin.Addr)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CorsOrigins = raw.Admin.CorsOrigins
	}
	if meta.IsDefined("admin", "token") {
		cfg.Admin.Token = strings.TrimSpace(raw.Admin.Token)
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if cfg.Workers < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, cfg.Workers)
	}
	if _, err := time.ParseDuration(cfg.REPL.SlowDelay); err != nil {
		return fmt.Errorf("%w: repl.slow_delay %q", ErrInvalidDuration, cfg.REPL.SlowDelay)
	}
	if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidLevel, cfg.Log.Level)
	}
	return nil
}
