package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/mantra/internal/admin"
	"github.com/danmuck/mantra/internal/auth"
	"github.com/danmuck/mantra/internal/config"
	"github.com/danmuck/mantra/internal/core"
	"github.com/danmuck/mantra/internal/extension"
	"github.com/danmuck/mantra/internal/parser"
	"github.com/danmuck/mantra/internal/pool"
	"github.com/danmuck/mantra/internal/repl"
	"github.com/danmuck/mantra/internal/rules"
	"github.com/rs/zerolog/log"
)

const ServiceID = "mantra"

// Driver runs the foreground loop until it returns or ctx ends.
type Driver func(ctx context.Context, session *repl.Session) error

// Service owns one runtime: rule set, pool, extension loader, and the
// optional admin surface.
type Service struct {
	cfg    config.Config
	out    io.Writer
	rules  *rules.RuleSet
	pool   *pool.Pool
	loader *extension.Loader
	admin  *admin.Server
}

// NewService wires the runtime. out receives REPL and trace output; nil means stdout.
func NewService(cfg config.Config, out io.Writer) (*Service, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stdout
	}
	rs := rules.NewRuleSet()
	p, err := pool.New(rs, pool.Config{Workers: cfg.Workers, Compact: cfg.Compact})
	if err != nil {
		return nil, err
	}
	if err := rs.Register(core.NewModule(p, rs, out), true); err != nil {
		return nil, fmt.Errorf("register core module: %w", err)
	}
	loader := extension.NewLoader(extension.NewHost(p, rs), cfg.ExtensionDirs)

	s := &Service{
		cfg:    cfg,
		out:    out,
		rules:  rs,
		pool:   p,
		loader: loader,
	}
	if cfg.Admin.Addr != "" {
		var opts []admin.Option
		if cfg.Admin.Token != "" {
			opts = append(opts, admin.WithValidator(auth.StaticToken{Token: cfg.Admin.Token}))
		}
		s.admin = admin.New(ServiceID, cfg.Admin.Addr, cfg.Admin.CorsOrigins, p, rs, loader, opts...)
	}
	return s, nil
}

func (s *Service) Rules() *rules.RuleSet {
	return s.rules
}

func (s *Service) Pool() *pool.Pool {
	return s.pool
}

// Run blocks on the terminal REPL until #quit, EOF, or a process signal.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx, func(_ context.Context, session *repl.Session) error {
		return repl.RunTerminal(session, s.cfg.REPL.History)
	})
}

// RunHeadless serves the admin surface without a REPL until a process signal.
func (s *Service) RunHeadless() error {
	if s.admin == nil {
		return errors.New("mantra: headless mode needs admin.addr")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx, func(ctx context.Context, _ *repl.Session) error {
		<-ctx.Done()
		return nil
	})
}

// Serve starts the pool, loads the prelude, starts the admin surface and
// hands control to drive. Everything is stopped when drive returns.
func (s *Service) Serve(ctx context.Context, drive Driver) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.pool.Start(ctx); err != nil {
		return err
	}
	defer s.pool.Close()

	if err := s.LoadPrelude(); err != nil {
		return err
	}

	adminErr := make(chan error, 1)
	if s.admin != nil {
		go func() {
			adminErr <- s.admin.Serve(ctx)
		}()
	}

	session := repl.NewSession(s.pool, s.rules, s.loader, s.out, repl.Options{
		Prompt:    s.cfg.REPL.Prompt,
		SlowDelay: s.cfg.SlowDelayDuration(),
	})
	log.Info().
		Int("workers", s.pool.Workers()).
		Int("modules", len(s.rules.Modules())).
		Bool("admin", s.admin != nil).
		Msg("app.Service.Serve ready")

	err := drive(ctx, session)
	cancel()
	if s.admin != nil {
		if aerr := <-adminErr; aerr != nil && err == nil {
			err = aerr
		}
	}
	log.Info().Msg("app.Service.Serve shutdown")
	return err
}

// LoadPrelude registers the configured prelude module. A missing file is
// reported and skipped.
func (s *Service) LoadPrelude() error {
	if s.cfg.Prelude == "" {
		return nil
	}
	m, diags, err := parser.LoadFile(s.cfg.Prelude)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("prelude", s.cfg.Prelude).Msg("app.Service.LoadPrelude prelude not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load prelude: %w", err)
	}
	for _, d := range diags {
		log.Warn().Str("prelude", s.cfg.Prelude).Err(d).Msg("app.Service.LoadPrelude diagnostic")
	}
	return s.rules.Register(m, true)
}
