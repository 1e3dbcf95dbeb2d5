package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/mantra/internal/auth"
	"github.com/danmuck/mantra/internal/extension"
	"github.com/danmuck/mantra/internal/node"
	"github.com/danmuck/mantra/internal/observability"
	"github.com/danmuck/mantra/internal/pool"
	"github.com/danmuck/mantra/internal/rules"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	Version         = "0.1.0"
	shutdownTimeout = 5 * time.Second
)

// Server is the HTTP control surface over a running pool and rule set.
type Server struct {
	ID       string
	Addr     string
	Appeared time.Time

	pool   *pool.Pool
	rules  *rules.RuleSet
	loader *extension.Loader
	guard  auth.Validator
	router *gin.Engine
}

type Option func(*Server)

// WithValidator requires a bearer token on every mutating route.
func WithValidator(v auth.Validator) Option {
	return func(s *Server) {
		s.guard = v
	}
}

var _ node.Node = (*Server)(nil)

// New builds the engine and registers routes. loader may be nil.
func New(id, addr string, corsOrigins []string, p *pool.Pool, rs *rules.RuleSet, loader *extension.Loader, opts ...Option) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ID:       id,
		Addr:     addr,
		Appeared: time.Now(),
		pool:     p,
		rules:    rs,
		loader:   loader,
		router:   r,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

func (s *Server) NodeID() string {
	return s.ID
}

func (s *Server) Kind() string {
	return "mantra"
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve listens until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info().Str("addr", s.Addr).Msg("admin.Server.Serve listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Msg("admin.Server.Serve shutdown")
		return srv.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
