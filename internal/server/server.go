// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package server exposes the gateway's HTTP API: session and draft
// CRUD, the streaming chat endpoint, and change approval. Everything
// rides one chi router with a huma-described operation surface.
package server

import (
	"context"
	"crypto/sha256"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/inkwell-dev/inkwell/internal/agent"
	"github.com/inkwell-dev/inkwell/internal/plugin"
	"github.com/inkwell-dev/inkwell/internal/store"
	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

// ChatEngine is the slice of the agent engine the gateway drives.
// *agent.Engine satisfies it; tests substitute fakes.
type ChatEngine interface {
	Send(ctx context.Context, sessionID, content string) (<-chan agent.Event, error)
	Cancel(sessionID string) error
	Accept(ctx context.Context, sessionID, changeID string) error
	Reject(ctx context.Context, sessionID, changeID string) error
	Phase(sessionID string) agent.Phase
	PendingChanges(sessionID string) []*agent.PendingChange
}

// ProviderDirectory reports which providers are registered.
type ProviderDirectory interface {
	Names() []string
}

// PluginDirectory reports the running remote tool plugins.
type PluginDirectory interface {
	Plugins() []plugin.PluginInfo
}

// Config holds HTTP server configuration and wired subsystems. Engine,
// Store, Providers, and Plugins may each be nil; the routes that need a
// missing one answer 503 instead.
type Config struct {
	ListenAddr  string
	CORSOrigins []string

	// AuthToken enables bearer authentication on /api/v1 when non-empty.
	// The value arrives already resolved; keyring lookups happen in the
	// wiring layer.
	AuthToken string

	Version      string
	DefaultModel string

	ReadTimeout time.Duration
	// WriteTimeout is off by default: chat streams stay open across
	// approval pauses, which may last arbitrarily long.
	WriteTimeout time.Duration

	StreamLimit StreamLimitConfig

	Engine    ChatEngine
	Store     store.Store
	Providers ProviderDirectory
	Plugins   PluginDirectory

	Logger *slog.Logger
}

// Server wraps a chi router with the huma API and HTTP server.
type Server struct {
	router  chi.Router
	api     huma.API
	cfg     Config
	engine  ChatEngine
	store   store.Store
	limiter *streamLimiter
	log     *slog.Logger

	authHash    [sha256.Size]byte
	authEnabled bool

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Server with all routes registered.
func New(cfg Config) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, inkerr.New(inkerr.CodeServerConfigInvalid, "listen address is required")
	}
	if err := cfg.StreamLimit.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		engine: cfg.Engine,
		store:  cfg.Store,
		log:    logger,
		done:   make(chan struct{}),
	}
	if cfg.AuthToken != "" {
		s.authHash = sha256.Sum256([]byte(cfg.AuthToken))
		s.authEnabled = true
	}
	s.limiter = newStreamLimiter(cfg.StreamLimit, s.done)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(s.authMiddleware)

	humaConfig := huma.DefaultConfig("Inkwell Gateway", cfg.Version)
	humaConfig.Info.Description = "Agentic draft-editing gateway API"
	s.api = humachi.New(r, humaConfig)
	s.router = r

	s.registerRoutes()
	s.registerChatRoute()

	return s, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API for registering additional operations.
func (s *Server) API() huma.API {
	return s.api
}

// Start runs the HTTP server and blocks until the context is
// cancelled, then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return inkerr.Wrapf(err, inkerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info("gateway listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return inkerr.Wrapf(err, inkerr.CodeServerShutdownFailure, "shutting down")
	}
	return <-errCh
}

// Close stops background work. Safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
