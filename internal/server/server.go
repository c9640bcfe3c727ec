// Package server wires the engine, providers, and endpoints into the HTTP
// control surface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keywordlens/keywordlens/internal/api"
	"github.com/keywordlens/keywordlens/internal/config"
	"github.com/keywordlens/keywordlens/internal/engine"
	"github.com/keywordlens/keywordlens/internal/home"
	"github.com/keywordlens/keywordlens/internal/progress"
	"github.com/keywordlens/keywordlens/internal/providers"
	"github.com/keywordlens/keywordlens/internal/server/endpoints"
	"github.com/keywordlens/keywordlens/internal/svcctx"
)

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8090)
	Port string
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home is the application home directory
	Home *home.Dir
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// Server is the keywordlens HTTP server. It owns the run engine, the
// provider registry, and the progress tracker.
type Server struct {
	httpServer *http.Server
	engine     *engine.Engine
	registry   *providers.Registry
	tracker    *progress.Tracker
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	ready    atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	mu      sync.RWMutex
	running bool
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8090"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, fmt.Errorf("config manager is required")
	}
	if cfg.Home == nil {
		return nil, fmt.Errorf("home directory is required")
	}
	if err := cfg.Home.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to prepare home directory: %w", err)
	}

	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)
	registry.Reload(cfg.ConfigManager.Get().ToProviderRegistryConfig())
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		registry.Reload(c.ToProviderRegistryConfig())
	})

	tracker := progress.NewTracker(cfg.Home.CheckpointPath(), cfg.Logger)

	eng := engine.New(engine.Config{
		Cfg:      cfg.ConfigManager.Get(),
		Home:     cfg.Home,
		Tracker:  tracker,
		Registry: registry,
		Logger:   cfg.Logger,
	})

	s := &Server{
		engine:    eng,
		registry:  registry,
		tracker:   tracker,
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
		stopCh:    make(chan struct{}),
	}

	s.services = &svcctx.Services{
		Engine:   eng,
		Registry: registry,
		Tracker:  tracker,
		Logger:   cfg.Logger,
		Home:     cfg.Home,
		Shutdown: s.RequestShutdown,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Export downloads and uploads can be large
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server. It blocks until the context is cancelled, a
// shutdown is requested via the API, or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.ready.Store(true)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case <-s.stopCh:
		s.logger.Info("shutdown requested via API")
	case err := <-errCh:
		if err != nil {
			s.setNotRunning()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// RequestShutdown asks a running server to stop. Safe to call repeatedly.
func (s *Server) RequestShutdown() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// shutdown performs graceful shutdown of the HTTP server and the engine's
// external resources.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")
	s.ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := s.engine.Shutdown(); err != nil {
		s.logger.Error("engine shutdown error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Engine returns the run engine.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the fully wired HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// withServices attaches the services struct to every request context.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := svcctx.WithServices(r.Context(), s.services)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit rejects requests until the server is fully started.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"error": "server is starting"})
			return
		}
		next(w, r)
	}
}
