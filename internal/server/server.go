// Package server runs the tradeflow HTTP listener with health endpoints.
//
// It provides:
//   - Kubernetes-style health probes (liveness, readiness, startup)
//   - Graceful shutdown with connection draining
//   - A drain step that waits for background plan executions
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/tradeflow/internal/health"
	"github.com/felixgeelhaar/tradeflow/internal/log"
)

// Drainer is waited on after the listener stops. The orchestrator
// implements it.
type Drainer interface {
	Wait(ctx context.Context) error
}

// Server provides HTTP server functionality with health endpoints.
type Server struct {
	httpServer      *http.Server
	probeManager    *health.ProbeManager
	drainer         Drainer
	logger          *log.Logger
	inShutdown      atomic.Bool
	shutdownTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
}

// Config holds server configuration.
type Config struct {
	// Address is the listen address (e.g., ":8080", "0.0.0.0:8080")
	Address string

	// ShutdownTimeout bounds connection draining and the execution drain.
	// Defaults to 30 seconds if not specified.
	ShutdownTimeout time.Duration

	// ReadTimeout is the maximum duration for reading the entire request.
	// Defaults to 10 seconds if not specified.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// Defaults to 10 seconds if not specified.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request.
	// Defaults to 60 seconds if not specified.
	IdleTimeout time.Duration

	// Handler serves every path not claimed by the probes or metrics.
	Handler http.Handler

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	// Drainer is waited on during Shutdown.
	Drainer Drainer

	// OnShutdown runs when shutdown begins. Use it to close hijacked
	// connections such as WebSockets.
	OnShutdown []func()

	Logger *log.Logger
}

// NewServer creates a new HTTP server with health endpoints.
func NewServer(probeManager *health.ProbeManager, cfg Config) *Server {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.DefaultLogger()
	}

	s := &Server{
		probeManager:    probeManager,
		drainer:         cfg.Drainer,
		logger:          cfg.Logger.WithComponent("server"),
		shutdownTimeout: cfg.ShutdownTimeout,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health/live", s.handleLiveness)
	mux.HandleFunc("/health/ready", s.handleReadiness)
	mux.HandleFunc("/health/startup", s.handleStartup)

	// /healthz maps to readiness
	mux.HandleFunc("/healthz", s.handleReadiness)

	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}
	if cfg.Handler != nil {
		mux.Handle("/", cfg.Handler)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	for _, fn := range cfg.OnShutdown {
		s.httpServer.RegisterOnShutdown(fn)
	}

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and serves until shutdown.
// Returns http.ErrServerClosed when the server is shut down gracefully.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.probeManager.MarkInitialized()
	s.logger.Info("server listening", "address", ln.Addr().String())

	return s.httpServer.Serve(ln)
}

// Addr returns the bound address once serving, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown performs graceful shutdown.
//
// It:
//  1. Marks the server as shutting down (readiness probes will fail)
//  2. Disables HTTP keep-alives to stop accepting new requests
//  3. Waits for existing connections to drain (up to ShutdownTimeout)
//  4. Waits for in-flight plan executions within the same deadline
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.probeManager.MarkShutdown()

	s.httpServer.SetKeepAlivesEnabled(false)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	httpErr := s.httpServer.Shutdown(shutdownCtx)

	var drainErr error
	if s.drainer != nil {
		if drainErr = s.drainer.Wait(shutdownCtx); drainErr != nil {
			s.logger.WithError(drainErr).Warn("executions still running at shutdown deadline")
			drainErr = fmt.Errorf("drain executions: %w", drainErr)
		}
	}

	s.logger.Info("server stopped")
	return errors.Join(httpErr, drainErr)
}

// IsShuttingDown returns whether the server is shutting down.
func (s *Server) IsShuttingDown() bool {
	return s.inShutdown.Load()
}

func (s *Server) writeProbeResponse(w http.ResponseWriter, result *health.ProbeResult, unhealthyStatus int) {
	w.Header().Set("Content-Type", "application/json")

	if result.Status == health.StatusUnhealthy {
		w.WriteHeader(unhealthyStatus)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.WithError(err).Warn("failed to encode probe response")
	}
}

// handleLiveness answers GET /health/live. It returns 200 even while
// shutting down; the body reports degraded.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeProbeResponse(w, s.probeManager.CheckLiveness(r.Context()), http.StatusOK)
}

// handleReadiness answers GET /health/ready with 503 when shutting down or
// when a dependency check is unhealthy.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeProbeResponse(w, s.probeManager.CheckReadiness(r.Context()), http.StatusServiceUnavailable)
}

// handleStartup answers GET /health/startup with 503 until Serve has begun.
func (s *Server) handleStartup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeProbeResponse(w, s.probeManager.CheckStartup(r.Context()), http.StatusServiceUnavailable)
}
