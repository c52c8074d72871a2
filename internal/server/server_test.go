package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/tradeflow/internal/health"
	"github.com/felixgeelhaar/tradeflow/internal/log"
)

type stubChecker struct {
	status health.Status
}

func (s stubChecker) Name() string { return "stub" }

func (s stubChecker) Check(context.Context) *health.Result {
	return health.NewResult(s.status, "stub")
}

type drainFunc func(ctx context.Context) error

func (f drainFunc) Wait(ctx context.Context) error { return f(ctx) }

func newTestServer(pm *health.ProbeManager, cfg Config) *Server {
	cfg.Logger = log.Discard()
	return NewServer(pm, cfg)
}

func serve(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ln) }()
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
		if err := <-errc; err != http.ErrServerClosed {
			t.Errorf("expected ErrServerClosed, got %v", err)
		}
	})
	return "http://" + ln.Addr().String()
}

func TestNewServer(t *testing.T) {
	pm := health.NewProbeManager("1.0.0")
	s := newTestServer(pm, Config{Address: ":8080", ShutdownTimeout: 5 * time.Second})

	if s.probeManager != pm {
		t.Error("probe manager not set correctly")
	}
	if s.shutdownTimeout != 5*time.Second {
		t.Errorf("shutdown timeout: expected 5s, got %v", s.shutdownTimeout)
	}
	if s.Addr() != nil {
		t.Errorf("expected no address before Serve, got %v", s.Addr())
	}
}

func TestNewServerDefaults(t *testing.T) {
	s := newTestServer(health.NewProbeManager("1.0.0"), Config{Address: ":8080"})

	if s.shutdownTimeout != 30*time.Second {
		t.Errorf("default shutdown timeout: expected 30s, got %v", s.shutdownTimeout)
	}
	if s.httpServer.ReadTimeout != 10*time.Second {
		t.Errorf("default read timeout: expected 10s, got %v", s.httpServer.ReadTimeout)
	}
	if s.httpServer.WriteTimeout != 10*time.Second {
		t.Errorf("default write timeout: expected 10s, got %v", s.httpServer.WriteTimeout)
	}
	if s.httpServer.IdleTimeout != 60*time.Second {
		t.Errorf("default idle timeout: expected 60s, got %v", s.httpServer.IdleTimeout)
	}
}

func TestProbeEndpoints(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		method         string
		setup          func(pm *health.ProbeManager)
		expectedStatus int
		expectedHealth health.Status
	}{
		{
			name:           "liveness - normal operation",
			path:           "/health/live",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
			expectedHealth: health.StatusHealthy,
		},
		{
			name:           "liveness - during shutdown",
			path:           "/health/live",
			method:         http.MethodGet,
			setup:          func(pm *health.ProbeManager) { pm.MarkShutdown() },
			expectedStatus: http.StatusOK,
			expectedHealth: health.StatusDegraded,
		},
		{
			name:           "liveness - POST not allowed",
			path:           "/health/live",
			method:         http.MethodPost,
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "readiness - ready",
			path:           "/health/ready",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
			expectedHealth: health.StatusHealthy,
		},
		{
			name:           "readiness - degraded dependency still serves",
			path:           "/health/ready",
			method:         http.MethodGet,
			setup:          func(pm *health.ProbeManager) { pm.AddChecker(stubChecker{status: health.StatusDegraded}) },
			expectedStatus: http.StatusOK,
			expectedHealth: health.StatusDegraded,
		},
		{
			name:           "readiness - unhealthy dependency",
			path:           "/health/ready",
			method:         http.MethodGet,
			setup:          func(pm *health.ProbeManager) { pm.AddChecker(stubChecker{status: health.StatusUnhealthy}) },
			expectedStatus: http.StatusServiceUnavailable,
			expectedHealth: health.StatusUnhealthy,
		},
		{
			name:           "readiness - shutting down",
			path:           "/health/ready",
			method:         http.MethodGet,
			setup:          func(pm *health.ProbeManager) { pm.MarkShutdown() },
			expectedStatus: http.StatusServiceUnavailable,
			expectedHealth: health.StatusUnhealthy,
		},
		{
			name:           "healthz maps to readiness",
			path:           "/healthz",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
			expectedHealth: health.StatusHealthy,
		},
		{
			name:           "startup - not initialized",
			path:           "/health/startup",
			method:         http.MethodGet,
			expectedStatus: http.StatusServiceUnavailable,
			expectedHealth: health.StatusUnhealthy,
		},
		{
			name:           "startup - initialized",
			path:           "/health/startup",
			method:         http.MethodGet,
			setup:          func(pm *health.ProbeManager) { pm.MarkInitialized() },
			expectedStatus: http.StatusOK,
			expectedHealth: health.StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := health.NewProbeManager("1.0.0")
			if tt.setup != nil {
				tt.setup(pm)
			}
			s := newTestServer(pm, Config{Address: ":8080"})

			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			if w.Code != tt.expectedStatus {
				t.Errorf("status code: expected %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.method != http.MethodGet {
				return
			}

			var result health.ProbeResult
			if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if result.Status != tt.expectedHealth {
				t.Errorf("health status: expected %s, got %s", tt.expectedHealth, result.Status)
			}
			if result.Version != "1.0.0" {
				t.Errorf("version: expected 1.0.0, got %s", result.Version)
			}
		})
	}
}

func TestMountsHandlerAndMetrics(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "tradeflow_up 1\n")
	})
	s := newTestServer(health.NewProbeManager("1.0.0"), Config{Handler: api, Metrics: metrics})

	tests := []struct {
		path string
		want int
	}{
		{"/api/plans", http.StatusTeapot},
		{"/ws", http.StatusTeapot},
		{"/metrics", http.StatusOK},
		{"/health/live", http.StatusOK},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.want, w.Code)
		}
	}
}

func TestServerLifecycle(t *testing.T) {
	pm := health.NewProbeManager("1.0.0")
	s := newTestServer(pm, Config{ShutdownTimeout: time.Second})
	base := serve(t, s)

	resp, err := http.Get(base + "/health/startup")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("startup probe: expected 200 once serving, got %d", resp.StatusCode)
	}
	if !pm.IsInitialized() {
		t.Error("probe manager should be initialized after Serve()")
	}
	if s.Addr() == nil {
		t.Error("expected bound address while serving")
	}
	if s.IsShuttingDown() {
		t.Error("server should not be shutting down initially")
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if !s.IsShuttingDown() {
		t.Error("server should be shutting down after Shutdown() called")
	}
}

func TestShutdownDrainsExecutions(t *testing.T) {
	release := make(chan struct{})
	var drained atomic.Bool
	drainer := drainFunc(func(ctx context.Context) error {
		select {
		case <-release:
			drained.Store(true)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	var hooked atomic.Bool
	s := newTestServer(health.NewProbeManager("1.0.0"), Config{
		ShutdownTimeout: 2 * time.Second,
		Drainer:         drainer,
		OnShutdown:      []func(){func() { hooked.Store(true) }},
	})
	serve(t, s)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if !drained.Load() {
		t.Error("Shutdown returned before executions drained")
	}
	if !hooked.Load() {
		t.Error("OnShutdown hook did not run")
	}
}

func TestShutdownDrainTimeout(t *testing.T) {
	drainer := drainFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s := newTestServer(health.NewProbeManager("1.0.0"), Config{
		ShutdownTimeout: 50 * time.Millisecond,
		Drainer:         drainer,
	})
	serve(t, s)

	err := s.Shutdown(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestConcurrentRequests(t *testing.T) {
	pm := health.NewProbeManager("1.0.0")
	pm.MarkInitialized()

	s := newTestServer(pm, Config{Address: ":8080"})

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	done := make(chan bool)
	endpoints := []string{"/health/live", "/health/ready", "/health/startup", "/healthz"}

	for _, endpoint := range endpoints {
		for i := 0; i < 10; i++ {
			go func(ep string) {
				resp, err := http.Get(ts.URL + ep)
				if err != nil {
					t.Errorf("request failed: %v", err)
					done <- false
					return
				}
				defer resp.Body.Close()

				if resp.StatusCode != http.StatusOK {
					t.Errorf("unexpected status: %d", resp.StatusCode)
					done <- false
					return
				}

				_, _ = io.Copy(io.Discard, resp.Body)
				done <- true
			}(endpoint)
		}
	}

	for i := 0; i < len(endpoints)*10; i++ {
		<-done
	}
}
