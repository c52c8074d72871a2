package cmd

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/tradeflow/internal/api"
	"github.com/felixgeelhaar/tradeflow/internal/auth"
	"github.com/felixgeelhaar/tradeflow/internal/chat"
	"github.com/felixgeelhaar/tradeflow/internal/config"
	"github.com/felixgeelhaar/tradeflow/internal/health"
	"github.com/felixgeelhaar/tradeflow/internal/log"
	"github.com/felixgeelhaar/tradeflow/internal/metrics"
	"github.com/felixgeelhaar/tradeflow/internal/module"
	"github.com/felixgeelhaar/tradeflow/internal/notify"
	"github.com/felixgeelhaar/tradeflow/internal/orchestrator"
	"github.com/felixgeelhaar/tradeflow/internal/plan"
)

// services is the object graph behind the server and the local commands.
type services struct {
	cfg          *config.Config
	logger       *log.Logger
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	dispatcher   *module.Dispatcher
	plans        *plan.Store
	hub          *notify.Hub
	chatStore    chat.Store
	chat         *chat.Service
	auth         *auth.Service
	orchestrator *orchestrator.Orchestrator
}

// newServices wires every service from cfg. A nil transport uses the
// simulated module backend with the configured latency range.
func newServices(ctx context.Context, cfg *config.Config, logger *log.Logger, transport module.Transport) (*services, error) {
	catalog, err := module.LoadCatalog(cfg.Modules.CatalogFile)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		transport = module.NewSimulatedTransport(cfg.Modules.MinLatency, cfg.Modules.MaxLatency)
	}

	registry, m := metrics.NewRegistry()

	s := &services{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  m,
	}

	s.dispatcher = module.NewDispatcher(catalog, transport, module.DispatcherConfig{
		DefaultTimeout:   cfg.Modules.DispatchTimeout,
		BatchConcurrency: cfg.Modules.BatchConcurrency,
		Logger:           logger,
		Metrics:          m,
	})

	s.plans = plan.NewStore(plan.NewMemoryRepository(), plan.WithLogger(logger), plan.WithMetrics(m))

	s.hub = notify.NewHub(notify.HubConfig{
		BufferSize: cfg.Notify.BufferSize,
		Logger:     logger,
		Metrics:    m,
	})

	s.chatStore, err = chat.Open(ctx, cfg.Chat)
	if err != nil {
		return nil, fmt.Errorf("open chat store: %w", err)
	}
	s.chat = chat.NewService(s.chatStore, s.hub, chat.WithLogger(logger), chat.WithMetrics(m))

	sessions := auth.NewSessionManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer).
		WithTokenDuration(cfg.Auth.TokenTTL)
	s.auth = auth.NewService(auth.NewUserStore(), sessions, cfg.Auth.AllowRegistration, logger)

	s.orchestrator = orchestrator.New(s.plans, s.dispatcher, orchestrator.Config{
		MaxConcurrent: cfg.Orchestrator.MaxConcurrent,
		Publisher:     s.hub,
		Journal:       s.chat,
		Logger:        logger,
		Metrics:       m,
	})

	return s, nil
}

// apiDeps hands the services to the HTTP API.
func (s *services) apiDeps() api.Deps {
	return api.Deps{
		Config:       *s.cfg,
		Plans:        s.plans,
		Orchestrator: s.orchestrator,
		Dispatcher:   s.dispatcher,
		Chat:         s.chat,
		Auth:         s.auth,
		Hub:          s.hub,
		Logger:       s.logger,
		Metrics:      s.metrics,
	}
}

// probes builds the probe manager with a checker per dependency.
func (s *services) probes(ver string) *health.ProbeManager {
	pm := health.NewProbeManager(ver)
	pm.AddChecker(health.NewCatalogChecker(s.dispatcher.Catalog()))
	pm.AddChecker(health.NewPingChecker("chat-store", s.chat))
	pm.AddChecker(health.NewGaugeChecker("executions", s.orchestrator.Running, s.cfg.Orchestrator.MaxConcurrent))
	return pm
}

// close waits for running plans, ends subscriptions and closes the chat store.
func (s *services) close(ctx context.Context) error {
	waitErr := s.orchestrator.Wait(ctx)
	s.hub.Close()
	return stderrors.Join(waitErr, s.chatStore.Close())
}
