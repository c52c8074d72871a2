package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/tradeflow/internal/api"
	"github.com/felixgeelhaar/tradeflow/internal/config"
	"github.com/felixgeelhaar/tradeflow/internal/metrics"
	"github.com/felixgeelhaar/tradeflow/internal/server"
	"github.com/felixgeelhaar/tradeflow/internal/telemetry"
	"github.com/felixgeelhaar/tradeflow/internal/version"
)

type serveOptions struct {
	port            int
	address         string
	shutdownTimeout time.Duration
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the REST API, the WebSocket feed and the health endpoints.

Health probe endpoints:
  /health/live    - Liveness probe (process alive and responsive)
  /health/ready   - Readiness probe (dependencies usable)
  /health/startup - Startup probe (finished initialization)
  /healthz        - Backward-compatible readiness endpoint

Prometheus metrics are served on /metrics.

On SIGTERM or SIGINT the server stops accepting connections, closes
WebSocket subscriptions and waits for running plans to finish.

Example:
  # Start with ./tradeflow.yaml or built-in defaults
  tradeflow serve

  # Start on a custom port
  tradeflow serve --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = opts.port
			}
			if cmd.Flags().Changed("address") {
				cfg.Server.Address = opts.address
			}
			if cmd.Flags().Changed("shutdown-timeout") {
				cfg.Server.ShutdownTimeout = opts.shutdownTimeout
			}
			return runServe(cmd, root, cfg)
		},
	}

	cmd.Flags().IntVar(&opts.port, "port", 3001, "port to listen on")
	cmd.Flags().StringVar(&opts.address, "address", "", "address to bind to")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 30*time.Second, "maximum time to drain connections and running plans")

	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, cfg *config.Config) error {
	ctx := cmd.Context()
	logger := root.logger(cfg)
	info := version.GetInfo()

	shutdownTracing, err := telemetry.InitProvider(ctx, telemetry.Config{
		ServiceName:    version.Name,
		ServiceVersion: info.Version,
		Environment:    cfg.Telemetry.Environment,
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("tracer shutdown failed")
		}
	}()

	svc, err := newServices(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == config.DevJWTSecret {
		logger.Warn("using the built-in development JWT secret; set TRADEFLOW_JWT_SECRET in production")
	}

	handler, err := api.New(ctx, svc.apiDeps())
	if err != nil {
		return err
	}

	srv := server.NewServer(svc.probes(info.Version), server.Config{
		Address:         cfg.Server.Addr(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		Handler:         handler,
		Metrics:         metrics.Handler(svc.registry),
		Drainer:         svc.orchestrator,
		OnShutdown:      []func(){svc.hub.Close},
		Logger:          logger,
	})

	printBanner(cmd.OutOrStdout(), info, cfg)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case err := <-serverErr:
		_ = svc.close(context.WithoutCancel(ctx))
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		logger.Info("shutdown signal received, draining")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout+5*time.Second)
		defer cancel()

		shutdownErr := srv.Shutdown(shutdownCtx)
		if err := <-serverErr; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			shutdownErr = stderrors.Join(shutdownErr, err)
		}
		if err := stderrors.Join(shutdownErr, svc.close(shutdownCtx)); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Server stopped gracefully")
		return nil
	}
}

func printBanner(w io.Writer, info version.Info, cfg *config.Config) {
	st := defaultStyles()
	host := cfg.Server.Address
	if host == "" {
		host = "localhost"
	}
	base := fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)

	var b strings.Builder
	b.WriteString(st.Title.Render("[ tradeflow ]") + " " + st.Muted.Render(info.Short()) + "\n\n")
	for _, row := range [][2]string{
		{"API", base + "/api"},
		{"WebSocket", strings.Replace(base, "http", "ws", 1) + "/ws"},
		{"Metrics", base + "/metrics"},
		{"Readiness", base + "/health/ready"},
		{"Chat store", cfg.Chat.Driver},
	} {
		b.WriteString(st.Key.Render(fmt.Sprintf("%-11s", row[0])) + row[1] + "\n")
	}
	b.WriteString("\n" + st.Muted.Render("Press Ctrl+C to stop the server"))

	fmt.Fprintln(w, st.Border.Render(b.String()))
}
