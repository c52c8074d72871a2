package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/tradeflow/internal/config"
	"github.com/felixgeelhaar/tradeflow/internal/log"
	"github.com/felixgeelhaar/tradeflow/internal/version"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string
}

// load reads the configuration and applies flag overrides on top of it.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	return cfg, nil
}

// logger builds the process logger and installs it as the default of both
// internal/log and log/slog.
func (o *rootOptions) logger(cfg *config.Config) *log.Logger {
	l := log.New(log.FromSettings(cfg.Log.Level, cfg.Log.Format, cfg.Log.AddSource, version.GetInfo().Short()))
	log.SetDefaultLogger(l)
	slog.SetDefault(l.Slog())
	return l
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "tradeflow",
		Short: "Investment analysis workflow server",
		Long: `tradeflow runs user-authored analysis plans against a catalog of
market-data, analysis and report modules.

It serves the REST API and WebSocket feed used by the web client, and
offers local commands to inspect the module catalog, run plan files and
issue development tokens.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", fmt.Sprintf("config file (default is ./%s when present)", config.DefaultPath))
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override log format (json, text)")

	root.AddCommand(
		newServeCmd(opts),
		newVersionCmd(),
		newConfigCmd(opts),
		newModulesCmd(opts),
		newPlanCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, which is cancelled on
// SIGINT or SIGTERM by main.
func ExecuteContext(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
