package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/app"
	"github.com/JakeFAU/quotes-crawler/internal/config"
	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/logging"
)

// appKeyType is the key for storing the application in the context.
type appKeyType string

const appKey appKeyType = "app"

// application is what the subcommands need from the built app. Tests swap in
// a fake through newApp.
type application interface {
	RunOnce(ctx context.Context) (crawler.Summary, error)
	Run(ctx context.Context) error
	Close() error
}

// newApp loads configuration, builds the logger and wires the application.
var newApp = func(ctx context.Context, cfgPath string) (application, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("build application: %w", err)
	}
	return a, logger, nil
}

type appHandle struct {
	app    application
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "quotescrawler",
		Short: "A polite crawler that collects quotes and author profiles.",
		Long: `quotescrawler walks the configured quote sites, honoring robots.txt and a
per-site rate limit, and upserts every quote and author biography into the
configured store.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, logger, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, &appHandle{app: a, logger: logger})
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			closeApp(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*appHandle, error) {
	h, ok := ctx.Value(appKey).(*appHandle)
	if !ok || h == nil || h.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return h, nil
}

// closeApp releases the application once. It runs from PersistentPostRun,
// which cobra skips when RunE fails, so failing commands call it too.
func closeApp(ctx context.Context) {
	h, err := resolveApp(ctx)
	if err != nil {
		return
	}
	if cerr := h.app.Close(); cerr != nil && h.logger != nil {
		h.logger.Warn("application close failed", zap.Error(cerr))
	}
	if h.logger != nil {
		_ = h.logger.Sync()
	}
	h.app = nil
}
