package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arothstein/chatguard/internal/audit"
	"github.com/arothstein/chatguard/internal/config"
	"github.com/arothstein/chatguard/internal/engine"
	"github.com/arothstein/chatguard/internal/evaluator"
	"github.com/arothstein/chatguard/internal/page"
	"github.com/arothstein/chatguard/internal/page/cdp"
	"github.com/arothstein/chatguard/internal/store"
)

func newRunCmd(app *App) *cobra.Command {
	var (
		tenantID    string
		devtoolsURL string
		backendBase string
		mode        string
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Attach to the browser tab and monitor the chat widget",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app, func(c *config.Config) {
				if tenantID != "" {
					c.TenantID = tenantID
				}
				if devtoolsURL != "" {
					c.DevToolsURL = devtoolsURL
				}
				if backendBase != "" {
					c.BackendBase = backendBase
				}
				if mode != "" {
					c.Mode = config.Mode(mode)
				}
			})
			if err != nil {
				return err
			}

			logger, err := newLogger(debug)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runEngine(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant identifier (overrides config)")
	cmd.Flags().StringVar(&devtoolsURL, "devtools-url", "", "DevTools endpoint of the tab to monitor")
	cmd.Flags().StringVar(&backendBase, "backend", "", "Evaluation backend base URL")
	cmd.Flags().StringVar(&mode, "mode", "", "enforce or monitor")
	cmd.Flags().BoolVar(&debug, "debug", false, "Verbose console logging")

	return cmd
}

func runEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// One best-effort fetch; every failure path keeps the local defaults.
	config.ApplyRemoteOverrides(ctx, cfg, logger)

	kv, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer kv.Close()

	conn, err := cdp.Dial(ctx, cfg.DevToolsURL, logger)
	if err != nil {
		return fmt.Errorf("attaching to browser: %w", err)
	}
	defer conn.Close()

	surface, err := cdp.NewSurface(ctx, conn, logger)
	if err != nil {
		return fmt.Errorf("preparing page session: %w", err)
	}

	keys := store.KeysFor(cfg.TenantID)
	blocks := store.NewBlockStore(kv, keys.Block, cfg.BlockTTL, logger)
	backlog := store.NewBacklog(kv, keys.Backlog, 0)
	sink := audit.NewSink(cfg.LogURL(), cfg.TenantID, backlog, logger)

	eng := engine.New(engine.Params{
		Config:    cfg,
		Surface:   surface,
		Locator:   page.DefaultLocator(),
		Blocks:    blocks,
		Backlog:   backlog,
		Evaluator: evaluator.NewClient(cfg.EvaluateURL(), cfg.TenantID, cfg.RequestTimeout, logger),
		Sink:      sink,
		Logger:    logger,
	})

	logger.Info("chatguard starting",
		zap.String("tenant", cfg.TenantID),
		zap.String("mode", string(cfg.Mode)))

	err = eng.Start(ctx)
	sink.Wait()
	return err
}
