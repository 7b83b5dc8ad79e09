package cli

import (
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/arothstein/chatguard/internal/config"
	"github.com/arothstein/chatguard/internal/store"
)

// loadConfig reads the config and applies command-line overrides before
// validation-sensitive fields are used.
func loadConfig(app *App, override func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(app.ConfigPath)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger picks console output on a terminal, JSON otherwise.
func newLogger(debug bool) (*zap.Logger, error) {
	interactive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	var cfg zap.Config
	if interactive {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// tenantOverride applies a --tenant flag value when set.
func tenantOverride(tenantID string) func(*config.Config) {
	return func(c *config.Config) {
		if tenantID != "" {
			c.TenantID = tenantID
		}
	}
}

// openStores opens the sqlite store and returns the tenant's block and
// backlog views. Caller closes kv.
func openStores(cfg *config.Config, logger *zap.Logger) (*store.SQLite, *store.BlockStore, *store.Backlog, error) {
	kv, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, nil, nil, err
	}
	keys := store.KeysFor(cfg.TenantID)
	blocks := store.NewBlockStore(kv, keys.Block, cfg.BlockTTL, logger)
	backlog := store.NewBacklog(kv, keys.Backlog, 0)
	return kv, blocks, backlog, nil
}
