package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arothstein/chatguard/internal/cli/formatter"
)

// newClearCmd is the authoritative start-fresh path: it removes the
// persisted block record so the next run starts in monitoring mode. The
// page itself recovers on its next reload.
func newClearCmd(app *App) *cobra.Command {
	var (
		tenantID string
		withLogs bool
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Lift the active block for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app, tenantOverride(tenantID))
			if err != nil {
				return err
			}

			kv, blocks, backlog, err := openStores(cfg, zap.NewNop())
			if err != nil {
				return err
			}
			defer kv.Close()

			ctx := context.Background()
			if err := blocks.Clear(ctx); err != nil {
				return err
			}
			if withLogs {
				if err := backlog.Clear(ctx); err != nil {
					return err
				}
			}

			fmt.Println(formatter.StyleGreen.Render("✓") + " Block record cleared for tenant " + formatter.Bold(cfg.TenantID))
			if withLogs {
				fmt.Println(formatter.Dim("Audit backlog cleared."))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant identifier (overrides config)")
	cmd.Flags().BoolVar(&withLogs, "logs", false, "Also clear the audit backlog")

	return cmd
}
