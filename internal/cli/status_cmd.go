package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arothstein/chatguard/internal/cli/formatter"
)

func newStatusCmd(app *App) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the tenant's enforcement state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app, tenantOverride(tenantID))
			if err != nil {
				return err
			}

			kv, blocks, _, err := openStores(cfg, zap.NewNop())
			if err != nil {
				return err
			}
			defer kv.Close()

			rec, err := blocks.Active(context.Background())
			if err != nil {
				return err
			}

			fmt.Print(formatter.FormatStatus(cfg.TenantID, rec, cfg.BlockTTL))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant identifier (overrides config)")
	return cmd
}
