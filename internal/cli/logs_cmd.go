package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arothstein/chatguard/internal/cli/formatter"
	"github.com/arothstein/chatguard/internal/store"
)

func newLogsCmd(app *App) *cobra.Command {
	var (
		tenantID   string
		limit      int
		blocksOnly bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the local audit backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app, tenantOverride(tenantID))
			if err != nil {
				return err
			}

			kv, _, backlog, err := openStores(cfg, zap.NewNop())
			if err != nil {
				return err
			}
			defer kv.Close()

			entries, err := backlog.List(context.Background())
			if err != nil {
				return err
			}

			if blocksOnly {
				filtered := entries[:0]
				for _, e := range entries {
					if e.Type == "block" {
						filtered = append(filtered, e)
					}
				}
				entries = filtered
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}

			fmt.Print(formatter.FormatLogs(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant identifier (overrides config)")
	cmd.Flags().IntVar(&limit, "limit", store.DefaultBacklogCap, "Most recent entries to show (0 for all)")
	cmd.Flags().BoolVar(&blocksOnly, "blocks", false, "Show block verdicts only")

	return cmd
}
