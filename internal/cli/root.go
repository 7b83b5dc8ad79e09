// Package cli defines the chatguard command tree: run (the monitor
// itself) plus the status/logs/clear operational commands that work
// against the local store.
package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// App carries everything the commands share.
type App struct {
	// ConfigPath is the --config flag value; empty means defaults plus
	// environment.
	ConfigPath string

	Version string
}

// NewRootCmd creates the top-level "chatguard" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "chatguard",
		Short:         "Safety monitor for embedded dealership chat widgets",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&app.ConfigPath, "config", "", "Path to config file")

	// Accept underscore spellings so flags line up with the config keys.
	root.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	root.AddCommand(
		newRunCmd(app),
		newStatusCmd(app),
		newLogsCmd(app),
		newClearCmd(app),
	)

	return root
}
