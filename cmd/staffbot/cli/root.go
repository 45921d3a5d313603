// Package cli holds the staffbot cobra commands.
package cli

import (
	"github.com/spf13/cobra"
)

// RootCmd builds the staffbot command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "staffbot",
		Short: "Discord staff list and game privilege reconciliation bot",
		Long: `staffbot keeps a self-healing staff list message in Discord and
reconciles in-game privileges queried over RCON with Discord roles.

Process settings come from the environment; guild layout and privilege
groups come from the YAML file at CONFIG_PATH.`,
		SilenceUsage: true,
	}
	root.AddCommand(runCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(repairCmd())
	root.AddCommand(pinfoCmd())
	root.AddCommand(workerCmd())
	return root
}
