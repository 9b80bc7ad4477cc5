// Command agentcored runs the agent runtime's gateway process: the
// WebSocket control channel, the session/turn/store stack behind it, and
// a small set of operator commands (serve, migrate, doctor). Grounded on
// the teacher's cmd/nexus/main.go cobra root-command layout, trimmed of
// the channel-bot subcommands and flags this runtime has no use for.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "agentcored",
		Short: "Runtime core gateway for the multi-provider coding agent",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "agentcore.yaml", "path to the runtime config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newMigrateCmd(&configPath))
	root.AddCommand(newDoctorCmd(&configPath))
	return root
}
