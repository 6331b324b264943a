package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "replichatd",
		Short: "replichatd — chain-replicated chat service",
		Long: `replichatd runs a replica of the chain-replicated chat service, a
minimal interactive client against one, or the standalone Lamport-clock
simulation.`,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", envOrDefault("REPLICHAT_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	root.AddCommand(newServerCmd(&logLevel))
	root.AddCommand(newClientCmd(&logLevel))
	root.AddCommand(newClockSimCmd(&logLevel))
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("replichatd %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
