package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/replichat/replichat/internal/clocksim"
	"github.com/replichat/replichat/internal/metrics"
)

func newClockSimCmd(logLevel *string) *cobra.Command {
	var logDir string

	cmd := &cobra.Command{
		Use:   "clocksim",
		Short: "Run the standalone three-peer Lamport logical clock simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClockSim(cmd.Context(), logDir, *logLevel)
		},
	}

	cmd.Flags().StringVar(&logDir, "log-dir", envOrDefault("REPLICHAT_CLOCKSIM_LOG_DIR", "."), "Directory to write log1.txt, log2.txt, log3.txt into")

	return cmd
}

func runClockSim(ctx context.Context, logDir string, logLevel string) error {
	logger, err := buildLogger(logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log dir %s: %w", logDir, err)
	}

	reg := metrics.New()

	sim, err := clocksim.New(logDir, logger, reg)
	if err != nil {
		return fmt.Errorf("failed to build clock simulation: %w", err)
	}

	return sim.Run(ctx)
}
