package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/replichat/replichat/internal/clientcli"
)

func newClientCmd(logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client <host:port>",
		Short: "Run an interactive client against one replica",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context(), args[0], *logLevel)
		},
	}
	return cmd
}

func runClient(ctx context.Context, addr string, logLevel string) error {
	logger, err := buildLogger(logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	c, err := clientcli.Dial(ctx, addr, os.Stdout, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Fprintf(os.Stdout, "connected to %s. Commands: create, login, delete, list, send, quit.\n", addr)
	return c.RunREPL(ctx, os.Stdin)
}
