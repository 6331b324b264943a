package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/replichat/replichat/internal/audit"
	"github.com/replichat/replichat/internal/chat"
	"github.com/replichat/replichat/internal/config"
	"github.com/replichat/replichat/internal/metrics"
	"github.com/replichat/replichat/internal/replica"
)

type serverConfig struct {
	configPath     string
	dataDir        string
	metricsAddr    string
	proberInterval time.Duration
}

func newServerCmd(logLevel *string) *cobra.Command {
	cfg := &serverConfig{}

	cmd := &cobra.Command{
		Use:   "server <host> <port>",
		Short: "Run one replica of the chain-replicated chat service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid port %q: %w", args[1], err)
			}
			return runServer(cmd.Context(), args[0], port, cfg, *logLevel)
		},
	}

	cmd.Flags().StringVar(&cfg.configPath, "config", envOrDefault("REPLICHAT_CONFIG", config.DefaultPath), "Chain topology config file")
	cmd.Flags().StringVar(&cfg.dataDir, "data-dir", envOrDefault("REPLICHAT_DATA_DIR", "."), "Directory for the db file and audit trail")
	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", envOrDefault("REPLICHAT_METRICS_ADDR", ":2112"), "Prometheus /metrics listen address")
	cmd.Flags().DurationVar(&cfg.proberInterval, "prober-interval", 5*time.Second, "Downstream liveness probe interval")

	return cmd
}

func runServer(ctx context.Context, host string, port int, cfg *serverConfig, logLevel string) error {
	logger, err := buildLogger(logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	addr := config.Addr{Host: host, Port: port}
	chainCfg, err := config.Load(cfg.configPath)
	if err != nil {
		return fmt.Errorf("failed to load chain config: %w", err)
	}
	if !chainCfg.Contains(addr) {
		return fmt.Errorf("%s is not a configured chain member in %s", addr, cfg.configPath)
	}

	dbPath := chat.DbPath(cfg.dataDir, host, port)
	db, err := chat.LoadDb(dbPath)
	if err != nil {
		return fmt.Errorf("failed to load db: %w", err)
	}

	auditPath := fmt.Sprintf("%s/%s-%d-audit.db", cfg.dataDir, host, port)
	trail, err := audit.Open(auditPath, addr, logger)
	if err != nil {
		return fmt.Errorf("failed to open audit trail: %w", err)
	}
	defer trail.Close()

	reg := metrics.New()

	state := replica.NewState(addr, chainCfg, db, replica.TCPDialer{}, logger, trail, reg)

	ln, err := net.Listen("tcp", addr.String())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	state.ConnectUpstream(ctx)

	stopProbe, err := state.StartLivenessProbe(ctx, cfg.proberInterval)
	if err != nil {
		return fmt.Errorf("failed to start downstream liveness probe: %w", err)
	}
	defer stopProbe() //nolint:errcheck

	metricsSrv := &http.Server{Addr: cfg.metricsAddr, Handler: reg.Handler()}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", cfg.metricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server error", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("replica listening",
		zap.String("addr", addr.String()),
		zap.Bool("is_primary", state.IsPrimary()),
		zap.String("db_path", dbPath),
	)

	return state.Serve(ctx, ln)
}
