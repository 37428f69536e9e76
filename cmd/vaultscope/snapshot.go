package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vaultScope/internal/config"
	"vaultScope/internal/observability"
	"vaultScope/internal/snapshot"
	"vaultScope/internal/storage"
	"vaultScope/internal/storage/postgres"
)

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSnapshot(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("")
	a, err := newApp(ctx, cfg.Config, logger, metrics)
	if err != nil {
		return err
	}
	defer a.Close()

	var sink storage.Storage = storage.NewJsonlStorage(cfg.Out)
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sink = &postgres.SnapshotSink{Store: store, Timeout: 30 * time.Second}
	}

	if cfg.MetricsAddr != "" {
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer server.Close()
	}

	runner := snapshot.NewRunner(snapshot.RunConfig{
		ChainID:        a.chain.ChainID(),
		Interval:       cfg.Interval,
		Iterations:     cfg.Iterations,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
		CheckpointPath: cfg.Checkpoint,
	}, a.service, a.vaults, sink, logger, metrics)

	logger.Info("snapshot start",
		zap.Duration("interval", cfg.Interval),
		zap.Int("iterations", cfg.Iterations),
		zap.String("out", cfg.Out),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.String("checkpoint", cfg.Checkpoint),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
