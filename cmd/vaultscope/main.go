package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "vaultscope",
		Short:        "Vault yield reader",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	yieldCmd := &cobra.Command{
		Use:   "yield",
		Short: "Resolve the yield of every configured vault",
		RunE:  runYield,
	}

	addChainFlags(yieldCmd)
	yieldCmd.Flags().String("deposit", "", "preview the yield after depositing this amount of underlying")

	root.AddCommand(yieldCmd)

	epochCmd := &cobra.Command{
		Use:   "epoch",
		Short: "Show the withdrawal claims of a user on credit vaults",
		RunE:  runEpoch,
	}

	addChainFlags(epochCmd)
	epochCmd.Flags().String("user", "", "user address")
	epochCmd.Flags().String("at", "", "evaluation time (unix seconds or RFC3339), empty means the latest block")
	epochCmd.Flags().String("deposited", "", "deposited amount of a position to report the realized APY of")
	epochCmd.Flags().String("current", "", "current value of the position")
	epochCmd.Flags().String("since", "", "deposit time of the position (unix seconds or RFC3339)")

	root.AddCommand(epochCmd)

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Periodically persist vault yields",
		RunE:  runSnapshot,
	}

	addChainFlags(snapshotCmd)
	snapshotCmd.Flags().String("out", "./data/snapshots.jsonl", "output JSONL path")
	snapshotCmd.Flags().String("pg-dsn", "", "Postgres DSN, replaces the JSONL output when set")
	snapshotCmd.Flags().String("checkpoint", "./data/snapshot_checkpoint.json", "checkpoint file path, empty disables it")
	snapshotCmd.Flags().Duration("interval", 10*time.Minute, "time between snapshots")
	snapshotCmd.Flags().Int("iterations", 0, "stop after this many snapshots, 0 runs until interrupted")
	snapshotCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	snapshotCmd.Flags().Int("max-retries", 5, "maximum storage retry attempts")
	snapshotCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")

	root.AddCommand(snapshotCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addChainFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().Uint64("chain-id", 0, "expected chain id, 0 accepts whatever the node reports")
	cmd.Flags().Int("fallback-concurrency", 0, "parallel calls when the aggregate path fails, 0 uses the default")
	cmd.Flags().String("explorer-url", "https://api.etherscan.io/api", "block explorer API URL")
	cmd.Flags().StringSlice("explorer-keys", nil, "explorer API keys (comma-separated)")
	cmd.Flags().Duration("platform-cache-ttl", 5*time.Minute, "cache lifetime of platform API responses, 0 disables caching")
	cmd.Flags().Duration("max-harvest-age", 14*24*time.Hour, "harvests older than this add no yield")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
