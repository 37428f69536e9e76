package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"vaultScope/internal/config"
	"vaultScope/internal/observability"
	"vaultScope/internal/vault"
)

func runYield(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	var deposit decimal.Decimal
	if raw, _ := cmd.Flags().GetString("deposit"); strings.TrimSpace(raw) != "" {
		deposit, err = decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid deposit: %w", err)
		}
		if deposit.Sign() < 0 {
			return fmt.Errorf("deposit must not be negative")
		}
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, observability.NewMetrics(""))
	if err != nil {
		return err
	}
	defer a.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, v := range a.vaults {
		y := a.service.Yield(ctx, v)
		if deposit.Sign() > 0 {
			y = vault.PreviewDeposit(y, deposit)
		}
		if err := enc.Encode(y); err != nil {
			return err
		}
	}
	return nil
}
