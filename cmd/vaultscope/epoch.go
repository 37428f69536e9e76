package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vaultScope/internal/config"
	"vaultScope/internal/epoch"
	"vaultScope/internal/observability"
	"vaultScope/internal/vault"
)

type epochReport struct {
	Vault  string        `json:"vault"`
	At     time.Time     `json:"at"`
	Epoch  *epoch.Data   `json:"epoch"`
	Claims []vault.Claim `json:"claims"`
}

type performanceReport struct {
	Deposited   decimal.Decimal  `json:"deposited"`
	Current     decimal.Decimal  `json:"current"`
	DepositedAt time.Time        `json:"depositedAt"`
	At          time.Time        `json:"at"`
	APY         *decimal.Decimal `json:"apy"`
}

// position is a user-supplied deposit whose realized APY is reported.
type position struct {
	deposited decimal.Decimal
	current   decimal.Decimal
	since     time.Time
}

func parsePosition(cfg config.EpochConfig) (*position, error) {
	if cfg.Deposited == "" {
		return nil, nil
	}
	deposited, err := decimal.NewFromString(cfg.Deposited)
	if err != nil {
		return nil, fmt.Errorf("invalid deposited amount: %w", err)
	}
	if cfg.Current == "" {
		return nil, fmt.Errorf("--current is required with --deposited")
	}
	current, err := decimal.NewFromString(cfg.Current)
	if err != nil {
		return nil, fmt.Errorf("invalid current amount: %w", err)
	}
	if cfg.Since == 0 {
		return nil, fmt.Errorf("--since is required with --deposited")
	}
	return &position{
		deposited: deposited,
		current:   current,
		since:     time.Unix(int64(cfg.Since), 0).UTC(),
	}, nil
}

func (p position) report(at time.Time) performanceReport {
	out := performanceReport{Deposited: p.deposited, Current: p.current, DepositedAt: p.since, At: at}
	if apy, ok := vault.Performance(p.deposited, p.current, p.since, at); ok {
		out.APY = &apy
	}
	return out
}

func runEpoch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadEpoch(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if !common.IsHexAddress(cfg.User) {
		return fmt.Errorf("a valid --user address is required")
	}
	user := common.HexToAddress(cfg.User)

	pos, err := parsePosition(cfg)
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

	a, err := newApp(ctx, cfg.Config, logger, observability.NewMetrics(""))
	if err != nil {
		return err
	}
	defer a.Close()

	// Epoch deadlines are block times, so evaluate against the chain head.
	var now time.Time
	if cfg.At > 0 {
		now = time.Unix(int64(cfg.At), 0).UTC()
	} else if now, err = a.chain.LatestTimestamp(ctx); err != nil {
		return fmt.Errorf("latest block time: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	credits := 0
	for _, v := range a.vaults {
		c, ok := v.(*vault.Credit)
		if !ok {
			continue
		}
		credits++
		claims, data := a.service.Withdrawals(ctx, c, user, now)
		if err := enc.Encode(epochReport{Vault: c.Name(), At: now, Epoch: data, Claims: claims}); err != nil {
			return err
		}
	}
	if credits == 0 {
		logger.Warn("no credit vaults configured")
	}

	if pos != nil {
		if err := enc.Encode(pos.report(now)); err != nil {
			return err
		}
	}
	logger.Debug("epoch report done", zap.Int("credit_vaults", credits))
	return nil
}
