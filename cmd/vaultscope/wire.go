package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"vaultScope/internal/chain"
	"vaultScope/internal/config"
	"vaultScope/internal/explorer"
	"vaultScope/internal/multicall"
	"vaultScope/internal/observability"
	"vaultScope/internal/platform"
	"vaultScope/internal/vault"
)

// app is the wired read stack shared by every command.
type app struct {
	chain    *chain.Client
	platform *platform.Client
	service  *vault.Service
	vaults   []vault.Vault
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) (*app, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	vaults, err := vault.FromConfigs(cfg.Vaults)
	if err != nil {
		return nil, err
	}
	if len(vaults) == 0 {
		return nil, fmt.Errorf("at least one vault is required")
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, cfg.ChainID)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	opts := []multicall.Option{
		multicall.WithFallbackConcurrency(cfg.FallbackConcurrency),
		multicall.WithMetrics(metrics),
	}
	for chainID, address := range cfg.MulticallAddresses {
		if !common.IsHexAddress(address) {
			chainClient.Close()
			return nil, fmt.Errorf("invalid multicall address for chain %d: %s", chainID, address)
		}
		opts = append(opts, multicall.WithAddress(chainID, common.HexToAddress(address)))
	}
	aggregator := multicall.NewAggregator(chainClient, chainClient.ChainID(), logger, opts...)

	platformClient, err := platform.NewClient(
		platform.WithCacheTTL(cfg.PlatformCacheTTL),
		platform.WithLogger(logger),
		platform.WithMetrics(metrics),
	)
	if err != nil {
		chainClient.Close()
		return nil, fmt.Errorf("platform client: %w", err)
	}

	explorerClient := explorer.NewClient(cfg.ExplorerURL, cfg.ExplorerKeys,
		explorer.WithChainID(chainClient.ChainID()),
		explorer.WithLogger(logger),
		explorer.WithMetrics(metrics),
	)

	service := vault.NewService(aggregator, logger,
		vault.WithRates(platformClient),
		vault.WithTransfers(explorerClient),
		vault.WithBlockTimes(chainClient),
		vault.WithMaxHarvestAge(cfg.MaxHarvestAge),
	)

	logger.Info("read stack ready",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("chain_id", chainClient.ChainID()),
		zap.Int("vaults", len(vaults)),
		zap.Int("explorer_keys", len(cfg.ExplorerKeys)),
	)

	return &app{
		chain:    chainClient,
		platform: platformClient,
		service:  service,
		vaults:   vaults,
	}, nil
}

func (a *app) Close() {
	a.platform.Close()
	a.chain.Close()
}
