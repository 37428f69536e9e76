// Package snapshot periodically resolves every configured vault and persists
// the yield figures.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vaultScope/internal/model"
	"vaultScope/internal/observability"
	"vaultScope/internal/storage"
	"vaultScope/internal/vault"
)

// Resolver computes the yield of a vault. vault.Service satisfies it.
type Resolver interface {
	Yield(ctx context.Context, v vault.Vault) vault.Yield
}

// RunConfig holds runtime settings for the poller.
type RunConfig struct {
	ChainID        uint64
	Interval       time.Duration
	Iterations     int
	MaxRetries     int
	RetryBackoff   time.Duration
	CheckpointPath string
}

// Runner re-resolves vault yields on an interval and writes them to storage.
type Runner struct {
	cfg        RunConfig
	resolver   Resolver
	vaults     []vault.Vault
	storage    storage.Storage
	logger     *zap.Logger
	metrics    *observability.Metrics
	checkpoint *CheckpointStore
	now        func() time.Time
}

// NewRunner builds a Runner with its dependencies. metrics may be nil.
func NewRunner(cfg RunConfig, resolver Resolver, vaults []vault.Vault, storageSink storage.Storage, logger *zap.Logger, metrics *observability.Metrics) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		resolver:   resolver,
		vaults:     vaults,
		storage:    storageSink,
		logger:     logger,
		metrics:    metrics,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath),
		now:        time.Now,
	}
}

// Run executes the polling loop until Iterations rounds completed, or until
// ctx is cancelled when Iterations is zero.
func (r *Runner) Run(ctx context.Context) error {
	if r.resolver == nil {
		return fmt.Errorf("resolver is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if len(r.vaults) == 0 {
		return fmt.Errorf("at least one vault is required")
	}
	if r.cfg.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	if err := r.waitForCheckpoint(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for round := 1; ; round++ {
		if err := r.runOnce(ctx); err != nil {
			return err
		}
		if r.cfg.Iterations > 0 && round >= r.cfg.Iterations {
			r.logger.Info("snapshot rounds complete", zap.Int("rounds", round))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitForCheckpoint delays the first round so that a restart does not
// snapshot more often than the interval.
func (r *Runner) waitForCheckpoint(ctx context.Context) error {
	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	wait := cp.LastSnapshotAt.Add(r.cfg.Interval).Sub(r.now())
	if wait <= 0 {
		return nil
	}
	r.logger.Info("resume from checkpoint",
		zap.Time("last_snapshot", cp.LastSnapshotAt),
		zap.Duration("wait", wait),
	)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Runner) runOnce(ctx context.Context) error {
	collectedAt := r.now().UTC()
	snapshots := make([]model.YieldSnapshot, 0, len(r.vaults))
	for _, v := range r.vaults {
		if err := ctx.Err(); err != nil {
			return err
		}
		y := r.resolver.Yield(ctx, v)
		snapshots = append(snapshots, FromYield(r.cfg.ChainID, v, y, collectedAt))
	}

	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context, attempt int) error {
		err := storage.Put(ctx, r.storage, snapshots)
		if err != nil {
			r.logger.Warn("store snapshots failed", zap.Error(err), zap.Int("attempt", attempt))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("store snapshots: %w", err)
	}

	if err := r.checkpoint.Save(collectedAt, len(snapshots)); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.SnapshotsWritten.Add(float64(len(snapshots)))
		r.metrics.LastSnapshot.Set(float64(collectedAt.Unix()))
	}

	r.logger.Info("snapshot complete", zap.Int("vaults", len(snapshots)), zap.Time("collected_at", collectedAt))
	return nil
}

// FromYield flattens a resolved yield into a storable snapshot.
func FromYield(chainID uint64, v vault.Vault, y vault.Yield, at time.Time) model.YieldSnapshot {
	// Staking rewards are the whole base of a staked vault.
	base, rewards := y.Base, decimal.Zero
	if v.Kind() == vault.KindStaked {
		base, rewards = decimal.Zero, y.Base
	}
	return model.YieldSnapshot{
		ChainID:      chainID,
		VaultName:    v.Name(),
		VaultKind:    string(v.Kind()),
		VaultAddress: v.Address().Hex(),
		BaseAPR:      base.String(),
		RateAPR:      y.Additional.Rate.String(),
		HarvestAPR:   y.Additional.Harvest.String(),
		RewardAPR:    rewards.String(),
		TotalAPR:     y.APR.String(),
		APY:          y.APY.String(),
		PoolSize:     y.PoolSize.String(),
		CollectedAt:  at,
	}
}
