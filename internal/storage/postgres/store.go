package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vaultScope/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS yield_snapshots (
	chain_id      BIGINT      NOT NULL,
	vault_address TEXT        NOT NULL,
	collected_at  TIMESTAMPTZ NOT NULL,
	vault_name    TEXT        NOT NULL,
	vault_kind    TEXT        NOT NULL,
	base_apr      NUMERIC     NOT NULL,
	rate_apr      NUMERIC     NOT NULL,
	harvest_apr   NUMERIC     NOT NULL,
	reward_apr    NUMERIC     NOT NULL,
	total_apr     NUMERIC     NOT NULL,
	apy           NUMERIC     NOT NULL,
	pool_size     NUMERIC     NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, vault_address, collected_at)
)`

// Store provides Postgres persistence for yield snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the snapshot table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// UpsertSnapshots inserts or updates yield snapshots.
func (s *Store) UpsertSnapshots(ctx context.Context, snapshots []model.YieldSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(`
			INSERT INTO yield_snapshots (
				chain_id, vault_address, collected_at, vault_name, vault_kind,
				base_apr, rate_apr, harvest_apr, reward_apr, total_apr, apy, pool_size,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
			ON CONFLICT (chain_id, vault_address, collected_at)
			DO UPDATE SET
				vault_name = EXCLUDED.vault_name,
				vault_kind = EXCLUDED.vault_kind,
				base_apr = EXCLUDED.base_apr,
				rate_apr = EXCLUDED.rate_apr,
				harvest_apr = EXCLUDED.harvest_apr,
				reward_apr = EXCLUDED.reward_apr,
				total_apr = EXCLUDED.total_apr,
				apy = EXCLUDED.apy,
				pool_size = EXCLUDED.pool_size,
				updated_at = now()
		`,
			int64(snap.ChainID),
			snap.VaultAddress,
			snap.CollectedAt,
			snap.VaultName,
			snap.VaultKind,
			numeric(snap.BaseAPR),
			numeric(snap.RateAPR),
			numeric(snap.HarvestAPR),
			numeric(snap.RewardAPR),
			numeric(snap.TotalAPR),
			numeric(snap.APY),
			numeric(snap.PoolSize),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// SnapshotSink adapts Store to the storage.Storage interface.
type SnapshotSink struct {
	Store   *Store
	Timeout time.Duration
}

// PutSnapshots upserts snapshots within the sink timeout.
func (s *SnapshotSink) PutSnapshots(snapshots []model.YieldSnapshot) error {
	return s.PutSnapshotsContext(context.Background(), snapshots)
}

// PutSnapshotsContext upserts snapshots, giving up when ctx is done or the
// sink timeout passes.
func (s *SnapshotSink) PutSnapshotsContext(ctx context.Context, snapshots []model.YieldSnapshot) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	return s.Store.UpsertSnapshots(ctx, snapshots)
}

func numeric(value string) string {
	if value == "" {
		return "0"
	}
	return value
}
