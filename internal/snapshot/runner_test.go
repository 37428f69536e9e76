package snapshot

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultScope/internal/model"
	"vaultScope/internal/observability"
	"vaultScope/internal/vault"
)

type staticResolver struct {
	mu    sync.Mutex
	calls int
}

func (s *staticResolver) Yield(_ context.Context, v vault.Vault) vault.Yield {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return vault.Yield{
		Vault: v.Name(),
		Kind:  v.Kind(),
		Base:  decimal.RequireFromString("0.02"),
		Additional: vault.AdditionalYield{
			Rate:    decimal.RequireFromString("0.01"),
			Harvest: decimal.Zero,
			Total:   decimal.RequireFromString("0.01"),
		},
		APR:      decimal.RequireFromString("0.03"),
		APY:      decimal.RequireFromString("0.0304"),
		PoolSize: decimal.RequireFromString("1000"),
	}
}

type memoryStorage struct {
	mu       sync.Mutex
	failures int
	batches  [][]model.YieldSnapshot
}

func (m *memoryStorage) PutSnapshots(snapshots []model.YieldSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("disk full")
	}
	m.batches = append(m.batches, snapshots)
	return nil
}

// blockingStorage only returns once the write context is done.
type blockingStorage struct {
	once    sync.Once
	started chan struct{}
}

func (b *blockingStorage) PutSnapshots([]model.YieldSnapshot) error {
	return errors.New("context-free write")
}

func (b *blockingStorage) PutSnapshotsContext(ctx context.Context, _ []model.YieldSnapshot) error {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return ctx.Err()
}

func testVaults() []vault.Vault {
	return []vault.Vault{
		&vault.BestYield{Label: "best", Token: common.HexToAddress("0x1111111111111111111111111111111111111111")},
		&vault.Staked{Label: "stk", Staking: common.HexToAddress("0x2222222222222222222222222222222222222222")},
	}
}

func TestRunnerWritesEveryRound(t *testing.T) {
	resolver := &staticResolver{}
	sink := &memoryStorage{failures: 2}
	metrics := observability.NewMetrics("test")
	checkpoint := filepath.Join(t.TempDir(), "checkpoint.json")

	runner := NewRunner(RunConfig{
		ChainID:        1,
		Interval:       time.Millisecond,
		Iterations:     3,
		MaxRetries:     3,
		RetryBackoff:   time.Millisecond,
		CheckpointPath: checkpoint,
	}, resolver, testVaults(), sink, nil, metrics)

	require.NoError(t, runner.Run(context.Background()))

	assert.Equal(t, 6, resolver.calls)
	require.Len(t, sink.batches, 3)
	first := sink.batches[0]
	require.Len(t, first, 2)
	assert.Equal(t, "best", first[0].VaultName)
	assert.Equal(t, "best-yield", first[0].VaultKind)
	assert.Equal(t, "0.02", first[0].BaseAPR)
	assert.Equal(t, "0", first[0].RewardAPR)
	assert.Equal(t, "0", first[1].BaseAPR)
	assert.Equal(t, "0.02", first[1].RewardAPR)
	assert.Equal(t, uint64(1), first[1].ChainID)

	assert.Equal(t, 6.0, testutil.ToFloat64(metrics.SnapshotsWritten))

	cp, ok, err := NewCheckpointStore(checkpoint).Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, cp.Snapshots)
}

func TestRunnerStopsWhenStorageKeepsFailing(t *testing.T) {
	sink := &memoryStorage{failures: 10}
	runner := NewRunner(RunConfig{
		Interval:     time.Millisecond,
		Iterations:   1,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	}, &staticResolver{}, testVaults(), sink, nil, nil)

	err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store snapshots")
	assert.Equal(t, 8, sink.failures)
}

func TestRunnerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &memoryStorage{}
	runner := NewRunner(RunConfig{Interval: time.Hour}, &staticResolver{}, testVaults(), sink, nil, nil)

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.batches) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerCancelsInFlightWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &blockingStorage{started: make(chan struct{})}
	runner := NewRunner(RunConfig{Interval: time.Hour, MaxRetries: 3, RetryBackoff: time.Millisecond},
		&staticResolver{}, testVaults(), sink, nil, nil)

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case <-sink.started:
	case <-time.After(time.Second):
		t.Fatal("write never started")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("write was not cancelled")
	}
}

func TestRunnerWaitsForRecentCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, NewCheckpointStore(path).Save(time.Now(), 2))

	sink := &memoryStorage{}
	runner := NewRunner(RunConfig{Interval: time.Hour, Iterations: 1, CheckpointPath: path},
		&staticResolver{}, testVaults(), sink, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, runner.Run(ctx), context.DeadlineExceeded)
	assert.Empty(t, sink.batches)
}

func TestRunnerValidatesConfig(t *testing.T) {
	sink := &memoryStorage{}
	cases := []*Runner{
		NewRunner(RunConfig{Interval: time.Second}, nil, testVaults(), sink, nil, nil),
		NewRunner(RunConfig{Interval: time.Second}, &staticResolver{}, testVaults(), nil, nil, nil),
		NewRunner(RunConfig{Interval: time.Second}, &staticResolver{}, nil, sink, nil, nil),
		NewRunner(RunConfig{}, &staticResolver{}, testVaults(), sink, nil, nil),
	}
	for i, runner := range cases {
		if err := runner.Run(context.Background()); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestWithRetryStopsAfterMax(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 2, time.Millisecond, func(context.Context, int) error {
		attempts++
		return errors.New("boom")
	})
	if err == nil || attempts != 3 {
		t.Fatalf("expected 3 attempts and an error, got %d, %v", attempts, err)
	}
}
