package vault

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vaultScope/internal/explorer"
	"vaultScope/internal/multicall"
	"vaultScope/internal/platform"
	"vaultScope/internal/yieldmath"
)

// DefaultMaxHarvestAge is how long a harvest keeps contributing yield.
const DefaultMaxHarvestAge = 14 * 24 * time.Hour

// Batcher runs grouped read batches in a single submission.
type Batcher interface {
	ExecuteMultipleBatches(ctx context.Context, batches [][]multicall.Descriptor) ([][]multicall.Result, error)
}

// RateFetcher resolves off-chain rates.
type RateFetcher interface {
	Rate(ctx context.Context, src platform.RateSource) (decimal.Decimal, error)
}

// TransferLister lists token transfers of an address in one block.
type TransferLister interface {
	TokenTransfers(ctx context.Context, address common.Address, block uint64) ([]explorer.Transfer, error)
}

// BlockTimer returns block times.
type BlockTimer interface {
	BlockTimestamp(ctx context.Context, number uint64) (time.Time, error)
}

// AdditionalYield is the yield not reported by the vault contracts.
type AdditionalYield struct {
	Rate    decimal.Decimal `json:"rate"`
	Harvest decimal.Decimal `json:"harvest"`
	Total   decimal.Decimal `json:"total"`
}

// Yield bundles the yield figures of a vault.
type Yield struct {
	Vault      string          `json:"vault"`
	Kind       Kind            `json:"kind"`
	Base       decimal.Decimal `json:"base"`
	Additional AdditionalYield `json:"additional"`
	APR        decimal.Decimal `json:"apr"`
	APY        decimal.Decimal `json:"apy"`
	PoolSize   decimal.Decimal `json:"poolSize"`
}

// Option configures a Service.
type Option func(*Service)

// WithRates enables the off-chain rate component.
func WithRates(rates RateFetcher) Option {
	return func(s *Service) {
		s.rates = rates
	}
}

// WithTransfers enables the harvest component.
func WithTransfers(transfers TransferLister) Option {
	return func(s *Service) {
		s.transfers = transfers
	}
}

// WithBlockTimes enables the harvest age check.
func WithBlockTimes(blocks BlockTimer) Option {
	return func(s *Service) {
		s.blocks = blocks
	}
}

// WithMaxHarvestAge overrides DefaultMaxHarvestAge.
func WithMaxHarvestAge(age time.Duration) Option {
	return func(s *Service) {
		if age > 0 {
			s.maxHarvestAge = age
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service resolves vault yields. Every figure is best effort: a component
// that cannot be read degrades to zero and is logged at debug level.
type Service struct {
	batcher       Batcher
	rates         RateFetcher
	transfers     TransferLister
	blocks        BlockTimer
	maxHarvestAge time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// NewService creates a Service issuing reads through batcher.
func NewService(batcher Batcher, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		batcher:       batcher,
		maxHarvestAge: DefaultMaxHarvestAge,
		now:           time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Yield resolves the full yield of v.
func (s *Service) Yield(ctx context.Context, v Vault) Yield {
	var y Yield
	switch v := v.(type) {
	case *Credit:
		y = s.trancheYield(ctx, &v.Tranche)
	case *Tranche:
		y = s.trancheYield(ctx, v)
	case *BestYield:
		y = s.bestYield(ctx, v)
	case *Staked:
		y = s.stakedYield(ctx, v)
	default:
		return Yield{}
	}
	y.Vault = v.Name()
	y.Kind = v.Kind()
	return y.withTotals()
}

// AdditionalYield resolves the off-chain and harvest components of a tranche
// or credit vault. Other kinds have none.
func (s *Service) AdditionalYield(ctx context.Context, v Vault) AdditionalYield {
	var t *Tranche
	switch v := v.(type) {
	case *Credit:
		t = &v.Tranche
	case *Tranche:
		t = v
	default:
		return zeroAdditional()
	}
	reads := s.readTranche(ctx, t)
	return s.additional(ctx, t, reads)
}

// PreviewDeposit returns y as it would be after depositing amount, diluting
// the components paid out of a fixed pot: harvests and staking rewards.
func PreviewDeposit(y Yield, amount decimal.Decimal) Yield {
	if amount.Sign() <= 0 {
		return y
	}
	switch y.Kind {
	case KindTranche, KindCredit:
		y.Additional.Harvest = yieldmath.DilutedYield(y.Additional.Harvest, y.PoolSize, amount)
		y.Additional.Total = y.Additional.Rate.Add(y.Additional.Harvest)
	case KindStaked:
		y.Base = yieldmath.DilutedYield(y.Base, y.PoolSize, amount)
	}
	y.PoolSize = y.PoolSize.Add(amount)
	return y.withTotals()
}

func (y Yield) withTotals() Yield {
	y.APR = y.Base.Add(y.Additional.Total)
	y.APY = yieldmath.AprToApy(y.APR)
	return y
}

func zeroAdditional() AdditionalYield {
	return AdditionalYield{Rate: decimal.Zero, Harvest: decimal.Zero, Total: decimal.Zero}
}

func (s *Service) trancheYield(ctx context.Context, t *Tranche) Yield {
	reads := s.readTranche(ctx, t)
	return Yield{
		Base:       reads.baseApr,
		Additional: s.additional(ctx, t, reads),
		PoolSize:   reads.totalValue,
	}
}

func (s *Service) execute(ctx context.Context, vault string, batches [][]multicall.Descriptor) [][]multicall.Result {
	grouped, err := s.batcher.ExecuteMultipleBatches(ctx, batches)
	if err != nil {
		s.logger.Debug("vault reads failed", zap.String("vault", vault), zap.Error(err))
		return nil
	}
	return grouped
}

// byCorrelation indexes the successful results of a batch by their string correlation.
func byCorrelation(grouped [][]multicall.Result, batch int) map[string]multicall.Result {
	out := make(map[string]multicall.Result)
	if batch >= len(grouped) {
		return out
	}
	for _, res := range grouped[batch] {
		key, ok := res.Correlation.(string)
		if !ok || !res.OK() {
			continue
		}
		out[key] = res
	}
	return out
}

func bigResult(results map[string]multicall.Result, key string) (*big.Int, bool) {
	res, ok := results[key]
	if !ok {
		return nil, false
	}
	return res.BigInt()
}

func boolResult(results map[string]multicall.Result, key string) (bool, bool) {
	res, ok := results[key]
	if !ok {
		return false, false
	}
	return res.Bool()
}
