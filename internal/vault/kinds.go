package vault

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vaultScope/internal/contracts"
	"vaultScope/internal/multicall"
	"vaultScope/internal/yieldmath"
)

func (s *Service) bestYield(ctx context.Context, b *BestYield) Yield {
	y := Yield{Base: decimal.Zero, Additional: zeroAdditional(), PoolSize: decimal.Zero}

	parsed, err := contracts.IdleTokenABI()
	if err != nil {
		s.logger.Debug("idle token abi unavailable", zap.Error(err))
		return y
	}
	token := multicall.NewContract(b.Token, parsed)
	grouped := s.execute(ctx, b.Label, [][]multicall.Descriptor{multicall.Compact([]multicall.Descriptor{
		multicall.BuildOrZero(token, "getAvgAPR", "apr"),
		multicall.BuildOrZero(token, "tokenPrice", "price"),
		multicall.BuildOrZero(token, "totalSupply", "supply"),
	})})
	results := byCorrelation(grouped, 0)

	if apr, ok := bigResult(results, "apr"); ok {
		y.Base = yieldmath.PercentFromWad(apr)
	}
	price, okPrice := bigResult(results, "price")
	supply, okSupply := bigResult(results, "supply")
	if okPrice && okSupply {
		y.PoolSize = yieldmath.FromUnits(supply, 18).Mul(yieldmath.FromUnits(price, b.Decimals))
	}
	return y
}

func (s *Service) stakedYield(ctx context.Context, st *Staked) Yield {
	y := Yield{Base: decimal.Zero, Additional: zeroAdditional(), PoolSize: decimal.Zero}

	parsed, err := contracts.StakingABI()
	if err != nil {
		s.logger.Debug("staking abi unavailable", zap.Error(err))
		return y
	}
	staking := multicall.NewContract(st.Staking, parsed)
	grouped := s.execute(ctx, st.Label, [][]multicall.Descriptor{multicall.Compact([]multicall.Descriptor{
		multicall.BuildOrZero(staking, "rewardRate", "rate"),
		multicall.BuildOrZero(staking, "totalSupply", "staked"),
		multicall.BuildOrZero(staking, "periodFinish", "finish"),
	})})
	results := byCorrelation(grouped, 0)

	staked, okStaked := bigResult(results, "staked")
	if !okStaked {
		return y
	}
	y.PoolSize = yieldmath.FromUnits(staked, st.Decimals)

	rate, okRate := bigResult(results, "rate")
	if !okRate {
		return y
	}
	if finish, ok := bigResult(results, "finish"); ok && finish.IsInt64() {
		if time.Unix(finish.Int64(), 0).Before(s.now()) {
			s.logger.Debug("reward period finished", zap.String("vault", st.Label))
			return y
		}
	}
	y.Base = yieldmath.RewardApr(yieldmath.FromUnits(rate, 18), y.PoolSize)
	return y
}
