package vault

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vaultScope/internal/contracts"
	"vaultScope/internal/multicall"
	"vaultScope/internal/yieldmath"
)

const (
	splitBatch = iota
	poolBatch
	baseBatch
)

// trancheReads holds what one submission learns about a tranche.
type trancheReads struct {
	splitRatio   decimal.Decimal
	fullAlloc    decimal.Decimal
	hasSplit     bool
	totalValue   decimal.Decimal
	trancheValue decimal.Decimal
	hasTranche   bool
	lastHarvest  uint64
	baseApr      decimal.Decimal
}

func (s *Service) readTranche(ctx context.Context, t *Tranche) trancheReads {
	reads := trancheReads{
		splitRatio:   decimal.Zero,
		fullAlloc:    decimal.Zero,
		totalValue:   decimal.Zero,
		trancheValue: decimal.Zero,
		baseApr:      decimal.Zero,
	}

	cdoABI, err := contracts.CDOABI()
	if err != nil {
		s.logger.Debug("cdo abi unavailable", zap.Error(err))
		return reads
	}
	erc20ABI, err := contracts.ERC20ABI()
	if err != nil {
		s.logger.Debug("erc20 abi unavailable", zap.Error(err))
		return reads
	}
	cdo := multicall.NewContract(t.CDO, cdoABI)
	trancheToken := multicall.NewContract(t.Tranche, erc20ABI)

	batches := make([][]multicall.Descriptor, 3)
	batches[splitBatch] = multicall.Compact([]multicall.Descriptor{
		multicall.BuildOrZero(cdo, "trancheAPRSplitRatio", "ratio"),
		multicall.BuildOrZero(cdo, "FULL_ALLOC", "fullAlloc"),
	})
	batches[poolBatch] = multicall.Compact([]multicall.Descriptor{
		multicall.BuildOrZero(cdo, "getContractValue", "contractValue"),
		multicall.BuildOrZero(trancheToken, "totalSupply", "supply"),
		multicall.BuildOrZero(cdo, "virtualPrice", "price", t.Tranche),
		multicall.BuildOrZero(cdo, "lastHarvest", "lastHarvest"),
	})
	batches[baseBatch] = multicall.Compact([]multicall.Descriptor{
		multicall.BuildOrZero(cdo, "getApr", "apr", t.Tranche),
	})

	grouped := s.execute(ctx, t.Label, batches)
	if grouped == nil {
		return reads
	}

	split := byCorrelation(grouped, splitBatch)
	ratio, okRatio := bigResult(split, "ratio")
	fullAlloc, okFull := bigResult(split, "fullAlloc")
	if okRatio && okFull && fullAlloc.Sign() > 0 {
		reads.splitRatio = decimal.NewFromBigInt(ratio, 0)
		reads.fullAlloc = decimal.NewFromBigInt(fullAlloc, 0)
		reads.hasSplit = true
	}

	pool := byCorrelation(grouped, poolBatch)
	if contractValue, ok := bigResult(pool, "contractValue"); ok {
		reads.totalValue = yieldmath.FromUnits(contractValue, t.Decimals)
	}
	supply, okSupply := bigResult(pool, "supply")
	price, okPrice := bigResult(pool, "price")
	if okSupply && okPrice {
		reads.trancheValue = yieldmath.FromUnits(supply, 18).Mul(yieldmath.FromUnits(price, t.Decimals))
		reads.hasTranche = reads.trancheValue.Sign() > 0
	}
	if block, ok := bigResult(pool, "lastHarvest"); ok && block.IsUint64() {
		reads.lastHarvest = block.Uint64()
	}

	base := byCorrelation(grouped, baseBatch)
	if apr, ok := bigResult(base, "apr"); ok {
		reads.baseApr = yieldmath.PercentFromWad(apr)
	}
	return reads
}

func (s *Service) additional(ctx context.Context, t *Tranche, reads trancheReads) AdditionalYield {
	out := zeroAdditional()
	log := s.logger.With(zap.String("vault", t.Label))

	if t.BaseRate != nil && s.rates != nil {
		switch {
		case !reads.hasSplit || !reads.hasTranche || reads.totalValue.Sign() <= 0:
			log.Debug("split or pool reads missing, rate component is zero")
		default:
			rate, err := s.rates.Rate(ctx, *t.BaseRate)
			if err != nil {
				log.Debug("base rate unavailable", zap.Error(err))
				break
			}
			out.Rate = yieldmath.TrancheApr(rate, reads.splitRatio, reads.fullAlloc,
				reads.trancheValue, reads.totalValue, t.Senior)
		}
	}

	if t.TrackHarvest {
		out.Harvest = s.harvestApr(ctx, t, reads, log)
	}

	out.Total = out.Rate.Add(out.Harvest)
	return out
}

// harvestApr annualizes the underlying captured by the CDO in its last
// harvest block, assuming weekly harvests.
func (s *Service) harvestApr(ctx context.Context, t *Tranche, reads trancheReads, log *zap.Logger) decimal.Decimal {
	if s.transfers == nil || reads.lastHarvest == 0 || reads.totalValue.Sign() <= 0 {
		return decimal.Zero
	}

	if s.blocks != nil {
		harvestedAt, err := s.blocks.BlockTimestamp(ctx, reads.lastHarvest)
		if err != nil {
			log.Debug("harvest block time unavailable", zap.Uint64("block", reads.lastHarvest), zap.Error(err))
			return decimal.Zero
		}
		if age := s.now().Sub(harvestedAt); age > s.maxHarvestAge {
			log.Debug("harvest too old", zap.Duration("age", age))
			return decimal.Zero
		}
	}

	transfers, err := s.transfers.TokenTransfers(ctx, t.CDO, reads.lastHarvest)
	if err != nil {
		log.Debug("harvest transfers unavailable", zap.Uint64("block", reads.lastHarvest), zap.Error(err))
		return decimal.Zero
	}

	captured := new(big.Int)
	for _, tr := range transfers {
		if tr.Token != t.Underlying || tr.To != t.CDO || tr.Value == nil {
			continue
		}
		captured.Add(captured, tr.Value)
	}
	return yieldmath.HarvestApr(yieldmath.FromUnits(captured, t.Decimals), reads.totalValue, yieldmath.WeeklyPeriods)
}

