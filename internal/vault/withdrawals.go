package vault

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vaultScope/internal/contracts"
	"vaultScope/internal/epoch"
	"vaultScope/internal/multicall"
	"vaultScope/internal/yieldmath"
)

const (
	epochBatch = iota
	requestBatch
)

// Claim is a queued withdrawal and its current eligibility.
type Claim struct {
	Request   epoch.WithdrawRequest `json:"request"`
	Amount    string                `json:"amount"`
	State     epoch.ClaimState      `json:"state"`
	Remaining time.Duration         `json:"remaining"`
}

// Withdrawals reads the epoch state of c and the user's queued requests in a
// single submission and evaluates each request at now. The epoch data is nil
// when any of its fields could not be read, in which case every request is
// pending.
func (s *Service) Withdrawals(ctx context.Context, c *Credit, user common.Address, now time.Time) ([]Claim, *epoch.Data) {
	cdoABI, err := contracts.CDOABI()
	if err != nil {
		s.logger.Debug("cdo abi unavailable", zap.Error(err))
		return nil, nil
	}
	strategyABI, err := contracts.CreditStrategyABI()
	if err != nil {
		s.logger.Debug("strategy abi unavailable", zap.Error(err))
		return nil, nil
	}
	cdo := multicall.NewContract(c.CDO, cdoABI)
	strategy := multicall.NewContract(c.Strategy, strategyABI)

	batches := make([][]multicall.Descriptor, 2)
	batches[epochBatch] = multicall.Compact([]multicall.Descriptor{
		multicall.BuildOrZero(cdo, "isEpochRunning", "running"),
		multicall.BuildOrZero(cdo, "bufferPeriod", "buffer"),
		multicall.BuildOrZero(cdo, "allowInstantWithdraw", "allowInstant"),
		multicall.BuildOrZero(cdo, "instantWithdrawDelay", "instantDelay"),
		multicall.BuildOrZero(strategy, "epochEndDate", "end"),
		multicall.BuildOrZero(strategy, "epochDuration", "duration"),
		multicall.BuildOrZero(strategy, "pendingWithdraws", "pending"),
		multicall.BuildOrZero(strategy, "instantWithdrawDeadline", "instantDeadline"),
	})
	batches[requestBatch] = multicall.Compact([]multicall.Descriptor{
		multicall.BuildOrZero(strategy, "withdrawsRequests", "standard", user),
		multicall.BuildOrZero(strategy, "instantWithdrawsRequests", "instant", user),
	})

	grouped := s.execute(ctx, c.Label, batches)
	if grouped == nil {
		return nil, nil
	}

	data := epochData(byCorrelation(grouped, epochBatch))
	if data == nil {
		s.logger.Debug("epoch data incomplete", zap.String("vault", c.Label))
	}

	requests := byCorrelation(grouped, requestBatch)
	var claims []Claim
	for _, req := range []struct {
		key     string
		instant bool
	}{{"standard", false}, {"instant", true}} {
		amount, ok := bigResult(requests, req.key)
		if !ok || amount.Sign() <= 0 {
			continue
		}
		request := epoch.WithdrawRequest{Amount: amount, Instant: req.instant}
		state := epoch.Evaluate(now, data, request)
		claims = append(claims, Claim{
			Request:   request,
			Amount:    yieldmath.FormatUnits(amount, c.Decimals),
			State:     state,
			Remaining: epoch.Remaining(now, state),
		})
	}
	return claims, data
}

func epochData(results map[string]multicall.Result) *epoch.Data {
	running, okRunning := boolResult(results, "running")
	allow, okAllow := boolResult(results, "allowInstant")
	buffer, okBuffer := durationResult(results, "buffer")
	delay, okDelay := durationResult(results, "instantDelay")
	end, okEnd := bigResult(results, "end")
	duration, okDuration := durationResult(results, "duration")
	pending, okPending := bigResult(results, "pending")
	deadline, okDeadline := bigResult(results, "instantDeadline")
	if !(okRunning && okAllow && okBuffer && okDelay && okEnd && okDuration && okPending && okDeadline) {
		return nil
	}

	return epoch.NewData(epoch.Data{
		IsEpochRunning:          running,
		EpochEnd:                unixTime(end),
		EpochDuration:           duration,
		BufferPeriod:            buffer,
		InstantWithdrawDelay:    delay,
		InstantWithdrawDeadline: unixTime(deadline),
		AllowInstantWithdraw:    allow,
		PendingWithdraws:        pending,
	})
}

// Performance is the realized APY of a position worth current that was opened
// with deposited at depositedAt. It reports false for an empty deposit or a
// position opened no earlier than now.
func Performance(deposited, current decimal.Decimal, depositedAt, now time.Time) (decimal.Decimal, bool) {
	if deposited.Sign() <= 0 {
		return decimal.Zero, false
	}
	earnings := current.Sub(deposited).DivRound(deposited, 18)
	return yieldmath.RealizedApy(earnings, now.Sub(depositedAt))
}

func unixTime(v *big.Int) time.Time {
	if !v.IsInt64() {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}

// durationResult reads a seconds value. Values that do not fit a
// time.Duration count as unreadable.
func durationResult(results map[string]multicall.Result, key string) (time.Duration, bool) {
	v, ok := bigResult(results, key)
	if !ok || v.Sign() < 0 || !v.IsInt64() || v.Int64() > math.MaxInt64/int64(time.Second) {
		return 0, false
	}
	return time.Duration(v.Int64()) * time.Second, true
}
