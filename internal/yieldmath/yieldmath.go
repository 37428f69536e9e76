// Package yieldmath converts raw on-chain quantities into annualized yields.
// Every rate is a fraction: 0.05 means 5%.
package yieldmath

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// SecondsPerYear is the 365-day year used for every annualization.
	SecondsPerYear = int64(365 * 24 * time.Hour / time.Second)
	// CompoundingPeriods is the number of daily compounding steps per year.
	CompoundingPeriods = 365

	workPrecision   = 40
	resultPrecision = 18
	newtonMaxSteps  = 200
)

var (
	one = decimal.NewFromInt(1)

	// WeeklyPeriods is the number of weekly harvests in a year.
	WeeklyPeriods = decimal.RequireFromString("52.1429")

	newtonTolerance = decimal.New(1, -36)
)

// AprToApy compounds apr daily over a year: (1 + apr/365)^365 - 1.
func AprToApy(apr decimal.Decimal) decimal.Decimal {
	if apr.IsZero() {
		return decimal.Zero
	}
	rate := one.Add(apr.DivRound(decimal.NewFromInt(CompoundingPeriods), workPrecision))
	return powInt(rate, CompoundingPeriods).Sub(one).Round(resultPrecision)
}

// ApyToApr inverts AprToApy: 365 * ((1 + apy)^(1/365) - 1). It is defined for
// apy > -1 and returns zero otherwise.
func ApyToApr(apy decimal.Decimal) decimal.Decimal {
	if apy.IsZero() {
		return decimal.Zero
	}
	base := one.Add(apy)
	if base.Sign() <= 0 {
		return decimal.Zero
	}
	root := nthRoot(base, CompoundingPeriods)
	return root.Sub(one).Mul(decimal.NewFromInt(CompoundingPeriods)).Round(resultPrecision)
}

// DilutedYield scales a pool-size-sensitive yield component for a deposit of
// added on top of a pool of oldPoolSize. The component is returned unchanged
// when the resulting pool would be empty.
func DilutedYield(component, oldPoolSize, added decimal.Decimal) decimal.Decimal {
	newPool := oldPoolSize.Add(added)
	if newPool.Sign() <= 0 {
		return component
	}
	return component.Mul(oldPoolSize).DivRound(newPool, resultPrecision)
}

// RealizedApy annualizes the earnings fraction observed over duration and
// compounds it. It reports false while the duration is not positive.
func RealizedApy(earnings decimal.Decimal, duration time.Duration) (decimal.Decimal, bool) {
	seconds := int64(duration / time.Second)
	if seconds <= 0 {
		return decimal.Zero, false
	}
	apr := earnings.Mul(decimal.NewFromInt(SecondsPerYear)).DivRound(decimal.NewFromInt(seconds), workPrecision)
	return AprToApy(apr), true
}

// TrancheApr redistributes the strategy base APR between the two tranches of a
// CDO. splitRatio/fullAlloc is the senior share of the yield; the junior
// tranche gets the remainder. The share is then levered by the ratio between
// the whole pool and the tranche's own value.
func TrancheApr(baseApr, splitRatio, fullAlloc, trancheValue, totalValue decimal.Decimal, senior bool) decimal.Decimal {
	if fullAlloc.Sign() <= 0 || trancheValue.Sign() <= 0 || totalValue.Sign() <= 0 {
		return decimal.Zero
	}
	share := splitRatio
	if !senior {
		share = fullAlloc.Sub(splitRatio)
	}
	if share.Sign() <= 0 {
		return decimal.Zero
	}
	return baseApr.Mul(share).Mul(totalValue).
		DivRound(fullAlloc.Mul(trancheValue), resultPrecision)
}

// HarvestApr annualizes one harvest: captured / poolSize * periodsPerYear.
func HarvestApr(captured, poolSize, periodsPerYear decimal.Decimal) decimal.Decimal {
	if poolSize.Sign() <= 0 || captured.Sign() <= 0 {
		return decimal.Zero
	}
	return captured.Mul(periodsPerYear).DivRound(poolSize, resultPrecision)
}

// RewardApr annualizes a per-second reward emission over the staked total.
func RewardApr(ratePerSecond, totalStaked decimal.Decimal) decimal.Decimal {
	if totalStaked.Sign() <= 0 || ratePerSecond.Sign() <= 0 {
		return decimal.Zero
	}
	return ratePerSecond.Mul(decimal.NewFromInt(SecondsPerYear)).DivRound(totalStaked, resultPrecision)
}

// FromUnits converts a fixed-point integer with the given decimals.
func FromUnits(value *big.Int, decimals uint8) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -int32(decimals))
}

// PercentFromWad converts an 18-decimal percentage (5e18 = 5%) to a fraction.
func PercentFromWad(value *big.Int) decimal.Decimal {
	return FromUnits(value, 18).Shift(-2)
}

// FormatUnits renders a fixed-point integer as a decimal string with exactly
// decimals fractional digits.
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}

func powInt(base decimal.Decimal, exp int) decimal.Decimal {
	result := one
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(base).Round(workPrecision)
		}
		base = base.Mul(base).Round(workPrecision)
		exp >>= 1
	}
	return result
}

// nthRoot solves x^n = value for value > 0. The first guess 1 + (value-1)/n
// lies above the root, so Newton steps descend monotonically.
func nthRoot(value decimal.Decimal, n int) decimal.Decimal {
	dn := decimal.NewFromInt(int64(n))
	dn1 := decimal.NewFromInt(int64(n - 1))

	x := one.Add(value.Sub(one).DivRound(dn, workPrecision))
	for i := 0; i < newtonMaxSteps; i++ {
		xn1 := powInt(x, n-1)
		if xn1.IsZero() {
			break
		}
		next := dn1.Mul(x).Add(value.DivRound(xn1, workPrecision)).DivRound(dn, workPrecision)
		if next.Sub(x).Abs().LessThan(newtonTolerance) {
			return next
		}
		x = next
	}
	return x
}
