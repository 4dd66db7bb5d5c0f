package types

import (
	"cosmossdk.io/math"
)

// RateConfig is the kinked interest rate curve for a reserve.
// Below OptimalUtilization the borrow rate climbs gently with Slope1; above it
// the curve steepens with Slope2 to price in liquidity-crunch pressure.
type RateConfig struct {
	// OptimalUtilization is the kink point U* (e.g. 0.80)
	OptimalUtilization math.LegacyDec
	// BaseRate is the annualized borrow rate at 0% utilization
	BaseRate math.LegacyDec
	// Slope1 is the rate increase from 0 to optimal utilization
	Slope1 math.LegacyDec
	// Slope2 is the rate increase from optimal to 100% utilization
	Slope2 math.LegacyDec
	// ReserveFactor is the protocol's cut of interest (e.g. 0.10)
	ReserveFactor math.LegacyDec
}

// DefaultRateConfig returns the default rate curve: 2% base, 10% slope to the
// 80% kink, 100% slope above it, 10% reserve factor.
func DefaultRateConfig() RateConfig {
	return RateConfig{
		OptimalUtilization: math.LegacyNewDecWithPrec(80, 2),
		BaseRate:           math.LegacyNewDecWithPrec(2, 2),
		Slope1:             math.LegacyNewDecWithPrec(10, 2),
		Slope2:             math.LegacyOneDec(),
		ReserveFactor:      math.LegacyNewDecWithPrec(10, 2),
	}
}

// Validate checks curve parameters
func (c RateConfig) Validate() error {
	one := math.LegacyOneDec()
	if c.OptimalUtilization.IsNegative() || c.OptimalUtilization.GT(one) {
		return ErrInvalidConfig.Wrap("optimal utilization must be in [0, 1]")
	}
	if c.BaseRate.IsNegative() || c.Slope1.IsNegative() || c.Slope2.IsNegative() {
		return ErrInvalidConfig.Wrap("rates must be non-negative")
	}
	if c.ReserveFactor.IsNegative() || c.ReserveFactor.GT(math.LegacyNewDecWithPrec(50, 2)) {
		return ErrInvalidConfig.Wrap("reserve factor must be in [0, 0.5]")
	}
	return nil
}

// BorrowRate returns the annualized borrow rate at the given utilization.
// The kink itself is priced by the low segment: at U = U* the rate is exactly
// base + slope1. Monotone non-decreasing in utilization.
func (c RateConfig) BorrowRate(utilization math.LegacyDec) math.LegacyDec {
	if utilization.IsNegative() {
		utilization = math.LegacyZeroDec()
	}
	one := math.LegacyOneDec()
	if utilization.GT(one) {
		utilization = one
	}

	if utilization.LTE(c.OptimalUtilization) {
		// base + (U / U*) * slope1
		if c.OptimalUtilization.IsZero() {
			return c.BaseRate
		}
		return c.BaseRate.Add(utilization.Quo(c.OptimalUtilization).Mul(c.Slope1))
	}

	// base + slope1 + ((U - U*) / (1 - U*)) * slope2
	excess := utilization.Sub(c.OptimalUtilization)
	remaining := one.Sub(c.OptimalUtilization)
	steep := c.Slope2
	if !remaining.IsZero() {
		steep = excess.Quo(remaining).Mul(c.Slope2)
	}
	return c.BaseRate.Add(c.Slope1).Add(steep)
}

// SupplyRate returns the annualized rate earned by depositors:
// borrowRate * utilization * (1 - reserveFactor).
func (c RateConfig) SupplyRate(borrowRate, utilization math.LegacyDec) math.LegacyDec {
	gross := borrowRate.Mul(utilization)
	return gross.Sub(gross.Mul(c.ReserveFactor))
}

// Rates returns both rates at the given utilization.
func (c RateConfig) Rates(utilization math.LegacyDec) (borrowRate, supplyRate math.LegacyDec) {
	borrowRate = c.BorrowRate(utilization)
	supplyRate = c.SupplyRate(borrowRate, utilization)
	return borrowRate, supplyRate
}
