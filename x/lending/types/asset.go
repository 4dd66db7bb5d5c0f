package types

import (
	"cosmossdk.io/math"
)

// AssetParams is the per-asset risk configuration. Immutable from the engine's
// point of view; updated only through the administrative surface.
type AssetParams struct {
	// AssetID is the stable identifier (e.g. "USDC", "SOL")
	AssetID string
	// Decimals of the native token unit
	Decimals uint32

	// LTV is the max borrow power per unit of collateral value (e.g. 0.80)
	LTV math.LegacyDec
	// LiquidationThreshold marks the health-factor trigger (e.g. 0.85)
	LiquidationThreshold math.LegacyDec
	// LiquidationBonus is the discount paid to the liquidator (e.g. 0.05)
	LiquidationBonus math.LegacyDec

	// MaxUtilization is the hard cap on borrows/deposits (e.g. 0.95)
	MaxUtilization math.LegacyDec

	// DepositLimit caps total deposits; zero means unlimited
	DepositLimit math.LegacyDec
	// BorrowLimit caps total borrows; zero means unlimited
	BorrowLimit math.LegacyDec

	// MinDeposit and MinBorrow reject dust amounts
	MinDeposit math.LegacyDec
	MinBorrow  math.LegacyDec

	DepositsEnabled bool
	BorrowsEnabled  bool

	// Rates is the interest rate curve for this reserve
	Rates RateConfig
}

// NewAssetParams returns asset params with protocol defaults:
// 80% LTV, 85% liquidation threshold, 5% bonus, 95% utilization cap.
func NewAssetParams(assetID string, decimals uint32) AssetParams {
	return AssetParams{
		AssetID:              assetID,
		Decimals:             decimals,
		LTV:                  math.LegacyNewDecWithPrec(80, 2),
		LiquidationThreshold: math.LegacyNewDecWithPrec(85, 2),
		LiquidationBonus:     math.LegacyNewDecWithPrec(5, 2),
		MaxUtilization:       math.LegacyNewDecWithPrec(95, 2),
		DepositLimit:         math.LegacyZeroDec(),
		BorrowLimit:          math.LegacyZeroDec(),
		MinDeposit:           math.LegacyNewDecWithPrec(1, 3),
		MinBorrow:            math.LegacyNewDecWithPrec(1, 3),
		DepositsEnabled:      true,
		BorrowsEnabled:       true,
		Rates:                DefaultRateConfig(),
	}
}

// Validate checks risk parameter sanity: LTV strictly below the liquidation
// threshold, threshold at most 98%, bonus at most 25%.
func (a AssetParams) Validate() error {
	if a.AssetID == "" {
		return ErrInvalidConfig.Wrap("empty asset id")
	}
	if a.LTV.IsNegative() || !a.LTV.LT(a.LiquidationThreshold) {
		return ErrInvalidConfig.Wrap("LTV must be non-negative and below liquidation threshold")
	}
	if a.LiquidationThreshold.GT(math.LegacyNewDecWithPrec(98, 2)) {
		return ErrInvalidConfig.Wrap("liquidation threshold above 98%")
	}
	if a.LiquidationBonus.IsNegative() || a.LiquidationBonus.GT(math.LegacyNewDecWithPrec(25, 2)) {
		return ErrInvalidConfig.Wrap("liquidation bonus must be in [0, 0.25]")
	}
	if !a.MaxUtilization.IsPositive() || a.MaxUtilization.GT(math.LegacyOneDec()) {
		return ErrInvalidConfig.Wrap("max utilization must be in (0, 1]")
	}
	if a.DepositLimit.IsNegative() || a.BorrowLimit.IsNegative() {
		return ErrInvalidConfig.Wrap("limits must be non-negative")
	}
	if a.MinDeposit.IsNegative() || a.MinBorrow.IsNegative() {
		return ErrInvalidConfig.Wrap("dust minimums must be non-negative")
	}
	return a.Rates.Validate()
}
