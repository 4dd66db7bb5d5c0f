package types

import (
	"cosmossdk.io/math"
)

// MarketParams is the protocol-wide configuration read atomically at action
// time. These are administrative parameters, never hard-coded at use sites.
type MarketParams struct {
	// CloseFactor caps the fraction of a single debt position repayable per
	// liquidation call (e.g. 0.50)
	CloseFactor math.LegacyDec

	// ProtocolFeeShare is the protocol's cut of the liquidation bonus
	ProtocolFeeShare math.LegacyDec

	// SafeHealthThreshold is the upper edge of the borrow-restricted band:
	// a new borrow must leave the health factor at or above this value,
	// preventing precision-edge flicker around 1.0
	SafeHealthThreshold math.LegacyDec

	// MaxCommitRetries bounds optimistic-concurrency retries before an
	// action fails with ErrContention
	MaxCommitRetries int

	// EmergencyMode restricts the market to withdrawals and repayments
	EmergencyMode bool
}

// DefaultMarketParams returns the protocol defaults: 50% close factor, 10%
// protocol fee share, 1.05 safe threshold, 3 commit retries.
func DefaultMarketParams() MarketParams {
	return MarketParams{
		CloseFactor:         math.LegacyNewDecWithPrec(50, 2),
		ProtocolFeeShare:    math.LegacyNewDecWithPrec(10, 2),
		SafeHealthThreshold: math.LegacyNewDecWithPrec(105, 2),
		MaxCommitRetries:    3,
		EmergencyMode:       false,
	}
}

// Validate checks parameter sanity.
func (p MarketParams) Validate() error {
	if !p.CloseFactor.IsPositive() || p.CloseFactor.GT(math.LegacyOneDec()) {
		return ErrInvalidConfig.Wrap("close factor must be in (0, 1]")
	}
	if p.ProtocolFeeShare.IsNegative() || p.ProtocolFeeShare.GT(math.LegacyOneDec()) {
		return ErrInvalidConfig.Wrap("protocol fee share must be in [0, 1]")
	}
	if p.SafeHealthThreshold.LT(math.LegacyOneDec()) {
		return ErrInvalidConfig.Wrap("safe health threshold below 1.0")
	}
	if p.MaxCommitRetries < 1 {
		return ErrInvalidConfig.Wrap("max commit retries must be at least 1")
	}
	return nil
}
