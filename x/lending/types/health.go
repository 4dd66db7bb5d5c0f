package types

import (
	"time"

	"cosmossdk.io/math"
)

// HealthSnapshot is the derived solvency view of one position. It is computed
// fresh from current reserve indices and oracle quotes on every action and is
// never persisted.
type HealthSnapshot struct {
	Owner string

	// CollateralValue is the total collateral value at oracle prices
	CollateralValue math.LegacyDec
	// BorrowPowerValue is sum(collateral value * LTV) per asset
	BorrowPowerValue math.LegacyDec
	// LiquidationValue is sum(collateral value * liquidation threshold)
	LiquidationValue math.LegacyDec
	// DebtValue is the total debt value at oracle prices
	DebtValue math.LegacyDec

	ComputedAt time.Time
}

// HealthFactor returns LiquidationValue / DebtValue. The second return is
// false when the position has no debt, which stands in for infinite health.
func (h *HealthSnapshot) HealthFactor() (math.LegacyDec, bool) {
	if !h.DebtValue.IsPositive() {
		return math.LegacyDec{}, false
	}
	return h.LiquidationValue.Quo(h.DebtValue), true
}

// IsLiquidatable reports whether the health factor is strictly below 1.0.
// A position with no debt is never liquidatable.
func (h *HealthSnapshot) IsLiquidatable() bool {
	hf, ok := h.HealthFactor()
	if !ok {
		return false
	}
	return hf.LT(math.LegacyOneDec())
}

// IsBorrowRestricted reports whether the health factor sits below the safe
// threshold. The band between 1.0 and the threshold rejects new borrows
// without marking the position liquidatable, so an account cannot flicker
// between states on the same inputs.
func (h *HealthSnapshot) IsBorrowRestricted(safeThreshold math.LegacyDec) bool {
	hf, ok := h.HealthFactor()
	if !ok {
		return false
	}
	return hf.LT(safeThreshold)
}

// RemainingBorrowPower returns the unused LTV-weighted borrow capacity.
func (h *HealthSnapshot) RemainingBorrowPower() math.LegacyDec {
	remaining := h.BorrowPowerValue.Sub(h.DebtValue)
	if remaining.IsNegative() {
		return math.LegacyZeroDec()
	}
	return remaining
}
