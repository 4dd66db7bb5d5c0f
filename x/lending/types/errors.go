package types

import (
	"cosmossdk.io/errors"
)

// Module error codes
var (
	// Validation errors - rejected before touching state
	ErrInvalidAmount     = errors.Register(ModuleName, 1, "invalid amount")
	ErrUnknownAsset      = errors.Register(ModuleName, 2, "unknown asset")
	ErrAssetExists       = errors.Register(ModuleName, 3, "asset already registered")
	ErrInvalidConfig     = errors.Register(ModuleName, 4, "invalid configuration")
	ErrPositionNotFound  = errors.Register(ModuleName, 5, "position not found")
	ErrEmergencyMode     = errors.Register(ModuleName, 6, "market is in emergency mode")
	ErrDepositsDisabled  = errors.Register(ModuleName, 7, "deposits disabled for this reserve")
	ErrBorrowsDisabled   = errors.Register(ModuleName, 8, "borrows disabled for this reserve")
	ErrAmountTooSmall    = errors.Register(ModuleName, 9, "amount below dust minimum")
	ErrDepositLimit      = errors.Register(ModuleName, 10, "reserve deposit limit exceeded")
	ErrBorrowLimit       = errors.Register(ModuleName, 11, "reserve borrow limit exceeded")

	// Solvency errors - rejected after computation, state untouched
	ErrInsufficientCollateral = errors.Register(ModuleName, 20, "insufficient collateral")
	ErrBorrowRestricted       = errors.Register(ModuleName, 21, "health factor below safe threshold, borrow restricted")
	ErrNotLiquidatable        = errors.Register(ModuleName, 22, "position is healthy, cannot liquidate")
	ErrUtilizationExceeded    = errors.Register(ModuleName, 23, "reserve utilization cap exceeded")
	ErrInsufficientLiquidity  = errors.Register(ModuleName, 24, "insufficient reserve liquidity")
	ErrNoDebt                 = errors.Register(ModuleName, 25, "no outstanding debt for asset")
	ErrNoCollateral           = errors.Register(ModuleName, 26, "no collateral deposited for asset")

	// Data errors - missing or untrustworthy inputs, never approximated
	ErrStalePrice       = errors.Register(ModuleName, 30, "oracle price is stale")
	ErrLowConfidence    = errors.Register(ModuleName, 31, "oracle confidence interval too wide")
	ErrPriceUnavailable = errors.Register(ModuleName, 32, "oracle price unavailable")

	// Arithmetic errors - fail closed, never saturate
	ErrArithmeticOverflow = errors.Register(ModuleName, 40, "arithmetic overflow")

	// Concurrency errors - surfaced after bounded retries
	ErrContention = errors.Register(ModuleName, 41, "state changed during action, retries exhausted")

	// Liquidation errors
	ErrRepayTooSmall      = errors.Register(ModuleName, 50, "repay amount too small")
	ErrZeroSeizure        = errors.Register(ModuleName, 51, "seizure amount rounds to zero")
	ErrAttemptNotFound    = errors.Register(ModuleName, 52, "liquidation attempt not found")
	ErrInvalidTransition  = errors.Register(ModuleName, 53, "invalid liquidation state transition")

	// Oracle submission errors
	ErrSourceNotFound   = errors.Register(ModuleName, 60, "oracle source not found")
	ErrSourceInactive   = errors.Register(ModuleName, 61, "oracle source is inactive")
	ErrPriceDeviation   = errors.Register(ModuleName, 62, "price deviation exceeds circuit breaker")
	ErrTooFewSources    = errors.Register(ModuleName, 63, "insufficient price sources")
)
