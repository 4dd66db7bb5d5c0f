package types

import (
	"time"

	"cosmossdk.io/math"
)

// ReserveState is the per-asset pool state. Amount fields are in native token
// units as decimals; indices start at 1.0 and only grow.
type ReserveState struct {
	AssetID string

	// TotalDeposits is the sum of supplied liquidity including accrued supply interest
	TotalDeposits math.LegacyDec
	// TotalBorrows is the outstanding debt including accrued borrow interest
	TotalBorrows math.LegacyDec

	// SupplyIndex is the cumulative deposit interest multiplier
	SupplyIndex math.LegacyDec
	// BorrowIndex is the cumulative borrow interest multiplier
	BorrowIndex math.LegacyDec

	// BorrowRate and SupplyRate are the annualized rates as of LastAccrual
	BorrowRate math.LegacyDec
	SupplyRate math.LegacyDec

	// AccruedProtocolFees is the reserve-factor cut of interest, in token units
	AccruedProtocolFees math.LegacyDec

	// LastAccrual is the timestamp of the last index update
	LastAccrual time.Time

	// Version increments on every store write; used for optimistic commit checks
	Version uint64
}

// NewReserveState creates an empty reserve with unit indices.
func NewReserveState(assetID string, now time.Time) *ReserveState {
	return &ReserveState{
		AssetID:             assetID,
		TotalDeposits:       math.LegacyZeroDec(),
		TotalBorrows:        math.LegacyZeroDec(),
		SupplyIndex:         math.LegacyOneDec(),
		BorrowIndex:         math.LegacyOneDec(),
		BorrowRate:          math.LegacyZeroDec(),
		SupplyRate:          math.LegacyZeroDec(),
		AccruedProtocolFees: math.LegacyZeroDec(),
		LastAccrual:         now,
	}
}

// Utilization returns TotalBorrows / TotalDeposits, zero for an empty reserve.
func (r *ReserveState) Utilization() math.LegacyDec {
	if !r.TotalDeposits.IsPositive() {
		return math.LegacyZeroDec()
	}
	return r.TotalBorrows.Quo(r.TotalDeposits)
}

// AvailableLiquidity returns the tokens currently borrowable.
func (r *ReserveState) AvailableLiquidity() math.LegacyDec {
	avail := r.TotalDeposits.Sub(r.TotalBorrows)
	if avail.IsNegative() {
		return math.LegacyZeroDec()
	}
	return avail
}

// Accrue compounds both indices for the time elapsed since LastAccrual and
// refreshes the current rates. Idempotent when no time has passed. Elapsed
// time is capped at one year to bound a reserve left untouched for a long
// stretch. Indices never decrease.
func (r *ReserveState) Accrue(cfg RateConfig, now time.Time) error {
	elapsed := now.Sub(r.LastAccrual)
	if elapsed <= 0 {
		r.updateRates(cfg)
		return nil
	}
	if elapsed > SecondsPerYear*time.Second {
		elapsed = SecondsPerYear * time.Second
	}

	if r.TotalBorrows.IsPositive() {
		// factor = borrowRate * dt / secondsPerYear
		dt := math.LegacyNewDec(int64(elapsed / time.Second))
		factor, err := SafeMul(r.BorrowRate, dt)
		if err != nil {
			return err
		}
		factor = factor.QuoInt64(SecondsPerYear)

		// borrowIndex *= 1 + factor
		newBorrowIndex, err := SafeMul(r.BorrowIndex, math.LegacyOneDec().Add(factor))
		if err != nil {
			return err
		}
		if newBorrowIndex.LT(r.BorrowIndex) {
			return ErrArithmeticOverflow.Wrap("borrow index would decrease")
		}

		interest, err := SafeMul(r.TotalBorrows, factor)
		if err != nil {
			return err
		}
		fee := interest.Mul(cfg.ReserveFactor)
		supplyInterest := interest.Sub(fee)

		newTotalBorrows, err := SafeAdd(r.TotalBorrows, interest)
		if err != nil {
			return err
		}

		// supplyIndex grows by the depositors' share of interest, pro rata
		newSupplyIndex := r.SupplyIndex
		newTotalDeposits := r.TotalDeposits
		if r.TotalDeposits.IsPositive() {
			gain := supplyInterest.Quo(r.TotalDeposits)
			newSupplyIndex, err = SafeMul(r.SupplyIndex, math.LegacyOneDec().Add(gain))
			if err != nil {
				return err
			}
			if newSupplyIndex.LT(r.SupplyIndex) {
				return ErrArithmeticOverflow.Wrap("supply index would decrease")
			}
			newTotalDeposits, err = SafeAdd(r.TotalDeposits, supplyInterest)
			if err != nil {
				return err
			}
		}

		r.BorrowIndex = newBorrowIndex
		r.SupplyIndex = newSupplyIndex
		r.TotalBorrows = newTotalBorrows
		r.TotalDeposits = newTotalDeposits
		r.AccruedProtocolFees = r.AccruedProtocolFees.Add(fee)
	}

	r.LastAccrual = now
	r.updateRates(cfg)
	return nil
}

func (r *ReserveState) updateRates(cfg RateConfig) {
	r.BorrowRate, r.SupplyRate = cfg.Rates(r.Utilization())
}

// Deposit adds supplied liquidity. Call after Accrue.
func (r *ReserveState) Deposit(amount math.LegacyDec, cfg RateConfig) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	total, err := SafeAdd(r.TotalDeposits, amount)
	if err != nil {
		return err
	}
	r.TotalDeposits = total
	r.updateRates(cfg)
	return nil
}

// Withdraw removes supplied liquidity. Fails if the reserve would owe more
// than it holds. Call after Accrue.
func (r *ReserveState) Withdraw(amount math.LegacyDec, cfg RateConfig) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GT(r.AvailableLiquidity()) {
		return ErrInsufficientLiquidity
	}
	r.TotalDeposits = r.TotalDeposits.Sub(amount)
	if r.TotalDeposits.IsNegative() {
		return ErrInsufficientLiquidity
	}
	r.updateRates(cfg)
	return nil
}

// Borrow adds outstanding debt, enforcing the hard utilization cap.
// Call after Accrue.
func (r *ReserveState) Borrow(amount math.LegacyDec, maxUtilization math.LegacyDec, cfg RateConfig) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GT(r.AvailableLiquidity()) {
		return ErrInsufficientLiquidity
	}
	newBorrows, err := SafeAdd(r.TotalBorrows, amount)
	if err != nil {
		return err
	}
	if r.TotalDeposits.IsPositive() {
		if newBorrows.Quo(r.TotalDeposits).GT(maxUtilization) {
			return ErrUtilizationExceeded
		}
	}
	r.TotalBorrows = newBorrows
	r.updateRates(cfg)
	return nil
}

// Repay reduces outstanding debt; amounts beyond the outstanding debt are
// clamped. Returns the amount actually applied. Call after Accrue.
func (r *ReserveState) Repay(amount math.LegacyDec, cfg RateConfig) (math.LegacyDec, error) {
	if !amount.IsPositive() {
		return math.LegacyDec{}, ErrInvalidAmount
	}
	applied := amount
	if applied.GT(r.TotalBorrows) {
		applied = r.TotalBorrows
	}
	r.TotalBorrows = r.TotalBorrows.Sub(applied)
	r.updateRates(cfg)
	return applied, nil
}
