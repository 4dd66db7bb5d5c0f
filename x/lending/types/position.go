package types

import (
	"time"

	"cosmossdk.io/math"
)

// CollateralEntry is a deposit used as collateral. The principal is paired
// with the reserve's supply index at the time of the last touch; the current
// amount is principal * currentIndex / snapshot, so interest compounds without
// per-account accrual loops.
type CollateralEntry struct {
	AssetID  string
	Amount   math.LegacyDec
	Snapshot math.LegacyDec // supply index at last touch
}

// DebtEntry is an outstanding borrow, index-snapshotted the same way against
// the reserve's borrow index.
type DebtEntry struct {
	AssetID  string
	Amount   math.LegacyDec
	Snapshot math.LegacyDec // borrow index at last touch
}

// Position aggregates one user's collateral and debt across assets.
type Position struct {
	Owner      string
	Collateral []CollateralEntry
	Debts      []DebtEntry

	// Version increments on every store write; used for optimistic commit checks
	Version    uint64
	LastUpdate time.Time
}

// NewPosition creates an empty position for owner.
func NewPosition(owner string) *Position {
	return &Position{Owner: owner}
}

func (p *Position) findCollateral(assetID string) int {
	for i := range p.Collateral {
		if p.Collateral[i].AssetID == assetID {
			return i
		}
	}
	return -1
}

func (p *Position) findDebt(assetID string) int {
	for i := range p.Debts {
		if p.Debts[i].AssetID == assetID {
			return i
		}
	}
	return -1
}

// HasDebt reports whether any debt is outstanding.
func (p *Position) HasDebt() bool {
	return len(p.Debts) > 0
}

// HasCollateral reports whether any collateral is deposited.
func (p *Position) HasCollateral() bool {
	return len(p.Collateral) > 0
}

// HasDebtIn reports whether debt is outstanding in a specific asset.
func (p *Position) HasDebtIn(assetID string) bool {
	return p.findDebt(assetID) >= 0
}

// HasCollateralIn reports whether collateral is deposited in a specific asset.
func (p *Position) HasCollateralIn(assetID string) bool {
	return p.findCollateral(assetID) >= 0
}

// CollateralAmount returns the current collateral in assetID including
// compounded supply interest, given the reserve's current supply index.
func (p *Position) CollateralAmount(assetID string, currentIndex math.LegacyDec) (math.LegacyDec, error) {
	i := p.findCollateral(assetID)
	if i < 0 {
		return math.LegacyZeroDec(), nil
	}
	return normalize(p.Collateral[i].Amount, p.Collateral[i].Snapshot, currentIndex)
}

// DebtAmount returns the current debt in assetID including compounded borrow
// interest, given the reserve's current borrow index.
func (p *Position) DebtAmount(assetID string, currentIndex math.LegacyDec) (math.LegacyDec, error) {
	i := p.findDebt(assetID)
	if i < 0 {
		return math.LegacyZeroDec(), nil
	}
	return normalize(p.Debts[i].Amount, p.Debts[i].Snapshot, currentIndex)
}

// normalize computes principal * current / snapshot with checked math.
func normalize(principal, snapshot, current math.LegacyDec) (math.LegacyDec, error) {
	if !snapshot.IsPositive() {
		return math.LegacyDec{}, ErrArithmeticOverflow.Wrap("zero index snapshot")
	}
	grown, err := SafeMul(principal, current)
	if err != nil {
		return math.LegacyDec{}, err
	}
	return SafeQuo(grown, snapshot)
}

// AddCollateral credits amount at the given (post-accrual) supply index,
// folding any previously accrued interest into the new principal.
func (p *Position) AddCollateral(assetID string, amount, currentIndex math.LegacyDec) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	current, err := p.CollateralAmount(assetID, currentIndex)
	if err != nil {
		return err
	}
	total, err := SafeAdd(current, amount)
	if err != nil {
		return err
	}
	if i := p.findCollateral(assetID); i >= 0 {
		p.Collateral[i].Amount = total
		p.Collateral[i].Snapshot = currentIndex
		return nil
	}
	p.Collateral = append(p.Collateral, CollateralEntry{AssetID: assetID, Amount: total, Snapshot: currentIndex})
	return nil
}

// RemoveCollateral debits amount at the given supply index. The entry is
// dropped when it reaches zero. The caller is responsible for the health
// check; this only guards against overdrawing the balance itself.
func (p *Position) RemoveCollateral(assetID string, amount, currentIndex math.LegacyDec) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	i := p.findCollateral(assetID)
	if i < 0 {
		return ErrNoCollateral
	}
	current, err := normalize(p.Collateral[i].Amount, p.Collateral[i].Snapshot, currentIndex)
	if err != nil {
		return err
	}
	if amount.GT(current) {
		return ErrInsufficientCollateral
	}
	remaining := current.Sub(amount)
	if remaining.IsZero() {
		p.Collateral = append(p.Collateral[:i], p.Collateral[i+1:]...)
		return nil
	}
	p.Collateral[i].Amount = remaining
	p.Collateral[i].Snapshot = currentIndex
	return nil
}

// AddDebt records a borrow at the given (post-accrual) borrow index.
func (p *Position) AddDebt(assetID string, amount, currentIndex math.LegacyDec) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	current, err := p.DebtAmount(assetID, currentIndex)
	if err != nil {
		return err
	}
	total, err := SafeAdd(current, amount)
	if err != nil {
		return err
	}
	if i := p.findDebt(assetID); i >= 0 {
		p.Debts[i].Amount = total
		p.Debts[i].Snapshot = currentIndex
		return nil
	}
	p.Debts = append(p.Debts, DebtEntry{AssetID: assetID, Amount: total, Snapshot: currentIndex})
	return nil
}

// RemoveDebt repays up to amount at the given borrow index and returns the
// amount actually applied (a repayment above the outstanding debt is clamped).
// The entry is dropped when fully repaid.
func (p *Position) RemoveDebt(assetID string, amount, currentIndex math.LegacyDec) (math.LegacyDec, error) {
	if !amount.IsPositive() {
		return math.LegacyDec{}, ErrInvalidAmount
	}
	i := p.findDebt(assetID)
	if i < 0 {
		return math.LegacyDec{}, ErrNoDebt
	}
	current, err := normalize(p.Debts[i].Amount, p.Debts[i].Snapshot, currentIndex)
	if err != nil {
		return math.LegacyDec{}, err
	}
	applied := amount
	if applied.GT(current) {
		applied = current
	}
	remaining := current.Sub(applied)
	if remaining.IsZero() {
		p.Debts = append(p.Debts[:i], p.Debts[i+1:]...)
		return applied, nil
	}
	p.Debts[i].Amount = remaining
	p.Debts[i].Snapshot = currentIndex
	return applied, nil
}
