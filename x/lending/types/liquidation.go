package types

import (
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"
)

// LiquidationStatus tracks the attempt state machine:
// Proposed -> Validated -> Executed, or Proposed -> Rejected.
type LiquidationStatus int

const (
	LiquidationStatusUnspecified LiquidationStatus = iota
	LiquidationStatusProposed
	LiquidationStatusValidated
	LiquidationStatusExecuted
	LiquidationStatusRejected
)

func (s LiquidationStatus) String() string {
	switch s {
	case LiquidationStatusProposed:
		return "proposed"
	case LiquidationStatusValidated:
		return "validated"
	case LiquidationStatusExecuted:
		return "executed"
	case LiquidationStatusRejected:
		return "rejected"
	default:
		return "unspecified"
	}
}

// LiquidationAttempt is one liquidator's attempt against one borrower.
// Executed and Rejected are terminal.
type LiquidationAttempt struct {
	AttemptID  string
	Liquidator string
	Borrower   string

	// DebtAssetID is the asset being repaid
	DebtAssetID string
	// CollateralAssetID is the asset expected in return
	CollateralAssetID string
	// RepayRequested is the debt amount the liquidator offers to repay
	RepayRequested math.LegacyDec

	Status       LiquidationStatus
	RejectReason string
	CreatedAt    time.Time
}

// NewLiquidationAttempt creates an attempt in the Proposed state.
func NewLiquidationAttempt(liquidator, borrower, debtAssetID, collateralAssetID string, repay math.LegacyDec, now time.Time) *LiquidationAttempt {
	return &LiquidationAttempt{
		AttemptID:         uuid.New().String(),
		Liquidator:        liquidator,
		Borrower:          borrower,
		DebtAssetID:       debtAssetID,
		CollateralAssetID: collateralAssetID,
		RepayRequested:    repay,
		Status:            LiquidationStatusProposed,
		CreatedAt:         now,
	}
}

// Transition advances the state machine, rejecting any move not permitted by
// it. Terminal states cannot be left.
func (a *LiquidationAttempt) Transition(next LiquidationStatus) error {
	valid := false
	switch a.Status {
	case LiquidationStatusProposed:
		valid = next == LiquidationStatusValidated || next == LiquidationStatusRejected
	case LiquidationStatusValidated:
		valid = next == LiquidationStatusExecuted
	}
	if !valid {
		return ErrInvalidTransition.Wrapf("%s -> %s", a.Status, next)
	}
	a.Status = next
	return nil
}

// Reject moves the attempt to its Rejected terminal state with a reason.
func (a *LiquidationAttempt) Reject(reason string) error {
	if err := a.Transition(LiquidationStatusRejected); err != nil {
		return err
	}
	a.RejectReason = reason
	return nil
}

// LiquidationRecord is the immutable audit entry appended on every executed
// liquidation. Records are never mutated after creation.
type LiquidationRecord struct {
	RecordID   string
	AttemptID  string
	Liquidator string
	Borrower   string

	DebtAssetID       string
	CollateralAssetID string

	// RepaidAmount is the debt actually repaid, after close-factor and
	// collateral caps
	RepaidAmount math.LegacyDec
	// CollateralSeized is the total collateral taken from the borrower
	CollateralSeized math.LegacyDec
	// BonusAmount is the seized value above the repaid value, in collateral units
	BonusAmount math.LegacyDec
	// ProtocolFee is the protocol's cut of the bonus, in collateral units
	ProtocolFee math.LegacyDec

	DebtPrice       math.LegacyDec
	CollateralPrice math.LegacyDec

	Timestamp time.Time
}
