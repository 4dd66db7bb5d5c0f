package keeper

import (
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/openalpha/radiant-lend/metrics"
	"github.com/openalpha/radiant-lend/x/lending/types"
)

// LiquidationEngine drives the liquidation lifecycle. An attempt moves
// through Proposed, Validated and Executed; every terminal outcome leaves
// an immutable audit record or a rejected attempt with its reason.
type LiquidationEngine struct {
	keeper *Keeper
}

// NewLiquidationEngine creates a new liquidation engine
func NewLiquidationEngine(keeper *Keeper) *LiquidationEngine {
	return &LiquidationEngine{keeper: keeper}
}

// LiquidationResult is returned to the caller after a successful execution
type LiquidationResult struct {
	RecordID         string
	RepaidAmount     math.LegacyDec
	CollateralSeized math.LegacyDec
	BonusAmount      math.LegacyDec
	ProtocolFee      math.LegacyDec
}

// Propose opens a liquidation attempt. No solvency checks happen here;
// validation runs against fresh state in its own step.
func (le *LiquidationEngine) Propose(ctx sdk.Context, liquidator, borrower, debtAssetID, collateralAssetID string, repayRequested math.LegacyDec) (*types.LiquidationAttempt, error) {
	if !repayRequested.IsPositive() {
		return nil, types.ErrInvalidAmount.Wrap("repay amount must be positive")
	}
	if liquidator == borrower {
		return nil, types.ErrInvalidAmount.Wrap("cannot liquidate own position")
	}
	attempt := types.NewLiquidationAttempt(liquidator, borrower, debtAssetID, collateralAssetID, repayRequested, ctx.BlockTime())
	le.keeper.SetAttempt(ctx, attempt)
	return attempt, nil
}

// Validate re-checks eligibility against current state: reserves accrued to
// block time, borrower actually liquidatable, debt and collateral present.
// Failing checks reject the attempt rather than erroring, so the reason is
// recorded on the attempt itself.
func (le *LiquidationEngine) Validate(ctx sdk.Context, attempt *types.LiquidationAttempt) error {
	if attempt.Status != types.LiquidationStatusProposed {
		return types.ErrInvalidTransition.Wrapf("attempt %s is %s", attempt.AttemptID, attempt.Status)
	}

	reject := func(reason string) error {
		attempt.Reject(reason)
		le.keeper.SetAttempt(ctx, attempt)
		return types.ErrNotLiquidatable.Wrap(reason)
	}

	if _, err := le.keeper.AccrueReserve(ctx, attempt.DebtAssetID); err != nil {
		return reject("debt reserve: " + err.Error())
	}
	if _, err := le.keeper.AccrueReserve(ctx, attempt.CollateralAssetID); err != nil {
		return reject("collateral reserve: " + err.Error())
	}

	position := le.keeper.GetPosition(ctx, attempt.Borrower)
	if position == nil {
		return reject("borrower has no position")
	}
	if !position.HasDebtIn(attempt.DebtAssetID) {
		return reject("borrower has no debt in " + attempt.DebtAssetID)
	}
	if !position.HasCollateralIn(attempt.CollateralAssetID) {
		return reject("borrower has no collateral in " + attempt.CollateralAssetID)
	}

	snapshot, err := NewHealthEngine(le.keeper).ComputeHealth(ctx, position)
	if err != nil {
		return reject("health computation failed: " + err.Error())
	}
	if !snapshot.IsLiquidatable() {
		factor, _ := snapshot.HealthFactor()
		return reject("position is healthy: health factor " + factor.String())
	}

	if err := attempt.Transition(types.LiquidationStatusValidated); err != nil {
		return err
	}
	le.keeper.SetAttempt(ctx, attempt)
	return nil
}

// Execute settles a validated attempt. The repay amount is clamped to the
// close factor and to the outstanding debt; the seizure is clamped to the
// available collateral with the repay scaled down proportionally. Settlement
// burns the repaid debt against the debt reserve and moves the seized
// collateral out of the collateral reserve.
func (le *LiquidationEngine) Execute(ctx sdk.Context, attempt *types.LiquidationAttempt) (*LiquidationResult, error) {
	if attempt.Status != types.LiquidationStatusValidated {
		return nil, types.ErrInvalidTransition.Wrapf("attempt %s is %s", attempt.AttemptID, attempt.Status)
	}

	params := le.keeper.GetMarketParams(ctx)
	position := le.keeper.GetPosition(ctx, attempt.Borrower)
	if position == nil {
		return nil, types.ErrPositionNotFound.Wrap(attempt.Borrower)
	}

	debtReserve := le.keeper.GetReserve(ctx, attempt.DebtAssetID)
	if debtReserve == nil {
		return nil, types.ErrUnknownAsset
	}
	// A self-collateralized position repays and seizes against one reserve.
	// Both mutations must land on the same record or the second write would
	// drop the first.
	collReserve := debtReserve
	if attempt.CollateralAssetID != attempt.DebtAssetID {
		collReserve = le.keeper.GetReserve(ctx, attempt.CollateralAssetID)
		if collReserve == nil {
			return nil, types.ErrUnknownAsset
		}
	}
	collParams, err := le.keeper.GetAssetParams(ctx, attempt.CollateralAssetID)
	if err != nil {
		return nil, err
	}

	debt, err := position.DebtAmount(attempt.DebtAssetID, debtReserve.BorrowIndex)
	if err != nil {
		return nil, err
	}
	collateral, err := position.CollateralAmount(attempt.CollateralAssetID, collReserve.SupplyIndex)
	if err != nil {
		return nil, err
	}

	config := le.keeper.GetOracleConfig(ctx)
	debtQuote, err := le.quote(ctx, attempt.DebtAssetID, config)
	if err != nil {
		return nil, err
	}
	collQuote, err := le.quote(ctx, attempt.CollateralAssetID, config)
	if err != nil {
		return nil, err
	}

	// Clamp repay to close factor and outstanding debt
	maxRepay, err := types.SafeMul(debt, params.CloseFactor)
	if err != nil {
		return nil, err
	}
	repay := attempt.RepayRequested
	if repay.GT(maxRepay) {
		repay = maxRepay
	}
	if repay.GT(debt) {
		repay = debt
	}
	if !repay.IsPositive() {
		return nil, types.ErrRepayTooSmall
	}

	// seize = repay * priceDebt / priceColl * (1 + bonus)
	repayValue, err := types.SafeMul(repay, debtQuote.Price)
	if err != nil {
		return nil, err
	}
	baseSeize, err := types.SafeQuo(repayValue, collQuote.Price)
	if err != nil {
		return nil, err
	}
	bonusFactor := math.LegacyOneDec().Add(collParams.LiquidationBonus)
	seize, err := types.SafeMul(baseSeize, bonusFactor)
	if err != nil {
		return nil, err
	}

	// Cap at available collateral, scaling the repay down proportionally so
	// the liquidator never pays for collateral that cannot be seized.
	if seize.GT(collateral) {
		scale, err := types.SafeQuo(collateral, seize)
		if err != nil {
			return nil, err
		}
		repay, err = types.SafeMul(repay, scale)
		if err != nil {
			return nil, err
		}
		seize = collateral
	}
	if !seize.IsPositive() {
		return nil, types.ErrZeroSeizure
	}

	// Bonus in collateral units; the protocol takes its share of it
	bonusAmount := seize.Sub(seize.Quo(bonusFactor))
	protocolFee, err := types.SafeMul(bonusAmount, params.ProtocolFeeShare)
	if err != nil {
		return nil, err
	}

	// Settle against the position
	applied, err := position.RemoveDebt(attempt.DebtAssetID, repay, debtReserve.BorrowIndex)
	if err != nil {
		return nil, err
	}
	if err := position.RemoveCollateral(attempt.CollateralAssetID, seize, collReserve.SupplyIndex); err != nil {
		return nil, err
	}

	// Repaid principal leaves the debt reserve; deposits are untouched since
	// the liquidator pays the debt asset in from outside the reserve.
	debtReserve.TotalBorrows = debtReserve.TotalBorrows.Sub(applied)
	if debtReserve.TotalBorrows.IsNegative() {
		debtReserve.TotalBorrows = math.LegacyZeroDec()
	}
	collReserve.TotalDeposits = collReserve.TotalDeposits.Sub(seize)
	if collReserve.TotalDeposits.IsNegative() {
		collReserve.TotalDeposits = math.LegacyZeroDec()
	}
	collReserve.AccruedProtocolFees = collReserve.AccruedProtocolFees.Add(protocolFee)

	le.keeper.SetReserve(ctx, debtReserve)
	if collReserve != debtReserve {
		le.keeper.SetReserve(ctx, collReserve)
	}
	le.keeper.SetPosition(ctx, position)

	if err := attempt.Transition(types.LiquidationStatusExecuted); err != nil {
		return nil, err
	}
	le.keeper.SetAttempt(ctx, attempt)

	record := &types.LiquidationRecord{
		RecordID:          le.keeper.generateLiquidationID(ctx),
		AttemptID:         attempt.AttemptID,
		Liquidator:        attempt.Liquidator,
		Borrower:          attempt.Borrower,
		DebtAssetID:       attempt.DebtAssetID,
		CollateralAssetID: attempt.CollateralAssetID,
		RepaidAmount:      applied,
		CollateralSeized:  seize,
		BonusAmount:       bonusAmount,
		ProtocolFee:       protocolFee,
		DebtPrice:         debtQuote.Price,
		CollateralPrice:   collQuote.Price,
		Timestamp:         ctx.BlockTime(),
	}
	le.keeper.AppendLiquidationRecord(ctx, record)

	le.keeper.RefreshHealthIndex(ctx, attempt.Borrower)
	metrics.GetCollector().RecordLiquidation(attempt.DebtAssetID, attempt.CollateralAssetID,
		decToFloat(applied), decToFloat(seize))

	le.keeper.Logger().Info("liquidation executed",
		"record_id", record.RecordID,
		"borrower", attempt.Borrower,
		"liquidator", attempt.Liquidator,
		"repaid", applied.String(),
		"seized", seize.String(),
	)

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"liquidation_executed",
			sdk.NewAttribute("record_id", record.RecordID),
			sdk.NewAttribute("borrower", attempt.Borrower),
			sdk.NewAttribute("liquidator", attempt.Liquidator),
			sdk.NewAttribute("debt_asset", attempt.DebtAssetID),
			sdk.NewAttribute("collateral_asset", attempt.CollateralAssetID),
			sdk.NewAttribute("repaid", applied.String()),
			sdk.NewAttribute("seized", seize.String()),
		),
	)

	return &LiquidationResult{
		RecordID:         record.RecordID,
		RepaidAmount:     applied,
		CollateralSeized: seize,
		BonusAmount:      bonusAmount,
		ProtocolFee:      protocolFee,
	}, nil
}

// Liquidate runs the full lifecycle in one call, which is how the message
// server and the offchain bot consume it.
func (le *LiquidationEngine) Liquidate(ctx sdk.Context, liquidator, borrower, debtAssetID, collateralAssetID string, repayRequested math.LegacyDec) (*LiquidationResult, error) {
	attempt, err := le.Propose(ctx, liquidator, borrower, debtAssetID, collateralAssetID, repayRequested)
	if err != nil {
		return nil, err
	}
	if err := le.Validate(ctx, attempt); err != nil {
		return nil, err
	}
	return le.Execute(ctx, attempt)
}

func (le *LiquidationEngine) quote(ctx sdk.Context, assetID string, config types.OracleConfig) (*types.PriceQuote, error) {
	quote, err := le.keeper.oracle.GetPrice(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if err := quote.Validate(ctx.BlockTime(), config.MaxPriceAge, config.MaxConfidenceRatio); err != nil {
		return nil, err
	}
	return quote, nil
}
