package keeper

import (
	"errors"
	"sort"
	"sync"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/openalpha/radiant-lend/metrics"
	"github.com/openalpha/radiant-lend/x/lending/types"
)

// lockTable serializes actions touching the same reserves or accounts.
// Locks are always taken in global key order, so two actions crossing the
// same pair of assets can never deadlock each other.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (lt *lockTable) get(key string) *sync.Mutex {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l, ok := lt.locks[key]
	if !ok {
		l = &sync.Mutex{}
		lt.locks[key] = l
	}
	return l
}

// acquire locks the given keys in sorted order and returns the release
// function, which unlocks in reverse order.
func (lt *lockTable) acquire(keys ...string) func() {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		l := lt.get(key)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func assetLockKey(assetID string) string { return "asset/" + assetID }
func accountLockKey(owner string) string { return "acct/" + owner }

// ActionProcessor is the single entry point for user actions. Every action
// validates its inputs, accrues interest, applies the state change on a
// cache branch and commits only if the post-state passes its solvency gate.
type ActionProcessor struct {
	keeper *Keeper
	locks  *lockTable
}

// NewActionProcessor creates the action pipeline
func NewActionProcessor(keeper *Keeper) *ActionProcessor {
	return &ActionProcessor{
		keeper: keeper,
		locks:  newLockTable(),
	}
}

// actionFn applies one action on a branched context and returns the reserve
// it mutated, for post-commit telemetry.
type actionFn func(ctx sdk.Context) (*types.ReserveState, error)

// process runs an action under the lock table with optimistic re-validation:
// the versions of the touched records are captured before the branch and
// re-checked before the branch is written back. A version moving underneath
// the branch retries the whole action; exhausted retries fail closed.
func (ap *ActionProcessor) process(ctx sdk.Context, action, owner, assetID string, fn actionFn) (*types.ReserveState, error) {
	release := ap.locks.acquire(assetLockKey(assetID), accountLockKey(owner))
	defer release()

	params := ap.keeper.GetMarketParams(ctx)

	var lastErr error
	for attempt := 0; attempt < params.MaxCommitRetries; attempt++ {
		reserveVer := ap.keeper.reserveVersion(ctx, assetID)
		positionVer := ap.keeper.positionVersion(ctx, owner)

		cacheCtx, write := ctx.CacheContext()
		reserve, err := fn(cacheCtx)
		if err != nil {
			metrics.GetCollector().RecordAction(action, assetID, "rejected")
			return nil, err
		}

		if ap.keeper.reserveVersion(ctx, assetID) != reserveVer ||
			ap.keeper.positionVersion(ctx, owner) != positionVer {
			lastErr = types.ErrContention.Wrapf("%s %s for %s", action, assetID, owner)
			continue
		}
		write()

		metrics.GetCollector().RecordAction(action, assetID, "committed")
		if reserve != nil {
			metrics.GetCollector().UpdateReserve(assetID,
				decToFloat(reserve.Utilization()),
				decToFloat(reserve.BorrowRate),
				decToFloat(reserve.SupplyRate),
				decToFloat(reserve.TotalDeposits),
				decToFloat(reserve.TotalBorrows),
			)
		}
		ap.keeper.RefreshHealthIndex(ctx, owner)
		return reserve, nil
	}

	metrics.GetCollector().RecordAction(action, assetID, "contention")
	ap.keeper.Logger().Warn("action failed after retries",
		"action", action,
		"owner", owner,
		"asset", assetID,
		"retries", params.MaxCommitRetries,
	)
	return nil, lastErr
}

func decToFloat(d math.LegacyDec) float64 {
	f, err := d.Float64()
	if err != nil {
		return 0
	}
	return f
}

// Deposit supplies collateral to a reserve and credits the position at the
// current supply index.
func (ap *ActionProcessor) Deposit(ctx sdk.Context, owner, assetID string, amount math.LegacyDec) error {
	if !amount.IsPositive() {
		return types.ErrInvalidAmount.Wrap("deposit amount must be positive")
	}
	assetParams, err := ap.keeper.GetAssetParams(ctx, assetID)
	if err != nil {
		return err
	}
	marketParams := ap.keeper.GetMarketParams(ctx)
	if marketParams.EmergencyMode {
		return types.ErrEmergencyMode.Wrap("deposits suspended")
	}
	if !assetParams.DepositsEnabled {
		return types.ErrDepositsDisabled.Wrap(assetID)
	}
	if amount.LT(assetParams.MinDeposit) {
		return types.ErrAmountTooSmall.Wrapf("deposit %s below minimum %s", amount, assetParams.MinDeposit)
	}

	_, err = ap.process(ctx, "deposit", owner, assetID, func(cacheCtx sdk.Context) (*types.ReserveState, error) {
		reserve, err := ap.keeper.AccrueReserve(cacheCtx, assetID)
		if err != nil {
			return nil, err
		}
		if assetParams.DepositLimit.IsPositive() {
			projected, err := types.SafeAdd(reserve.TotalDeposits, amount)
			if err != nil {
				return nil, err
			}
			if projected.GT(assetParams.DepositLimit) {
				return nil, types.ErrDepositLimit.Wrapf("deposit would exceed cap %s", assetParams.DepositLimit)
			}
		}
		if err := reserve.Deposit(amount, assetParams.Rates); err != nil {
			return nil, err
		}
		position := ap.keeper.GetOrCreatePosition(cacheCtx, owner)
		if err := position.AddCollateral(assetID, amount, reserve.SupplyIndex); err != nil {
			return nil, err
		}
		ap.keeper.SetReserve(cacheCtx, reserve)
		ap.keeper.SetPosition(cacheCtx, position)

		cacheCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				"deposit",
				sdk.NewAttribute("owner", owner),
				sdk.NewAttribute("asset_id", assetID),
				sdk.NewAttribute("amount", amount.String()),
			),
		)
		return reserve, nil
	})
	return err
}

// Withdraw removes collateral. The post-withdrawal position must remain
// solvent: any debt outstanding keeps its health factor at or above 1.0.
func (ap *ActionProcessor) Withdraw(ctx sdk.Context, owner, assetID string, amount math.LegacyDec) error {
	if !amount.IsPositive() {
		return types.ErrInvalidAmount.Wrap("withdraw amount must be positive")
	}
	assetParams, err := ap.keeper.GetAssetParams(ctx, assetID)
	if err != nil {
		return err
	}

	_, err = ap.process(ctx, "withdraw", owner, assetID, func(cacheCtx sdk.Context) (*types.ReserveState, error) {
		position := ap.keeper.GetPosition(cacheCtx, owner)
		if position == nil {
			return nil, types.ErrPositionNotFound.Wrap(owner)
		}
		reserve, err := ap.keeper.AccrueReserve(cacheCtx, assetID)
		if err != nil {
			return nil, err
		}
		if err := position.RemoveCollateral(assetID, amount, reserve.SupplyIndex); err != nil {
			return nil, err
		}
		if err := reserve.Withdraw(amount, assetParams.Rates); err != nil {
			return nil, err
		}
		ap.keeper.SetReserve(cacheCtx, reserve)
		ap.keeper.SetPosition(cacheCtx, position)

		if position.HasDebt() {
			snapshot, err := NewHealthEngine(ap.keeper).ComputeHealth(cacheCtx, position)
			if err != nil {
				return nil, err
			}
			if snapshot.IsLiquidatable() {
				return nil, types.ErrInsufficientCollateral.Wrap("withdrawal would leave position liquidatable")
			}
		}

		cacheCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				"withdraw",
				sdk.NewAttribute("owner", owner),
				sdk.NewAttribute("asset_id", assetID),
				sdk.NewAttribute("amount", amount.String()),
			),
		)
		return reserve, nil
	})
	return err
}

// Borrow draws liquidity against collateral. A new borrow must leave the
// health factor at or above the safe threshold, keeping a buffer between
// fresh debt and the liquidation trigger.
func (ap *ActionProcessor) Borrow(ctx sdk.Context, owner, assetID string, amount math.LegacyDec) error {
	if !amount.IsPositive() {
		return types.ErrInvalidAmount.Wrap("borrow amount must be positive")
	}
	assetParams, err := ap.keeper.GetAssetParams(ctx, assetID)
	if err != nil {
		return err
	}
	marketParams := ap.keeper.GetMarketParams(ctx)
	if marketParams.EmergencyMode {
		return types.ErrEmergencyMode.Wrap("borrows suspended")
	}
	if !assetParams.BorrowsEnabled {
		return types.ErrBorrowsDisabled.Wrap(assetID)
	}
	if amount.LT(assetParams.MinBorrow) {
		return types.ErrAmountTooSmall.Wrapf("borrow %s below minimum %s", amount, assetParams.MinBorrow)
	}

	_, err = ap.process(ctx, "borrow", owner, assetID, func(cacheCtx sdk.Context) (*types.ReserveState, error) {
		position := ap.keeper.GetPosition(cacheCtx, owner)
		if position == nil || !position.HasCollateral() {
			return nil, types.ErrInsufficientCollateral.Wrap("no collateral deposited")
		}
		reserve, err := ap.keeper.AccrueReserve(cacheCtx, assetID)
		if err != nil {
			return nil, err
		}
		if assetParams.BorrowLimit.IsPositive() {
			projected, err := types.SafeAdd(reserve.TotalBorrows, amount)
			if err != nil {
				return nil, err
			}
			if projected.GT(assetParams.BorrowLimit) {
				return nil, types.ErrBorrowLimit.Wrapf("borrow would exceed cap %s", assetParams.BorrowLimit)
			}
		}
		if err := reserve.Borrow(amount, assetParams.MaxUtilization, assetParams.Rates); err != nil {
			return nil, err
		}
		if err := position.AddDebt(assetID, amount, reserve.BorrowIndex); err != nil {
			return nil, err
		}
		ap.keeper.SetReserve(cacheCtx, reserve)
		ap.keeper.SetPosition(cacheCtx, position)

		snapshot, err := NewHealthEngine(ap.keeper).ComputeHealth(cacheCtx, position)
		if err != nil {
			return nil, err
		}
		if snapshot.IsLiquidatable() {
			return nil, types.ErrInsufficientCollateral.Wrap("borrow exceeds collateral capacity")
		}
		if snapshot.IsBorrowRestricted(marketParams.SafeHealthThreshold) {
			factor, _ := snapshot.HealthFactor()
			return nil, types.ErrBorrowRestricted.Wrapf("health factor %s below safe threshold %s",
				factor, marketParams.SafeHealthThreshold)
		}

		cacheCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				"borrow",
				sdk.NewAttribute("owner", owner),
				sdk.NewAttribute("asset_id", assetID),
				sdk.NewAttribute("amount", amount.String()),
			),
		)
		return reserve, nil
	})
	return err
}

// Repay pays down debt. Amounts beyond the outstanding debt are clamped, so
// overpaying is safe and never flips the position negative. Repay stays
// available in emergency mode.
func (ap *ActionProcessor) Repay(ctx sdk.Context, owner, assetID string, amount math.LegacyDec) (math.LegacyDec, error) {
	if !amount.IsPositive() {
		return math.LegacyDec{}, types.ErrInvalidAmount.Wrap("repay amount must be positive")
	}
	assetParams, err := ap.keeper.GetAssetParams(ctx, assetID)
	if err != nil {
		return math.LegacyDec{}, err
	}

	var applied math.LegacyDec
	_, err = ap.process(ctx, "repay", owner, assetID, func(cacheCtx sdk.Context) (*types.ReserveState, error) {
		position := ap.keeper.GetPosition(cacheCtx, owner)
		if position == nil || !position.HasDebtIn(assetID) {
			return nil, types.ErrNoDebt.Wrapf("%s has no %s debt", owner, assetID)
		}
		reserve, err := ap.keeper.AccrueReserve(cacheCtx, assetID)
		if err != nil {
			return nil, err
		}
		applied, err = position.RemoveDebt(assetID, amount, reserve.BorrowIndex)
		if err != nil {
			return nil, err
		}
		if _, err := reserve.Repay(applied, assetParams.Rates); err != nil {
			return nil, err
		}
		ap.keeper.SetReserve(cacheCtx, reserve)
		ap.keeper.SetPosition(cacheCtx, position)

		cacheCtx.EventManager().EmitEvent(
			sdk.NewEvent(
				"repay",
				sdk.NewAttribute("owner", owner),
				sdk.NewAttribute("asset_id", assetID),
				sdk.NewAttribute("amount", applied.String()),
			),
		)
		return reserve, nil
	})
	if err != nil {
		return math.LegacyDec{}, err
	}
	return applied, nil
}

// Liquidate runs the liquidation lifecycle under the same sequencing
// discipline as every other action: both reserves and both accounts are
// locked in global key order, the engine runs on a cache branch, and the
// branch commits only if none of the touched records moved underneath it.
// A rejected attempt still commits, so the audit trail keeps the rejection.
func (ap *ActionProcessor) Liquidate(ctx sdk.Context, liquidator, borrower, debtAssetID, collateralAssetID string, repayRequested math.LegacyDec) (*LiquidationResult, error) {
	release := ap.locks.acquire(
		assetLockKey(debtAssetID),
		assetLockKey(collateralAssetID),
		accountLockKey(borrower),
		accountLockKey(liquidator),
	)
	defer release()

	params := ap.keeper.GetMarketParams(ctx)
	engine := NewLiquidationEngine(ap.keeper)

	var lastErr error
	for attempt := 0; attempt < params.MaxCommitRetries; attempt++ {
		debtVer := ap.keeper.reserveVersion(ctx, debtAssetID)
		collVer := ap.keeper.reserveVersion(ctx, collateralAssetID)
		borrowerVer := ap.keeper.positionVersion(ctx, borrower)

		cacheCtx, write := ctx.CacheContext()
		result, err := engine.Liquidate(cacheCtx, liquidator, borrower, debtAssetID, collateralAssetID, repayRequested)
		if err != nil {
			if errors.Is(err, types.ErrNotLiquidatable) {
				write()
			}
			metrics.GetCollector().RecordAction("liquidate", debtAssetID, "rejected")
			return nil, err
		}

		if ap.keeper.reserveVersion(ctx, debtAssetID) != debtVer ||
			ap.keeper.reserveVersion(ctx, collateralAssetID) != collVer ||
			ap.keeper.positionVersion(ctx, borrower) != borrowerVer {
			lastErr = types.ErrContention.Wrapf("liquidate %s by %s", borrower, liquidator)
			continue
		}
		write()

		metrics.GetCollector().RecordAction("liquidate", debtAssetID, "committed")
		ap.keeper.RefreshHealthIndex(ctx, borrower)
		return result, nil
	}

	metrics.GetCollector().RecordAction("liquidate", debtAssetID, "contention")
	ap.keeper.Logger().Warn("action failed after retries",
		"action", "liquidate",
		"borrower", borrower,
		"liquidator", liquidator,
		"retries", params.MaxCommitRetries,
	)
	return nil, lastErr
}

// GetHealth accrues all reserves the position touches and returns a fresh
// solvency snapshot.
func (ap *ActionProcessor) GetHealth(ctx sdk.Context, owner string) (*types.HealthSnapshot, error) {
	position := ap.keeper.GetPosition(ctx, owner)
	if position == nil {
		return nil, types.ErrPositionNotFound.Wrap(owner)
	}
	for _, entry := range position.Collateral {
		if _, err := ap.keeper.AccrueReserve(ctx, entry.AssetID); err != nil {
			return nil, err
		}
	}
	for _, entry := range position.Debts {
		if _, err := ap.keeper.AccrueReserve(ctx, entry.AssetID); err != nil {
			return nil, err
		}
	}
	return NewHealthEngine(ap.keeper).ComputeHealth(ctx, position)
}
