package keeper

import (
	"strconv"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/openalpha/radiant-lend/metrics"
	"github.com/openalpha/radiant-lend/x/lending/types"
)

// EndBlocker accrues every reserve up to block time, refreshes the at-risk
// index for indebted accounts and publishes solvency telemetry. Accrual
// failures on one reserve are logged and do not stall the others.
func (k *Keeper) EndBlocker(ctx sdk.Context) error {
	for _, asset := range k.GetAllAssets(ctx) {
		reserve, err := k.AccrueReserve(ctx, asset.AssetID)
		if err != nil {
			k.logger.Error("reserve accrual failed", "asset", asset.AssetID, "error", err)
			continue
		}
		metrics.GetCollector().UpdateReserve(asset.AssetID,
			decToFloat(reserve.Utilization()),
			decToFloat(reserve.BorrowRate),
			decToFloat(reserve.SupplyRate),
			decToFloat(reserve.TotalDeposits),
			decToFloat(reserve.TotalBorrows),
		)
	}

	for _, position := range k.GetAllPositions(ctx) {
		if position.HasDebt() {
			k.RefreshHealthIndex(ctx, position.Owner)
		}
	}

	params := k.GetMarketParams(ctx)
	atRisk := len(k.AtRiskAccounts(params.SafeHealthThreshold, 0))
	metrics.GetCollector().UpdateHealthGauges(atRisk, k.healthIndex.Len())
	metrics.GetCollector().BlockHeight.Set(float64(ctx.BlockHeight()))

	return nil
}

// SetEmergencyMode flips the market-wide emergency switch. Only the
// governance authority may call it through the administrative surface.
func (k *Keeper) SetEmergencyMode(ctx sdk.Context, enabled bool) {
	params := k.GetMarketParams(ctx)
	params.EmergencyMode = enabled
	k.SetMarketParams(ctx, params)
	k.logger.Info("emergency mode changed", "enabled", enabled)

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"emergency_mode",
			sdk.NewAttribute("enabled", strconv.FormatBool(enabled)),
		),
	)
}

// CollectProtocolFees drains a reserve's accrued protocol fee balance and
// returns the drained amount. Fees accumulate from the reserve-factor cut of
// interest and the protocol share of liquidation bonuses; collection is the
// administrative counterpart that zeroes the accumulator.
func (k *Keeper) CollectProtocolFees(ctx sdk.Context, assetID string) (math.LegacyDec, error) {
	reserve := k.GetReserve(ctx, assetID)
	if reserve == nil {
		return math.LegacyDec{}, types.ErrUnknownAsset.Wrap(assetID)
	}
	collected := reserve.AccruedProtocolFees
	if !collected.IsPositive() {
		return math.LegacyZeroDec(), nil
	}
	reserve.AccruedProtocolFees = math.LegacyZeroDec()
	k.SetReserve(ctx, reserve)

	k.logger.Info("protocol fees collected", "asset", assetID, "amount", collected.String())
	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"protocol_fees_collected",
			sdk.NewAttribute("asset_id", assetID),
			sdk.NewAttribute("amount", collected.String()),
		),
	)
	return collected, nil
}

// TotalValueLocked sums deposits across reserves at stored quote prices.
// Reserves without a usable quote are skipped.
func (k *Keeper) TotalValueLocked(ctx sdk.Context) math.LegacyDec {
	total := math.LegacyZeroDec()
	for _, reserve := range k.GetAllReserves(ctx) {
		quote := k.GetQuote(ctx, reserve.AssetID)
		if quote == nil || !quote.Price.IsPositive() {
			continue
		}
		total = total.Add(reserve.TotalDeposits.Mul(quote.Price))
	}
	return total
}
