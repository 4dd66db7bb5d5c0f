package keeper

import (
	"errors"
	"testing"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/openalpha/radiant-lend/x/lending/types"
)

// underwaterPosition seeds bob with 100 SOL collateral and 70 USDC of debt,
// then drops SOL to $8 so the position sits below the waterline:
// 100*8*0.85 = 680 against 700 of debt.
func underwaterPosition(t *testing.T, k *Keeper, ctx sdk.Context, oracle *fixedOracle) {
	t.Helper()
	oracle.SetPrice("SOL", math.LegacyNewDec(10))
	oracle.SetPrice("USDC", math.LegacyNewDec(10))
	seedPosition(t, k, ctx, 100, 70)
	oracle.SetPrice("SOL", math.LegacyNewDec(8))
}

func TestProposeValidation(t *testing.T) {
	k, ctx, _ := setupKeeper(t)
	engine := NewLiquidationEngine(k)

	_, err := engine.Propose(ctx, testLiquidator, testBob, "USDC", "SOL", math.LegacyZeroDec())
	if !errors.Is(err, types.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for zero repay, got %v", err)
	}

	_, err = engine.Propose(ctx, testBob, testBob, "USDC", "SOL", math.LegacyNewDec(10))
	if !errors.Is(err, types.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for self-liquidation, got %v", err)
	}
}

func TestValidateRejectsHealthyPosition(t *testing.T) {
	k, ctx, oracle := setupKeeper(t)
	registerTestAssets(t, k, ctx)
	oracle.SetPrice("SOL", math.LegacyNewDec(10))
	oracle.SetPrice("USDC", math.LegacyNewDec(10))
	seedPosition(t, k, ctx, 100, 70)

	engine := NewLiquidationEngine(k)
	attempt, err := engine.Propose(ctx, testLiquidator, testBob, "USDC", "SOL", math.LegacyNewDec(35))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	err = engine.Validate(ctx, attempt)
	if !errors.Is(err, types.ErrNotLiquidatable) {
		t.Fatalf("expected ErrNotLiquidatable, got %v", err)
	}

	stored := k.GetAttempt(ctx, attempt.AttemptID)
	if stored == nil || stored.Status != types.LiquidationStatusRejected {
		t.Fatalf("expected rejected attempt, got %+v", stored)
	}
	if stored.RejectReason == "" {
		t.Error("rejected attempt must carry its reason")
	}
}

func TestValidateRejectsMissingDebt(t *testing.T) {
	k, ctx, oracle := setupKeeper(t)
	registerTestAssets(t, k, ctx)
	underwaterPosition(t, k, ctx, oracle)

	engine := NewLiquidationEngine(k)
	// bob's debt is in USDC, not SOL
	attempt, err := engine.Propose(ctx, testLiquidator, testBob, "SOL", "SOL", math.LegacyNewDec(35))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	if err := engine.Validate(ctx, attempt); !errors.Is(err, types.ErrNotLiquidatable) {
		t.Errorf("expected ErrNotLiquidatable, got %v", err)
	}
	if stored := k.GetAttempt(ctx, attempt.AttemptID); stored.Status != types.LiquidationStatusRejected {
		t.Errorf("expected rejected attempt, got status %s", stored.Status)
	}
}

func TestExecuteRequiresValidated(t *testing.T) {
	k, ctx, oracle := setupKeeper(t)
	registerTestAssets(t, k, ctx)
	underwaterPosition(t, k, ctx, oracle)

	engine := NewLiquidationEngine(k)
	attempt, err := engine.Propose(ctx, testLiquidator, testBob, "USDC", "SOL", math.LegacyNewDec(35))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	if _, err := engine.Execute(ctx, attempt); !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on proposed attempt, got %v", err)
	}
}

func TestLiquidateLifecycle(t *testing.T) {
	k, ctx, oracle := setupKeeper(t)
	registerTestAssets(t, k, ctx)
	underwaterPosition(t, k, ctx, oracle)

	engine := NewLiquidationEngine(k)
	result, err := engine.Liquidate(ctx, testLiquidator, testBob, "USDC", "SOL", math.LegacyNewDec(70))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	// close factor halves the requested 70 down to 35
	if !result.RepaidAmount.Equal(math.LegacyNewDec(35)) {
		t.Errorf("expected repaid 35, got %s", result.RepaidAmount)
	}
	// seize = 35 * 10/8 * 1.05 = 45.9375
	if !result.CollateralSeized.Equal(math.LegacyMustNewDecFromStr("45.9375")) {
		t.Errorf("expected seized 45.9375, got %s", result.CollateralSeized)
	}
	// bonus = 45.9375 - 45.9375/1.05 = 2.1875
	if !result.BonusAmount.Equal(math.LegacyMustNewDecFromStr("2.1875")) {
		t.Errorf("expected bonus 2.1875, got %s", result.BonusAmount)
	}
	// protocol takes 10% of the bonus
	if !result.ProtocolFee.Equal(math.LegacyMustNewDecFromStr("0.21875")) {
		t.Errorf("expected protocol fee 0.21875, got %s", result.ProtocolFee)
	}

	position := k.GetPosition(ctx, testBob)
	usdc := k.GetReserve(ctx, "USDC")
	sol := k.GetReserve(ctx, "SOL")

	debt, _ := position.DebtAmount("USDC", usdc.BorrowIndex)
	if !debt.Equal(math.LegacyNewDec(35)) {
		t.Errorf("expected remaining debt 35, got %s", debt)
	}
	collateral, _ := position.CollateralAmount("SOL", sol.SupplyIndex)
	if !collateral.Equal(math.LegacyMustNewDecFromStr("54.0625")) {
		t.Errorf("expected remaining collateral 54.0625, got %s", collateral)
	}

	if !usdc.TotalBorrows.Equal(math.LegacyNewDec(35)) {
		t.Errorf("expected debt reserve borrows 35, got %s", usdc.TotalBorrows)
	}
	if !sol.TotalDeposits.Equal(math.LegacyMustNewDecFromStr("54.0625")) {
		t.Errorf("expected collateral reserve deposits 54.0625, got %s", sol.TotalDeposits)
	}
	if !sol.AccruedProtocolFees.Equal(math.LegacyMustNewDecFromStr("0.21875")) {
		t.Errorf("expected protocol fees 0.21875, got %s", sol.AccruedProtocolFees)
	}

	record := k.GetLiquidationRecord(ctx, result.RecordID)
	if record == nil {
		t.Fatal("expected audit record")
	}
	if record.Borrower != testBob || record.Liquidator != testLiquidator {
		t.Errorf("unexpected record parties: %+v", record)
	}
	if !record.RepaidAmount.Equal(result.RepaidAmount) || !record.CollateralSeized.Equal(result.CollateralSeized) {
		t.Errorf("record amounts disagree with result: %+v", record)
	}
}

func TestLiquidateBelowCloseFactorCap(t *testing.T) {
	k, ctx, oracle := setupKeeper(t)
	registerTestAssets(t, k, ctx)
	underwaterPosition(t, k, ctx, oracle)

	result, err := NewLiquidationEngine(k).Liquidate(ctx, testLiquidator, testBob, "USDC", "SOL", math.LegacyNewDec(10))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	if !result.RepaidAmount.Equal(math.LegacyNewDec(10)) {
		t.Errorf("expected repaid 10, got %s", result.RepaidAmount)
	}
	// seize = 10 * 10/8 * 1.05 = 13.125
	if !result.CollateralSeized.Equal(math.LegacyMustNewDecFromStr("13.125")) {
		t.Errorf("expected seized 13.125, got %s", result.CollateralSeized)
	}
}

func TestLiquidateSeizeCappedAtCollateral(t *testing.T) {
	k, ctx, oracle := setupKeeper(t)
	registerTestAssets(t, k, ctx)
	oracle.SetPrice("SOL", math.LegacyNewDec(10))
	oracle.SetPrice("USDC", math.LegacyNewDec(10))
	// thin collateral: 10 SOL against 70 of debt
	seedPosition(t, k, ctx, 10, 70)
	oracle.SetPrice("SOL", math.LegacyNewDec(8))

	result, err := NewLiquidationEngine(k).Liquidate(ctx, testLiquidator, testBob, "USDC", "SOL", math.LegacyNewDec(70))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	if !result.CollateralSeized.Equal(math.LegacyNewDec(10)) {
		t.Errorf("expected full collateral seizure of 10, got %s", result.CollateralSeized)
	}
	// the repay scales down with the seizure so the liquidator never overpays
	if result.RepaidAmount.GTE(math.LegacyNewDec(35)) {
		t.Errorf("expected repaid below the uncapped 35, got %s", result.RepaidAmount)
	}

	position := k.GetPosition(ctx, testBob)
	if position.HasCollateralIn("SOL") {
		t.Error("expected collateral entry removed after full seizure")
	}
}

func TestLiquidateRecordsAccumulate(t *testing.T) {
	k, ctx, oracle := setupKeeper(t)
	registerTestAssets(t, k, ctx)
	underwaterPosition(t, k, ctx, oracle)

	engine := NewLiquidationEngine(k)
	first, err := engine.Liquidate(ctx, testLiquidator, testBob, "USDC", "SOL", math.LegacyNewDec(5))
	if err != nil {
		t.Fatalf("first liquidation: %v", err)
	}
	second, err := engine.Liquidate(ctx, testLiquidator, testBob, "USDC", "SOL", math.LegacyNewDec(5))
	if err != nil {
		t.Fatalf("second liquidation: %v", err)
	}

	if first.RecordID == second.RecordID {
		t.Errorf("record ids must be unique, both %s", first.RecordID)
	}
	if got := len(k.GetAllLiquidationRecords(ctx)); got != 2 {
		t.Errorf("expected 2 records, got %d", got)
	}
}

func TestLiquidateSameAssetReserveConsistent(t *testing.T) {
	k, ctx, oracle := setupKeeper(t)
	registerTestAssets(t, k, ctx)
	oracle.SetPrice("USDC", math.LegacyNewDec(10))

	// bob borrows USDC against USDC: 100 of collateral worth 850 at the
	// liquidation threshold against 900 of debt value
	usdcParams, _ := k.GetAssetParams(ctx, "USDC")
	usdc := k.GetReserve(ctx, "USDC")
	if err := usdc.Deposit(math.LegacyNewDec(200), usdcParams.Rates); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	if err := usdc.Borrow(math.LegacyNewDec(90), usdcParams.MaxUtilization, usdcParams.Rates); err != nil {
		t.Fatalf("seed borrow: %v", err)
	}
	k.SetReserve(ctx, usdc)

	position := k.GetOrCreatePosition(ctx, testBob)
	if err := position.AddCollateral("USDC", math.LegacyNewDec(100), usdc.SupplyIndex); err != nil {
		t.Fatalf("seed collateral: %v", err)
	}
	if err := position.AddDebt("USDC", math.LegacyNewDec(90), usdc.BorrowIndex); err != nil {
		t.Fatalf("seed debt: %v", err)
	}
	k.SetPosition(ctx, position)

	engine := NewLiquidationEngine(k)
	result, err := engine.Liquidate(ctx, testLiquidator, testBob, "USDC", "USDC", math.LegacyNewDec(45))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	if !result.RepaidAmount.Equal(math.LegacyNewDec(45)) {
		t.Errorf("expected repaid 45, got %s", result.RepaidAmount)
	}
	// seize = 45 * 10/10 * 1.05
	if !result.CollateralSeized.Equal(math.LegacyMustNewDecFromStr("47.25")) {
		t.Errorf("expected seized 47.25, got %s", result.CollateralSeized)
	}

	// Both sides of the settlement must land on the single reserve record
	reserve := k.GetReserve(ctx, "USDC")
	if !reserve.TotalBorrows.Equal(math.LegacyNewDec(45)) {
		t.Errorf("expected borrows 45 after repay, got %s", reserve.TotalBorrows)
	}
	if !reserve.TotalDeposits.Equal(math.LegacyMustNewDecFromStr("152.75")) {
		t.Errorf("expected deposits 152.75 after seizure, got %s", reserve.TotalDeposits)
	}
	if !reserve.AccruedProtocolFees.Equal(math.LegacyMustNewDecFromStr("0.225")) {
		t.Errorf("expected protocol fees 0.225, got %s", reserve.AccruedProtocolFees)
	}

	position = k.GetPosition(ctx, testBob)
	debt, _ := position.DebtAmount("USDC", reserve.BorrowIndex)
	if !debt.Equal(math.LegacyNewDec(45)) {
		t.Errorf("expected remaining debt 45, got %s", debt)
	}
	collateral, _ := position.CollateralAmount("USDC", reserve.SupplyIndex)
	if !collateral.Equal(math.LegacyMustNewDecFromStr("52.75")) {
		t.Errorf("expected remaining collateral 52.75, got %s", collateral)
	}
}
