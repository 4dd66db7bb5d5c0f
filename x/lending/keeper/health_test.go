package keeper

import (
	"testing"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/openalpha/radiant-lend/x/lending/types"
)

// seedPosition stores a position with SOL collateral and USDC debt and the
// matching reserve balances
func seedPosition(t *testing.T, k *Keeper, ctx sdk.Context, collateral, debt int64) {
	t.Helper()

	solParams, _ := k.GetAssetParams(ctx, "SOL")
	usdcParams, _ := k.GetAssetParams(ctx, "USDC")

	sol := k.GetReserve(ctx, "SOL")
	if err := sol.Deposit(math.LegacyNewDec(collateral), solParams.Rates); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	k.SetReserve(ctx, sol)

	usdc := k.GetReserve(ctx, "USDC")
	if err := usdc.Deposit(math.LegacyNewDec(debt*2), usdcParams.Rates); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	if debt > 0 {
		if err := usdc.Borrow(math.LegacyNewDec(debt), usdcParams.MaxUtilization, usdcParams.Rates); err != nil {
			t.Fatalf("seed borrow: %v", err)
		}
	}
	k.SetReserve(ctx, usdc)

	position := k.GetOrCreatePosition(ctx, testBob)
	if err := position.AddCollateral("SOL", math.LegacyNewDec(collateral), sol.SupplyIndex); err != nil {
		t.Fatalf("seed collateral: %v", err)
	}
	if debt > 0 {
		if err := position.AddDebt("USDC", math.LegacyNewDec(debt), usdc.BorrowIndex); err != nil {
			t.Fatalf("seed debt: %v", err)
		}
	}
	k.SetPosition(ctx, position)
}

func TestComputeHealthScenario(t *testing.T) {
	k, ctx, oracle := setupKeeper(t)
	registerTestAssets(t, k, ctx)
	oracle.SetPrice("SOL", math.LegacyNewDec(10))
	oracle.SetPrice("USDC", math.LegacyNewDec(10))

	// 100 SOL at $10 with 0.85 threshold against 70 USDC-units of debt at $10
	seedPosition(t, k, ctx, 100, 70)

	engine := NewHealthEngine(k)
	snapshot, err := engine.ComputeHealth(ctx, k.GetPosition(ctx, testBob))
	if err != nil {
		t.Fatalf("compute health: %v", err)
	}

	if !snapshot.CollateralValue.Equal(math.LegacyNewDec(1000)) {
		t.Errorf("expected collateral value 1000, got %s", snapshot.CollateralValue)
	}
	if !snapshot.LiquidationValue.Equal(math.LegacyNewDec(850)) {
		t.Errorf("expected liquidation value 850, got %s", snapshot.LiquidationValue)
	}
	if !snapshot.DebtValue.Equal(math.LegacyNewDec(700)) {
		t.Errorf("expected debt value 700, got %s", snapshot.DebtValue)
	}

	factor, hasDebt := snapshot.HealthFactor()
	if !hasDebt {
		t.Fatal("expected finite health factor")
	}
	// 850 / 700 = 1.2142857...
	if factor.LT(math.LegacyMustNewDecFromStr("1.214285")) || factor.GT(math.LegacyMustNewDecFromStr("1.214286")) {
		t.Errorf("expected health factor ~1.2142857, got %s", factor)
	}
	if snapshot.IsLiquidatable() {
		t.Error("position above waterline must not be liquidatable")
	}
}

func TestComputeHealthPriceDrop(t *testing.T) {
	k, ctx, oracle := setupKeeper(t)
	registerTestAssets(t, k, ctx)
	oracle.SetPrice("SOL", math.LegacyNewDec(10))
	oracle.SetPrice("USDC", math.LegacyNewDec(10))
	seedPosition(t, k, ctx, 100, 70)

	// SOL drops to $8: 100*8*0.85 = 680 against 700 of debt
	oracle.SetPrice("SOL", math.LegacyNewDec(8))

	snapshot, err := NewHealthEngine(k).ComputeHealth(ctx, k.GetPosition(ctx, testBob))
	if err != nil {
		t.Fatalf("compute health: %v", err)
	}
	if !snapshot.IsLiquidatable() {
		factor, _ := snapshot.HealthFactor()
		t.Errorf("expected liquidatable position, health factor %s", factor)
	}
}

func TestComputeHealthNoDebt(t *testing.T) {
	k, ctx, oracle := setupKeeper(t)
	registerTestAssets(t, k, ctx)
	oracle.SetPrice("SOL", math.LegacyNewDec(10))
	seedPosition(t, k, ctx, 100, 0)

	snapshot, err := NewHealthEngine(k).ComputeHealth(ctx, k.GetPosition(ctx, testBob))
	if err != nil {
		t.Fatalf("compute health: %v", err)
	}

	if _, hasDebt := snapshot.HealthFactor(); hasDebt {
		t.Error("zero debt must report infinite health")
	}
	if snapshot.IsLiquidatable() {
		t.Error("zero-debt position must never be liquidatable")
	}
	if snapshot.IsBorrowRestricted(math.LegacyMustNewDecFromStr("1.05")) {
		t.Error("zero-debt position must not be borrow restricted")
	}
}

// staleOracle serves quotes pinned to a fixed timestamp
type staleOracle struct {
	price math.LegacyDec
	at    time.Time
}

func (o staleOracle) GetPrice(ctx sdk.Context, assetID string) (*types.PriceQuote, error) {
	return &types.PriceQuote{
		AssetID:    assetID,
		Price:      o.price,
		Confidence: math.LegacyZeroDec(),
		Timestamp:  o.at,
	}, nil
}

func TestComputeHealthRejectsStalePrice(t *testing.T) {
	k, ctx, oracle := setupKeeper(t)
	registerTestAssets(t, k, ctx)
	oracle.SetPrice("SOL", math.LegacyNewDec(10))
	oracle.SetPrice("USDC", math.LegacyNewDec(10))
	seedPosition(t, k, ctx, 100, 70)

	// Quotes older than the staleness bound fail the computation outright
	k.SetPriceOracle(staleOracle{
		price: math.LegacyNewDec(10),
		at:    ctx.BlockTime().Add(-10 * time.Minute),
	})

	_, err := NewHealthEngine(k).ComputeHealth(ctx, k.GetPosition(ctx, testBob))
	if err == nil {
		t.Fatal("stale price must fail the health computation")
	}
}

// wideOracle serves quotes with an oversized confidence interval
type wideOracle struct{}

func (wideOracle) GetPrice(ctx sdk.Context, assetID string) (*types.PriceQuote, error) {
	return &types.PriceQuote{
		AssetID:    assetID,
		Price:      math.LegacyNewDec(10),
		Confidence: math.LegacyNewDec(1), // 10% of price, above the 2% bound
		Timestamp:  ctx.BlockTime(),
	}, nil
}

func TestComputeHealthRejectsLowConfidence(t *testing.T) {
	k, ctx, oracle := setupKeeper(t)
	registerTestAssets(t, k, ctx)
	oracle.SetPrice("SOL", math.LegacyNewDec(10))
	oracle.SetPrice("USDC", math.LegacyNewDec(10))
	seedPosition(t, k, ctx, 100, 70)

	k.SetPriceOracle(wideOracle{})

	_, err := NewHealthEngine(k).ComputeHealth(ctx, k.GetPosition(ctx, testBob))
	if err == nil {
		t.Fatal("low-confidence price must fail the health computation")
	}
}

func TestHealthIndexOrdering(t *testing.T) {
	idx := newHealthIndex()

	idx.Update("acct-healthy", math.LegacyMustNewDecFromStr("1.50"), true)
	idx.Update("acct-worst", math.LegacyMustNewDecFromStr("0.80"), true)
	idx.Update("acct-mid", math.LegacyMustNewDecFromStr("0.95"), true)
	idx.Update("acct-nodebt", math.LegacyMustNewDecFromStr("0.10"), false)

	below := idx.Below(math.LegacyOneDec(), 0)
	if len(below) != 2 {
		t.Fatalf("expected 2 accounts below 1.0, got %d", len(below))
	}
	if below[0] != "acct-worst" || below[1] != "acct-mid" {
		t.Errorf("expected worst-first ordering, got %v", below)
	}

	// Repositioning replaces the old entry
	idx.Update("acct-worst", math.LegacyMustNewDecFromStr("2.00"), true)
	below = idx.Below(math.LegacyOneDec(), 0)
	if len(below) != 1 || below[0] != "acct-mid" {
		t.Errorf("expected only acct-mid after reposition, got %v", below)
	}

	idx.Remove("acct-mid")
	if len(idx.Below(math.LegacyOneDec(), 0)) != 0 {
		t.Error("expected empty index after removal")
	}

	if idx.Len() != 2 {
		t.Errorf("expected 2 indexed accounts, got %d", idx.Len())
	}
}

func TestUnhealthyAccountsScan(t *testing.T) {
	k, ctx, oracle := setupKeeper(t)
	registerTestAssets(t, k, ctx)
	oracle.SetPrice("SOL", math.LegacyNewDec(10))
	oracle.SetPrice("USDC", math.LegacyNewDec(10))
	seedPosition(t, k, ctx, 100, 70)

	if got := k.UnhealthyAccounts(ctx); len(got) != 0 {
		t.Errorf("expected no unhealthy accounts, got %d", len(got))
	}

	oracle.SetPrice("SOL", math.LegacyNewDec(8))
	got := k.UnhealthyAccounts(ctx)
	if len(got) != 1 || got[0].Owner != testBob {
		t.Errorf("expected bob flagged, got %+v", got)
	}
}
