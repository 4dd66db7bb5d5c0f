package types

import (
	"testing"

	"cosmossdk.io/math"
)

const testOwner = "cosmos1owner"

func TestDebtGrowsWithIndex(t *testing.T) {
	p := NewPosition(testOwner)
	one := math.LegacyOneDec()

	if err := p.AddDebt("USDC", math.LegacyNewDec(100), one); err != nil {
		t.Fatalf("add debt: %v", err)
	}

	// Index moved 10%: debt follows without any explicit update
	index := math.LegacyMustNewDecFromStr("1.1")
	debt, err := p.DebtAmount("USDC", index)
	if err != nil {
		t.Fatalf("debt amount: %v", err)
	}
	expected := math.LegacyMustNewDecFromStr("110")
	if !debt.Equal(expected) {
		t.Errorf("expected debt %s at index 1.1, got %s", expected, debt)
	}
}

func TestAddDebtFoldsAccruedInterest(t *testing.T) {
	p := NewPosition(testOwner)
	one := math.LegacyOneDec()

	if err := p.AddDebt("USDC", math.LegacyNewDec(100), one); err != nil {
		t.Fatalf("add debt: %v", err)
	}

	// Second borrow at index 1.2: the first 100 has grown to 120
	index := math.LegacyMustNewDecFromStr("1.2")
	if err := p.AddDebt("USDC", math.LegacyNewDec(50), index); err != nil {
		t.Fatalf("add debt: %v", err)
	}

	debt, err := p.DebtAmount("USDC", index)
	if err != nil {
		t.Fatalf("debt amount: %v", err)
	}
	expected := math.LegacyNewDec(170)
	if !debt.Equal(expected) {
		t.Errorf("expected debt %s, got %s", expected, debt)
	}

	// At index 1.44 the rebased 170 grows by 1.44/1.2 = 1.2
	later := math.LegacyMustNewDecFromStr("1.44")
	debt, err = p.DebtAmount("USDC", later)
	if err != nil {
		t.Fatalf("debt amount: %v", err)
	}
	expected = math.LegacyNewDec(204)
	if !debt.Equal(expected) {
		t.Errorf("expected debt %s, got %s", expected, debt)
	}
}

func TestRemoveDebtClampsAndDrops(t *testing.T) {
	p := NewPosition(testOwner)
	one := math.LegacyOneDec()

	if err := p.AddDebt("USDC", math.LegacyNewDec(100), one); err != nil {
		t.Fatalf("add debt: %v", err)
	}

	applied, err := p.RemoveDebt("USDC", math.LegacyNewDec(250), one)
	if err != nil {
		t.Fatalf("remove debt: %v", err)
	}
	if !applied.Equal(math.LegacyNewDec(100)) {
		t.Errorf("expected clamp to 100, got %s", applied)
	}
	if p.HasDebtIn("USDC") {
		t.Error("fully repaid entry must be dropped")
	}

	if _, err := p.RemoveDebt("USDC", math.LegacyNewDec(1), one); err == nil {
		t.Error("repaying absent debt must fail")
	}
}

func TestCollateralAccruesSupplyInterest(t *testing.T) {
	p := NewPosition(testOwner)
	one := math.LegacyOneDec()

	if err := p.AddCollateral("SOL", math.LegacyNewDec(10), one); err != nil {
		t.Fatalf("add collateral: %v", err)
	}

	index := math.LegacyMustNewDecFromStr("1.05")
	amount, err := p.CollateralAmount("SOL", index)
	if err != nil {
		t.Fatalf("collateral amount: %v", err)
	}
	expected := math.LegacyMustNewDecFromStr("10.5")
	if !amount.Equal(expected) {
		t.Errorf("expected collateral %s, got %s", expected, amount)
	}
}

func TestRemoveCollateralGuards(t *testing.T) {
	p := NewPosition(testOwner)
	one := math.LegacyOneDec()

	if err := p.RemoveCollateral("SOL", math.LegacyNewDec(1), one); err == nil {
		t.Error("removing absent collateral must fail")
	}

	if err := p.AddCollateral("SOL", math.LegacyNewDec(10), one); err != nil {
		t.Fatalf("add collateral: %v", err)
	}
	if err := p.RemoveCollateral("SOL", math.LegacyNewDec(11), one); err == nil {
		t.Error("overdrawing collateral must fail")
	}

	if err := p.RemoveCollateral("SOL", math.LegacyNewDec(10), one); err != nil {
		t.Fatalf("remove collateral: %v", err)
	}
	if p.HasCollateralIn("SOL") {
		t.Error("zeroed entry must be dropped")
	}
}

func TestZeroSnapshotRejected(t *testing.T) {
	p := NewPosition(testOwner)
	p.Debts = append(p.Debts, DebtEntry{
		AssetID:  "USDC",
		Amount:   math.LegacyNewDec(100),
		Snapshot: math.LegacyZeroDec(),
	})

	if _, err := p.DebtAmount("USDC", math.LegacyOneDec()); err == nil {
		t.Error("zero snapshot index must fail, not divide")
	}
}
