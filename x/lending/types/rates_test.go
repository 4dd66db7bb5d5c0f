package types

import (
	"testing"

	"cosmossdk.io/math"
)

func TestDefaultRateConfig(t *testing.T) {
	cfg := DefaultRateConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.OptimalUtilization.String() != "0.800000000000000000" {
		t.Errorf("expected optimal utilization 0.80, got %s", cfg.OptimalUtilization)
	}
	if cfg.BaseRate.String() != "0.020000000000000000" {
		t.Errorf("expected base rate 0.02, got %s", cfg.BaseRate)
	}
}

func TestBorrowRateAtZeroUtilization(t *testing.T) {
	cfg := DefaultRateConfig()
	rate := cfg.BorrowRate(math.LegacyZeroDec())
	if !rate.Equal(cfg.BaseRate) {
		t.Errorf("expected base rate at zero utilization, got %s", rate)
	}
}

func TestBorrowRateAtKink(t *testing.T) {
	cfg := DefaultRateConfig()

	// At the kink the low segment prices the rate: base + slope1
	rate := cfg.BorrowRate(cfg.OptimalUtilization)
	expected := cfg.BaseRate.Add(cfg.Slope1)
	if !rate.Equal(expected) {
		t.Errorf("expected %s at kink, got %s", expected, rate)
	}

	// Just below the kink must not exceed the kink rate
	justBelow := cfg.OptimalUtilization.Sub(math.LegacyNewDecWithPrec(1, 6))
	if cfg.BorrowRate(justBelow).GT(rate) {
		t.Error("rate just below kink exceeds kink rate")
	}

	// Just above the kink the steep segment takes over
	justAbove := cfg.OptimalUtilization.Add(math.LegacyNewDecWithPrec(1, 6))
	if cfg.BorrowRate(justAbove).LT(rate) {
		t.Error("rate just above kink is below kink rate")
	}
}

func TestBorrowRateSteepSegment(t *testing.T) {
	cfg := DefaultRateConfig()

	// At 90% utilization: 0.02 + 0.10 + ((0.90-0.80)/0.20)*1.00 = 0.62
	rate := cfg.BorrowRate(math.LegacyNewDecWithPrec(90, 2))
	expected := math.LegacyMustNewDecFromStr("0.62")
	if !rate.Equal(expected) {
		t.Errorf("expected %s at 90%% utilization, got %s", expected, rate)
	}

	// At full utilization: 0.02 + 0.10 + 1.00 = 1.12
	rate = cfg.BorrowRate(math.LegacyOneDec())
	expected = math.LegacyMustNewDecFromStr("1.12")
	if !rate.Equal(expected) {
		t.Errorf("expected %s at full utilization, got %s", expected, rate)
	}
}

func TestBorrowRateMonotonic(t *testing.T) {
	cfg := DefaultRateConfig()

	step := math.LegacyNewDecWithPrec(1, 2)
	prev := cfg.BorrowRate(math.LegacyZeroDec())
	u := step
	for i := 1; i <= 100; i++ {
		rate := cfg.BorrowRate(u)
		if rate.LT(prev) {
			t.Fatalf("borrow rate decreased at utilization %s: %s < %s", u, rate, prev)
		}
		prev = rate
		u = u.Add(step)
	}
}

func TestBorrowRateClampsUtilization(t *testing.T) {
	cfg := DefaultRateConfig()

	atOne := cfg.BorrowRate(math.LegacyOneDec())
	above := cfg.BorrowRate(math.LegacyNewDec(2))
	if !above.Equal(atOne) {
		t.Errorf("utilization above 1 must clamp: got %s, want %s", above, atOne)
	}

	atZero := cfg.BorrowRate(math.LegacyZeroDec())
	below := cfg.BorrowRate(math.LegacyNewDec(-1))
	if !below.Equal(atZero) {
		t.Errorf("negative utilization must clamp: got %s, want %s", below, atZero)
	}
}

func TestSupplyRateBelowBorrowRate(t *testing.T) {
	cfg := DefaultRateConfig()

	for _, u := range []string{"0.10", "0.50", "0.80", "0.95", "1.00"} {
		util := math.LegacyMustNewDecFromStr(u)
		borrowRate, supplyRate := cfg.Rates(util)
		if supplyRate.GTE(borrowRate) {
			t.Errorf("supply rate %s >= borrow rate %s at utilization %s", supplyRate, borrowRate, u)
		}
	}
}

func TestSupplyRateReserveFactorCut(t *testing.T) {
	cfg := DefaultRateConfig()

	// At 50% utilization: borrow = 0.02 + (0.5/0.8)*0.10 = 0.0825
	// supply = 0.0825 * 0.50 * 0.90 = 0.037125
	util := math.LegacyNewDecWithPrec(50, 2)
	borrowRate, supplyRate := cfg.Rates(util)
	if borrowRate.String() != "0.082500000000000000" {
		t.Errorf("expected borrow rate 0.0825, got %s", borrowRate)
	}
	expected := math.LegacyMustNewDecFromStr("0.037125")
	if !supplyRate.Equal(expected) {
		t.Errorf("expected supply rate %s, got %s", expected, supplyRate)
	}
}

func TestRateConfigValidate(t *testing.T) {
	cfg := DefaultRateConfig()

	bad := cfg
	bad.OptimalUtilization = math.LegacyNewDec(2)
	if bad.Validate() == nil {
		t.Error("optimal utilization above 1 must be rejected")
	}

	bad = cfg
	bad.BaseRate = math.LegacyNewDec(-1)
	if bad.Validate() == nil {
		t.Error("negative base rate must be rejected")
	}

	bad = cfg
	bad.ReserveFactor = math.LegacyNewDecWithPrec(60, 2)
	if bad.Validate() == nil {
		t.Error("reserve factor above 50% must be rejected")
	}
}
