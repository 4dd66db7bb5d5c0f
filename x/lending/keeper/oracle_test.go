package keeper

import (
	"errors"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/openalpha/radiant-lend/x/lending/types"
)

func TestOracleSourceRegistration(t *testing.T) {
	k, ctx, _ := setupKeeper(t)

	k.InitDefaultOracleSources(ctx)

	pyth := k.GetOracleSource(ctx, "pyth")
	if pyth == nil {
		t.Fatal("expected pyth source")
	}
	if pyth.Weight != 3 || !pyth.IsActive {
		t.Errorf("unexpected pyth source: %+v", pyth)
	}

	switchboard := k.GetOracleSource(ctx, "switchboard")
	if switchboard == nil || switchboard.Weight != 2 {
		t.Errorf("unexpected switchboard source: %+v", switchboard)
	}

	if got := len(k.GetAllOracleSources(ctx)); got != 2 {
		t.Errorf("expected 2 sources, got %d", got)
	}
}

func TestSubmitSourcePriceUnknownSource(t *testing.T) {
	k, ctx, _ := setupKeeper(t)

	err := k.SubmitSourcePrice(ctx, "chainlink", "SOL", math.LegacyNewDec(10), math.LegacyZeroDec())
	if !errors.Is(err, types.ErrSourceNotFound) {
		t.Errorf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestSubmitSourcePriceInactiveSource(t *testing.T) {
	k, ctx, _ := setupKeeper(t)

	k.SetOracleSource(ctx, &types.OracleSource{SourceID: "pyth", Weight: 3, IsActive: false})

	err := k.SubmitSourcePrice(ctx, "pyth", "SOL", math.LegacyNewDec(10), math.LegacyZeroDec())
	if !errors.Is(err, types.ErrSourceInactive) {
		t.Errorf("expected ErrSourceInactive, got %v", err)
	}
}

func TestSubmitSourcePriceValidation(t *testing.T) {
	k, ctx, _ := setupKeeper(t)
	k.InitDefaultOracleSources(ctx)

	err := k.SubmitSourcePrice(ctx, "pyth", "SOL", math.LegacyZeroDec(), math.LegacyZeroDec())
	if !errors.Is(err, types.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for zero price, got %v", err)
	}
	err = k.SubmitSourcePrice(ctx, "pyth", "SOL", math.LegacyNewDec(10), math.LegacyNewDec(-1))
	if !errors.Is(err, types.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for negative confidence, got %v", err)
	}
}

func TestSubmitSourcePriceStoresSubmission(t *testing.T) {
	k, ctx, _ := setupKeeper(t)
	k.InitDefaultOracleSources(ctx)

	if err := k.SubmitSourcePrice(ctx, "pyth", "SOL", math.LegacyNewDec(100), math.LegacyOneDec()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	sp := k.getSourcePrice(ctx, "pyth", "SOL")
	if sp == nil {
		t.Fatal("expected stored submission")
	}
	if !sp.Price.Equal(math.LegacyNewDec(100)) || !sp.Timestamp.Equal(ctx.BlockTime()) {
		t.Errorf("unexpected submission: %+v", sp)
	}

	source := k.GetOracleSource(ctx, "pyth")
	if !source.LastUpdate.Equal(ctx.BlockTime()) {
		t.Errorf("expected source last update %s, got %s", ctx.BlockTime(), source.LastUpdate)
	}
}

func TestSubmitSourcePriceCircuitBreaker(t *testing.T) {
	k, ctx, _ := setupKeeper(t)
	k.InitDefaultOracleSources(ctx)

	k.SetQuote(ctx, &types.PriceQuote{
		AssetID:    "SOL",
		Price:      math.LegacyNewDec(100),
		Confidence: math.LegacyZeroDec(),
		Timestamp:  ctx.BlockTime(),
	})

	// 20% jump against the current quote trips the 10% breaker
	err := k.SubmitSourcePrice(ctx, "pyth", "SOL", math.LegacyNewDec(120), math.LegacyZeroDec())
	if !errors.Is(err, types.ErrPriceDeviation) {
		t.Errorf("expected ErrPriceDeviation, got %v", err)
	}
	if k.getSourcePrice(ctx, "pyth", "SOL") != nil {
		t.Error("rejected submission must not be stored")
	}

	// 5% moves pass
	if err := k.SubmitSourcePrice(ctx, "pyth", "SOL", math.LegacyNewDec(105), math.LegacyZeroDec()); err != nil {
		t.Errorf("expected 5%% move to pass, got %v", err)
	}
}

func TestAggregateQuoteWeightedAverage(t *testing.T) {
	k, ctx, _ := setupKeeper(t)
	k.InitDefaultOracleSources(ctx)

	if err := k.SubmitSourcePrice(ctx, "pyth", "SOL", math.LegacyNewDec(100), math.LegacyMustNewDecFromStr("0.5")); err != nil {
		t.Fatalf("submit pyth: %v", err)
	}
	if err := k.SubmitSourcePrice(ctx, "switchboard", "SOL", math.LegacyNewDec(102), math.LegacyMustNewDecFromStr("0.8")); err != nil {
		t.Fatalf("submit switchboard: %v", err)
	}

	quote, err := k.AggregateQuote(ctx, "SOL")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	// (100*3 + 102*2) / 5 = 100.8
	if !quote.Price.Equal(math.LegacyMustNewDecFromStr("100.8")) {
		t.Errorf("expected weighted price 100.8, got %s", quote.Price)
	}
	// confidence is the widest surviving interval
	if !quote.Confidence.Equal(math.LegacyMustNewDecFromStr("0.8")) {
		t.Errorf("expected confidence 0.8, got %s", quote.Confidence)
	}

	stored := k.GetQuote(ctx, "SOL")
	if stored == nil || !stored.Price.Equal(quote.Price) {
		t.Error("aggregated quote must be persisted")
	}
}

func TestAggregateQuoteFiltersOutliers(t *testing.T) {
	k, ctx, _ := setupKeeper(t)
	k.InitDefaultOracleSources(ctx)
	k.SetOracleSource(ctx, &types.OracleSource{SourceID: "backup", Weight: 1, IsActive: true})

	if err := k.SubmitSourcePrice(ctx, "pyth", "SOL", math.LegacyNewDec(100), math.LegacyZeroDec()); err != nil {
		t.Fatalf("submit pyth: %v", err)
	}
	if err := k.SubmitSourcePrice(ctx, "switchboard", "SOL", math.LegacyNewDec(101), math.LegacyZeroDec()); err != nil {
		t.Fatalf("submit switchboard: %v", err)
	}
	// no prior quote exists, so the breaker does not apply to this outlier
	if err := k.SubmitSourcePrice(ctx, "backup", "SOL", math.LegacyNewDec(150), math.LegacyZeroDec()); err != nil {
		t.Fatalf("submit backup: %v", err)
	}

	quote, err := k.AggregateQuote(ctx, "SOL")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	// 150 deviates ~48% from the median and is dropped; (100*3 + 101*2) / 5 = 100.4
	if !quote.Price.Equal(math.LegacyMustNewDecFromStr("100.4")) {
		t.Errorf("expected outlier-filtered price 100.4, got %s", quote.Price)
	}
}

func TestAggregateQuoteSkipsStaleSubmissions(t *testing.T) {
	k, ctx, _ := setupKeeper(t)
	k.InitDefaultOracleSources(ctx)

	if err := k.SubmitSourcePrice(ctx, "pyth", "SOL", math.LegacyNewDec(100), math.LegacyZeroDec()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// advance past the staleness bound; the submission no longer counts
	later := ctx.WithBlockTime(ctx.BlockTime().Add(5 * time.Minute))
	_, err := k.AggregateQuote(later, "SOL")
	if !errors.Is(err, types.ErrTooFewSources) {
		t.Errorf("expected ErrTooFewSources, got %v", err)
	}
}

func TestAggregateQuoteNoSubmissions(t *testing.T) {
	k, ctx, _ := setupKeeper(t)
	k.InitDefaultOracleSources(ctx)

	_, err := k.AggregateQuote(ctx, "SOL")
	if !errors.Is(err, types.ErrTooFewSources) {
		t.Errorf("expected ErrTooFewSources, got %v", err)
	}
}

func TestStoreOracleUnavailable(t *testing.T) {
	k, ctx, _ := setupKeeper(t)

	_, err := StoreOracle{keeper: k}.GetPrice(ctx, "SOL")
	if !errors.Is(err, types.ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable, got %v", err)
	}

	k.SetQuote(ctx, &types.PriceQuote{
		AssetID:    "SOL",
		Price:      math.LegacyNewDec(42),
		Confidence: math.LegacyZeroDec(),
		Timestamp:  ctx.BlockTime(),
	})
	quote, err := StoreOracle{keeper: k}.GetPrice(ctx, "SOL")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if !quote.Price.Equal(math.LegacyNewDec(42)) {
		t.Errorf("expected 42, got %s", quote.Price)
	}
}
