package keeper

import (
	"encoding/json"
	"sort"

	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/openalpha/radiant-lend/metrics"
	"github.com/openalpha/radiant-lend/x/lending/types"
)

// weightedPrice pairs a submission with its aggregation weight
type weightedPrice struct {
	price      math.LegacyDec
	confidence math.LegacyDec
	weight     int
}

// ============ Oracle Configuration ============

// SetOracleConfig saves oracle configuration
func (k *Keeper) SetOracleConfig(ctx sdk.Context, config types.OracleConfig) {
	store := k.GetStore(ctx)
	bz, _ := json.Marshal(config)
	store.Set(OracleConfigKey, bz)
}

// GetOracleConfig retrieves oracle configuration
func (k *Keeper) GetOracleConfig(ctx sdk.Context) types.OracleConfig {
	store := k.GetStore(ctx)
	bz := store.Get(OracleConfigKey)
	if bz == nil {
		return types.DefaultOracleConfig()
	}
	var config types.OracleConfig
	if err := json.Unmarshal(bz, &config); err != nil {
		return types.DefaultOracleConfig()
	}
	return config
}

// ============ Source Management ============

// SetOracleSource saves an oracle source
func (k *Keeper) SetOracleSource(ctx sdk.Context, source *types.OracleSource) {
	store := k.GetStore(ctx)
	key := append(OracleSourceKeyPrefix, []byte(source.SourceID)...)
	bz, _ := json.Marshal(source)
	store.Set(key, bz)
}

// GetOracleSource retrieves an oracle source
func (k *Keeper) GetOracleSource(ctx sdk.Context, sourceID string) *types.OracleSource {
	store := k.GetStore(ctx)
	key := append(OracleSourceKeyPrefix, []byte(sourceID)...)
	bz := store.Get(key)
	if bz == nil {
		return nil
	}
	var source types.OracleSource
	if err := json.Unmarshal(bz, &source); err != nil {
		return nil
	}
	return &source
}

// GetAllOracleSources retrieves all oracle sources
func (k *Keeper) GetAllOracleSources(ctx sdk.Context) []*types.OracleSource {
	store := k.GetStore(ctx)
	iterator := storetypes.KVStorePrefixIterator(store, OracleSourceKeyPrefix)
	defer iterator.Close()

	var sources []*types.OracleSource
	for ; iterator.Valid(); iterator.Next() {
		var source types.OracleSource
		if err := json.Unmarshal(iterator.Value(), &source); err != nil {
			continue
		}
		sources = append(sources, &source)
	}
	return sources
}

// InitDefaultOracleSources registers the configured sources as active
func (k *Keeper) InitDefaultOracleSources(ctx sdk.Context) {
	config := k.GetOracleConfig(ctx)

	for sourceID, weight := range config.SourceWeights {
		source := &types.OracleSource{
			SourceID: sourceID,
			Weight:   weight,
			IsActive: true,
		}
		k.SetOracleSource(ctx, source)
	}
}

// ============ Price Submission and Aggregation ============

// SubmitSourcePrice records a price from a registered source. Submissions
// that jump more than the circuit breaker threshold against the current
// aggregated quote are rejected.
func (k *Keeper) SubmitSourcePrice(ctx sdk.Context, sourceID, assetID string, price, confidence math.LegacyDec) error {
	source := k.GetOracleSource(ctx, sourceID)
	if source == nil {
		return types.ErrSourceNotFound.Wrap(sourceID)
	}
	if !source.IsActive {
		return types.ErrSourceInactive.Wrap(sourceID)
	}
	if !price.IsPositive() || confidence.IsNegative() {
		return types.ErrInvalidAmount.Wrap("price must be positive, confidence non-negative")
	}

	config := k.GetOracleConfig(ctx)

	current := k.GetQuote(ctx, assetID)
	if current != nil && current.Price.IsPositive() {
		deviation := price.Sub(current.Price).Abs().Quo(current.Price)
		if deviation.GT(config.CircuitBreakerPct) {
			k.Logger().Warn("price submission rejected: exceeds circuit breaker",
				"source", sourceID,
				"asset", assetID,
				"submitted_price", price.String(),
				"current_price", current.Price.String(),
				"deviation", deviation.String(),
			)
			metrics.GetCollector().RecordOracleRejection(sourceID, assetID, "circuit_breaker")
			return types.ErrPriceDeviation.Wrapf("deviation %s%% exceeds circuit breaker %s%%",
				deviation.MulInt64(100).String(),
				config.CircuitBreakerPct.MulInt64(100).String())
		}
	}

	source.LastUpdate = ctx.BlockTime()
	k.SetOracleSource(ctx, source)

	k.storeSourcePrice(ctx, &types.SourcePrice{
		SourceID:   sourceID,
		AssetID:    assetID,
		Price:      price,
		Confidence: confidence,
		Timestamp:  ctx.BlockTime(),
	})

	metrics.GetCollector().RecordOracleSubmission(sourceID, assetID)

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"oracle_price_submitted",
			sdk.NewAttribute("source", sourceID),
			sdk.NewAttribute("asset_id", assetID),
			sdk.NewAttribute("price", price.String()),
		),
	)

	return nil
}

// storeSourcePrice stores one source submission for aggregation
func (k *Keeper) storeSourcePrice(ctx sdk.Context, sp *types.SourcePrice) {
	store := k.GetStore(ctx)
	key := append(SourcePriceKeyPrefix, []byte(sp.SourceID+":"+sp.AssetID)...)
	bz, _ := json.Marshal(sp)
	store.Set(key, bz)
}

// getSourcePrice retrieves a stored source submission
func (k *Keeper) getSourcePrice(ctx sdk.Context, sourceID, assetID string) *types.SourcePrice {
	store := k.GetStore(ctx)
	key := append(SourcePriceKeyPrefix, []byte(sourceID+":"+assetID)...)
	bz := store.Get(key)
	if bz == nil {
		return nil
	}
	var sp types.SourcePrice
	if err := json.Unmarshal(bz, &sp); err != nil {
		return nil
	}
	return &sp
}

// AggregateQuote folds fresh source submissions into one stored quote using
// an outlier-filtered weighted median. Stale submissions are skipped; too
// few surviving sources fails the aggregation instead of degrading it.
func (k *Keeper) AggregateQuote(ctx sdk.Context, assetID string) (*types.PriceQuote, error) {
	config := k.GetOracleConfig(ctx)
	sources := k.GetAllOracleSources(ctx)

	var valid []weightedPrice
	now := ctx.BlockTime()

	for _, source := range sources {
		if !source.IsActive {
			continue
		}
		sp := k.getSourcePrice(ctx, source.SourceID, assetID)
		if sp == nil {
			continue
		}
		age := now.Sub(sp.Timestamp)
		if age > config.MaxPriceAge {
			k.Logger().Debug("skipping stale submission",
				"source", source.SourceID,
				"asset", assetID,
				"age", age.String(),
			)
			continue
		}
		valid = append(valid, weightedPrice{
			price:      sp.Price,
			confidence: sp.Confidence,
			weight:     source.Weight,
		})
	}

	if len(valid) < config.MinSources {
		return nil, types.ErrTooFewSources.Wrapf("%d fresh sources, %d required", len(valid), config.MinSources)
	}

	price, confidence, err := aggregateWeighted(valid, config.MaxDeviation)
	if err != nil {
		return nil, err
	}

	quote := &types.PriceQuote{
		AssetID:    assetID,
		Price:      price,
		Confidence: confidence,
		Timestamp:  now,
	}
	k.SetQuote(ctx, quote)
	metrics.GetCollector().RecordOraclePrice(assetID, decToFloat(price))
	return quote, nil
}

// aggregateWeighted filters outliers against the simple median and returns
// the weighted average price plus the widest surviving confidence.
func aggregateWeighted(prices []weightedPrice, maxDeviation math.LegacyDec) (math.LegacyDec, math.LegacyDec, error) {
	if len(prices) == 0 {
		return math.LegacyZeroDec(), math.LegacyZeroDec(), types.ErrTooFewSources.Wrap("no submissions to aggregate")
	}

	sort.Slice(prices, func(i, j int) bool {
		return prices[i].price.LT(prices[j].price)
	})

	median := prices[len(prices)/2].price

	var filtered []weightedPrice
	for _, wp := range prices {
		deviation := wp.price.Sub(median).Abs().Quo(median)
		if deviation.LTE(maxDeviation) {
			filtered = append(filtered, wp)
		}
	}
	if len(filtered) == 0 {
		return math.LegacyZeroDec(), math.LegacyZeroDec(), types.ErrPriceDeviation.Wrap("all submissions filtered as outliers")
	}

	totalWeight := 0
	weightedSum := math.LegacyZeroDec()
	confidence := math.LegacyZeroDec()
	for _, wp := range filtered {
		weightedSum = weightedSum.Add(wp.price.MulInt64(int64(wp.weight)))
		totalWeight += wp.weight
		if wp.confidence.GT(confidence) {
			confidence = wp.confidence
		}
	}
	if totalWeight == 0 {
		return math.LegacyZeroDec(), math.LegacyZeroDec(), types.ErrTooFewSources.Wrap("total weight is zero")
	}

	return weightedSum.QuoInt64(int64(totalWeight)), confidence, nil
}

// ============ Aggregated Quote Storage ============

// SetQuote saves the aggregated quote for an asset
func (k *Keeper) SetQuote(ctx sdk.Context, quote *types.PriceQuote) {
	store := k.GetStore(ctx)
	key := append(QuoteKeyPrefix, []byte(quote.AssetID)...)
	bz, _ := json.Marshal(quote)
	store.Set(key, bz)
}

// GetQuote retrieves the aggregated quote for an asset, nil if absent
func (k *Keeper) GetQuote(ctx sdk.Context, assetID string) *types.PriceQuote {
	store := k.GetStore(ctx)
	key := append(QuoteKeyPrefix, []byte(assetID)...)
	bz := store.Get(key)
	if bz == nil {
		return nil
	}
	var quote types.PriceQuote
	if err := json.Unmarshal(bz, &quote); err != nil {
		return nil
	}
	return &quote
}

// StoreOracle serves quotes from the keeper's own store. It is the default
// PriceOracle implementation; validation of staleness and confidence happens
// at the point of use in the health engine.
type StoreOracle struct {
	keeper *Keeper
}

// GetPrice implements types.PriceOracle
func (o StoreOracle) GetPrice(ctx sdk.Context, assetID string) (*types.PriceQuote, error) {
	quote := o.keeper.GetQuote(ctx, assetID)
	if quote == nil {
		return nil, types.ErrPriceUnavailable.Wrap(assetID)
	}
	return quote, nil
}
