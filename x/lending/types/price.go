package types

import (
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// PriceQuote is a normalized oracle price with its confidence interval.
// All feed adapters (Pyth/Switchboard-style) reduce to this one shape.
type PriceQuote struct {
	AssetID    string
	Price      math.LegacyDec
	Confidence math.LegacyDec // absolute half-width of the confidence interval
	Timestamp  time.Time
}

// Validate rejects a quote that is unusable for solvency decisions: zero or
// negative price, older than maxAge, or a confidence interval wider than
// maxConfidenceRatio of the price. A bad quote fails the action rather than
// being approximated.
func (q *PriceQuote) Validate(now time.Time, maxAge time.Duration, maxConfidenceRatio math.LegacyDec) error {
	if q == nil || !q.Price.IsPositive() {
		return ErrPriceUnavailable
	}
	if now.Sub(q.Timestamp) > maxAge {
		return ErrStalePrice.Wrapf("asset %s: quote age %s exceeds %s", q.AssetID, now.Sub(q.Timestamp), maxAge)
	}
	if q.Confidence.IsNegative() {
		return ErrLowConfidence
	}
	if q.Confidence.Quo(q.Price).GT(maxConfidenceRatio) {
		return ErrLowConfidence.Wrapf("asset %s: confidence ratio %s exceeds %s",
			q.AssetID, q.Confidence.Quo(q.Price).String(), maxConfidenceRatio.String())
	}
	return nil
}

// PriceOracle is the read side of the price plumbing. The engine consumes all
// oracle sources uniformly through this interface.
type PriceOracle interface {
	// GetPrice returns the current quote for an asset or ErrPriceUnavailable.
	GetPrice(ctx sdk.Context, assetID string) (*PriceQuote, error)
}

// OracleConfig governs price submission and aggregation.
type OracleConfig struct {
	// MinSources is the minimum fresh submissions required to aggregate
	MinSources int
	// MaxPriceAge is the staleness bound for quotes and submissions
	MaxPriceAge time.Duration
	// MaxConfidenceRatio rejects quotes whose confidence/price exceeds it
	MaxConfidenceRatio math.LegacyDec
	// MaxDeviation filters submissions deviating from the median
	MaxDeviation math.LegacyDec
	// CircuitBreakerPct rejects single submissions jumping more than this
	CircuitBreakerPct math.LegacyDec
	// SourceWeights assigns aggregation weight per source id
	SourceWeights map[string]int
}

// DefaultOracleConfig returns the default oracle configuration.
func DefaultOracleConfig() OracleConfig {
	return OracleConfig{
		MinSources:         1,
		MaxPriceAge:        time.Minute,
		MaxConfidenceRatio: math.LegacyNewDecWithPrec(2, 2),  // 2%
		MaxDeviation:       math.LegacyNewDecWithPrec(2, 2),  // 2%
		CircuitBreakerPct:  math.LegacyNewDecWithPrec(10, 2), // 10%
		SourceWeights: map[string]int{
			"pyth":        3,
			"switchboard": 2,
		},
	}
}

// OracleSource is a registered price publisher.
type OracleSource struct {
	SourceID   string
	Weight     int
	IsActive   bool
	LastUpdate time.Time
}

// SourcePrice is one source's submission for one asset.
type SourcePrice struct {
	SourceID   string
	AssetID    string
	Price      math.LegacyDec
	Confidence math.LegacyDec
	Timestamp  time.Time
}
