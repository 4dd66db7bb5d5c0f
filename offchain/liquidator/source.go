package liquidator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cosmossdk.io/math"
)

// apiHealth mirrors the at-risk endpoint response entry
type apiHealth struct {
	Owner        string `json:"owner"`
	HealthFactor string `json:"health_factor"`
	Liquidatable bool   `json:"liquidatable"`
}

// apiBalanceEntry mirrors one collateral or debt line
type apiBalanceEntry struct {
	AssetID string `json:"asset_id"`
	Amount  string `json:"amount"`
}

// apiPosition mirrors the position endpoint response
type apiPosition struct {
	Owner      string            `json:"owner"`
	Collateral []apiBalanceEntry `json:"collateral"`
	Debts      []apiBalanceEntry `json:"debts"`
}

// APISource pulls the at-risk list from the HTTP API and resolves each
// account's largest debt and collateral lines into a candidate. Repay and
// seize assets are chosen by size; the chain accepts any pairing the
// position actually holds.
type APISource struct {
	baseURL string
	limit   int
	client  *http.Client
}

// NewAPISource creates a source against the given API base URL
func NewAPISource(baseURL string, limit int) *APISource {
	return &APISource{
		baseURL: baseURL,
		limit:   limit,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// AtRisk returns the current at-risk candidates
func (s *APISource) AtRisk(ctx context.Context) ([]Candidate, error) {
	url := fmt.Sprintf("%s/v1/liquidations/at-risk?limit=%d", s.baseURL, s.limit)
	var listing struct {
		AtRisk []apiHealth `json:"at_risk"`
	}
	if err := s.getJSON(ctx, url, &listing); err != nil {
		return nil, fmt.Errorf("at-risk query: %w", err)
	}

	candidates := make([]Candidate, 0, len(listing.AtRisk))
	for _, health := range listing.AtRisk {
		candidate, err := s.resolve(ctx, health)
		if err != nil {
			// A position can vanish between the scan and the lookup
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (s *APISource) resolve(ctx context.Context, health apiHealth) (Candidate, error) {
	var position apiPosition
	url := fmt.Sprintf("%s/v1/positions/%s", s.baseURL, health.Owner)
	if err := s.getJSON(ctx, url, &position); err != nil {
		return Candidate{}, err
	}

	debtAsset, debtAmount, err := largestEntry(position.Debts)
	if err != nil {
		return Candidate{}, fmt.Errorf("no debt for %s", health.Owner)
	}
	collateralAsset, _, err := largestEntry(position.Collateral)
	if err != nil {
		return Candidate{}, fmt.Errorf("no collateral for %s", health.Owner)
	}

	factor := math.LegacyMaxSortableDec
	if health.HealthFactor != "inf" {
		factor, err = math.LegacyNewDecFromStr(health.HealthFactor)
		if err != nil {
			return Candidate{}, fmt.Errorf("bad health factor %q: %w", health.HealthFactor, err)
		}
	}

	return Candidate{
		Borrower:          health.Owner,
		DebtAssetID:       debtAsset,
		DebtAmount:        debtAmount,
		CollateralAssetID: collateralAsset,
		HealthFactor:      factor,
	}, nil
}

func largestEntry(entries []apiBalanceEntry) (string, math.LegacyDec, error) {
	best := ""
	bestAmount := math.LegacyZeroDec()
	for _, entry := range entries {
		amount, err := math.LegacyNewDecFromStr(entry.Amount)
		if err != nil {
			continue
		}
		if amount.GT(bestAmount) {
			best = entry.AssetID
			bestAmount = amount
		}
	}
	if best == "" {
		return "", math.LegacyZeroDec(), fmt.Errorf("no entries")
	}
	return best, bestAmount, nil
}

func (s *APISource) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
