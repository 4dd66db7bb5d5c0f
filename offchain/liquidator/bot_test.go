package liquidator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cosmossdk.io/math"
)

type fixtureSource struct {
	candidates []Candidate
}

func (s fixtureSource) AtRisk(ctx context.Context) ([]Candidate, error) {
	return s.candidates, nil
}

func testConfig() *Config {
	return &Config{
		FeedURL:      "ws://localhost:0/ws",
		Assets:       []string{"USDC", "SOL"},
		Liquidator:   "liq1",
		ScanInterval: time.Hour,
		CloseFactor:  math.LegacyNewDecWithPrec(50, 2),
		MinRepay:     math.LegacyNewDecWithPrec(1, 2),
	}
}

func dec(t *testing.T, s string) math.LegacyDec {
	t.Helper()
	d, err := math.LegacyNewDecFromStr(s)
	if err != nil {
		t.Fatalf("parse dec %q: %v", s, err)
	}
	return d
}

func TestBotSubmitsUnderwaterCandidate(t *testing.T) {
	submitter := NewMockSubmitter()
	source := fixtureSource{candidates: []Candidate{
		{
			Borrower:          "bob",
			DebtAssetID:       "USDC",
			DebtAmount:        dec(t, "70"),
			CollateralAssetID: "SOL",
			HealthFactor:      dec(t, "0.91"),
		},
	}}

	bot := NewBot(testConfig(), source, submitter)
	bot.refreshCandidates(context.Background())
	bot.checkCandidates(context.Background(), "SOL")

	submitted := submitter.GetSubmitted()
	if len(submitted) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(submitted))
	}
	msg := submitted[0]
	if msg.Borrower != "bob" {
		t.Errorf("borrower = %s, want bob", msg.Borrower)
	}
	if msg.DebtAssetID != "USDC" || msg.CollateralAssetID != "SOL" {
		t.Errorf("assets = %s/%s, want USDC/SOL", msg.DebtAssetID, msg.CollateralAssetID)
	}
	// Repay is close factor times debt
	if msg.RepayAmount != dec(t, "35").String() {
		t.Errorf("repay = %s, want 35", msg.RepayAmount)
	}
}

func TestBotSkipsHealthyCandidate(t *testing.T) {
	submitter := NewMockSubmitter()
	source := fixtureSource{candidates: []Candidate{
		{
			Borrower:          "alice",
			DebtAssetID:       "USDC",
			DebtAmount:        dec(t, "100"),
			CollateralAssetID: "SOL",
			HealthFactor:      dec(t, "1.30"),
		},
	}}

	bot := NewBot(testConfig(), source, submitter)
	bot.refreshCandidates(context.Background())
	bot.checkCandidates(context.Background(), "SOL")

	if got := len(submitter.GetSubmitted()); got != 0 {
		t.Fatalf("expected no submissions for healthy position, got %d", got)
	}
}

func TestBotSkipsUnrelatedAssetMove(t *testing.T) {
	submitter := NewMockSubmitter()
	source := fixtureSource{candidates: []Candidate{
		{
			Borrower:          "bob",
			DebtAssetID:       "USDC",
			DebtAmount:        dec(t, "70"),
			CollateralAssetID: "SOL",
			HealthFactor:      dec(t, "0.91"),
		},
	}}

	bot := NewBot(testConfig(), source, submitter)
	bot.refreshCandidates(context.Background())
	bot.checkCandidates(context.Background(), "ETH")

	if got := len(submitter.GetSubmitted()); got != 0 {
		t.Fatalf("expected no submissions on unrelated price move, got %d", got)
	}
}

func TestBotSkipsDustRepay(t *testing.T) {
	submitter := NewMockSubmitter()
	source := fixtureSource{candidates: []Candidate{
		{
			Borrower:          "bob",
			DebtAssetID:       "USDC",
			DebtAmount:        dec(t, "0.01"),
			CollateralAssetID: "SOL",
			HealthFactor:      dec(t, "0.91"),
		},
	}}

	bot := NewBot(testConfig(), source, submitter)
	bot.refreshCandidates(context.Background())
	bot.checkCandidates(context.Background(), "SOL")

	if got := len(submitter.GetSubmitted()); got != 0 {
		t.Fatalf("expected no submissions below min repay, got %d", got)
	}
}

func TestBotDedupsUntilRefresh(t *testing.T) {
	submitter := NewMockSubmitter()
	source := fixtureSource{candidates: []Candidate{
		{
			Borrower:          "bob",
			DebtAssetID:       "USDC",
			DebtAmount:        dec(t, "70"),
			CollateralAssetID: "SOL",
			HealthFactor:      dec(t, "0.91"),
		},
	}}

	bot := NewBot(testConfig(), source, submitter)
	bot.refreshCandidates(context.Background())

	bot.checkCandidates(context.Background(), "SOL")
	bot.checkCandidates(context.Background(), "SOL")
	if got := len(submitter.GetSubmitted()); got != 1 {
		t.Fatalf("expected dedup to hold 1 submission, got %d", got)
	}

	// A refresh clears the dedup window
	bot.refreshCandidates(context.Background())
	bot.checkCandidates(context.Background(), "SOL")
	if got := len(submitter.GetSubmitted()); got != 2 {
		t.Fatalf("expected resubmission after refresh, got %d", got)
	}
}

func TestBotContinuesAfterSubmitFailure(t *testing.T) {
	submitter := NewMockSubmitter()
	submitter.SetSimulateFailure(true)
	source := fixtureSource{candidates: []Candidate{
		{
			Borrower:          "bob",
			DebtAssetID:       "USDC",
			DebtAmount:        dec(t, "70"),
			CollateralAssetID: "SOL",
			HealthFactor:      dec(t, "0.91"),
		},
	}}

	bot := NewBot(testConfig(), source, submitter)
	bot.refreshCandidates(context.Background())
	bot.checkCandidates(context.Background(), "SOL")

	if got := submitter.GetStatus().FailedSubmissions; got != 1 {
		t.Fatalf("expected 1 failed submission, got %d", got)
	}

	// A failed submission is not deduped, the next tick retries
	submitter.SetSimulateFailure(false)
	bot.checkCandidates(context.Background(), "SOL")
	if got := len(submitter.GetSubmitted()); got != 1 {
		t.Fatalf("expected retry to submit, got %d", got)
	}
}

func TestAPISourceResolvesCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/liquidations/at-risk":
			w.Write([]byte(`{"at_risk":[{"owner":"bob","health_factor":"0.91","liquidatable":true}]}`))
		case "/v1/positions/bob":
			w.Write([]byte(`{"owner":"bob","collateral":[{"asset_id":"SOL","amount":"100"},{"asset_id":"ETH","amount":"2"}],"debts":[{"asset_id":"USDC","amount":"70"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	source := NewAPISource(server.URL, 100)
	candidates, err := source.AtRisk(context.Background())
	if err != nil {
		t.Fatalf("AtRisk() error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}

	c := candidates[0]
	if c.Borrower != "bob" {
		t.Errorf("borrower = %s, want bob", c.Borrower)
	}
	if c.DebtAssetID != "USDC" {
		t.Errorf("debt asset = %s, want USDC", c.DebtAssetID)
	}
	// The largest collateral line is picked for seizure
	if c.CollateralAssetID != "SOL" {
		t.Errorf("collateral asset = %s, want SOL", c.CollateralAssetID)
	}
	if !c.DebtAmount.Equal(dec(t, "70")) {
		t.Errorf("debt amount = %s, want 70", c.DebtAmount)
	}
	if !c.HealthFactor.Equal(dec(t, "0.91")) {
		t.Errorf("health factor = %s, want 0.91", c.HealthFactor)
	}
}

func TestAPISourceSkipsPositionlessAccount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/liquidations/at-risk":
			w.Write([]byte(`{"at_risk":[{"owner":"ghost","health_factor":"0.5","liquidatable":true}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	source := NewAPISource(server.URL, 100)
	candidates, err := source.AtRisk(context.Background())
	if err != nil {
		t.Fatalf("AtRisk() error: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected vanished position to be skipped, got %d candidates", len(candidates))
	}
}
