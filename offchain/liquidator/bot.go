package liquidator

import (
	"context"
	"log"
	"sync"
	"time"

	"cosmossdk.io/math"
	"github.com/openalpha/radiant-lend/x/lending/types"
)

// Config holds the liquidator bot configuration
type Config struct {
	FeedURL      string        // WebSocket URL for the price stream
	ChainRPCURL  string        // Chain RPC URL for submission
	Liquidator   string        // Address signing the liquidation messages
	Assets       []string      // Assets to subscribe prices for
	ScanInterval time.Duration // How often to re-pull the candidate list
	CloseFactor  math.LegacyDec
	MinRepay     math.LegacyDec // Skip opportunities below this repay size
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *Config {
	return &Config{
		FeedURL:      "ws://localhost:8080/ws",
		ChainRPCURL:  "http://localhost:26657",
		ScanInterval: 10 * time.Second,
		CloseFactor:  math.LegacyNewDecWithPrec(50, 2),
		MinRepay:     math.LegacyNewDecWithPrec(1, 2),
	}
}

// Candidate is one at-risk position pulled from the chain
type Candidate struct {
	Borrower          string
	DebtAssetID       string
	DebtAmount        math.LegacyDec
	CollateralAssetID string
	HealthFactor      math.LegacyDec
}

// CandidateSource supplies the current at-risk account list. The node-backed
// implementation queries the module's at-risk index; tests feed a fixture.
type CandidateSource interface {
	AtRisk(ctx context.Context) ([]Candidate, error)
}

// Bot watches the price stream and the at-risk list and submits liquidation
// messages for positions whose health factor has crossed below 1. The chain
// re-validates every attempt, so a stale local view costs a rejected
// transaction, never a wrong seizure.
type Bot struct {
	config    *Config
	feed      *PriceFeed
	source    CandidateSource
	submitter TxSubmitter

	mu         sync.RWMutex
	candidates []Candidate

	// Dedup window: borrowers liquidated recently are skipped until the
	// next candidate refresh confirms their state.
	recent map[string]time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewBot creates a liquidator bot
func NewBot(config *Config, source CandidateSource, submitter TxSubmitter) *Bot {
	if config == nil {
		config = DefaultConfig()
	}
	if submitter == nil {
		submitter = NewMockSubmitter()
	}
	return &Bot{
		config:    config,
		feed:      NewPriceFeed(config.FeedURL, config.Assets),
		source:    source,
		submitter: submitter,
		recent:    make(map[string]time.Time),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the feed, the scan loop and the trigger loop
func (b *Bot) Start(ctx context.Context) error {
	log.Println("Starting liquidator bot...")

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.feed.Run(ctx)
	}()

	b.wg.Add(1)
	go b.scanLoop(ctx)

	b.wg.Add(1)
	go b.triggerLoop(ctx)

	log.Println("Liquidator bot started")
	return nil
}

// Stop shuts the bot down and waits for the loops to drain
func (b *Bot) Stop() {
	log.Println("Stopping liquidator bot...")
	close(b.stopCh)
	b.wg.Wait()
	log.Println("Liquidator bot stopped")
}

// scanLoop refreshes the candidate list on the configured interval
func (b *Bot) scanLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.config.ScanInterval)
	defer ticker.Stop()

	b.refreshCandidates(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.refreshCandidates(ctx)
		}
	}
}

func (b *Bot) refreshCandidates(ctx context.Context) {
	candidates, err := b.source.AtRisk(ctx)
	if err != nil {
		log.Printf("candidate refresh failed: %v", err)
		return
	}
	b.mu.Lock()
	b.candidates = candidates
	// A refresh supersedes the dedup window
	b.recent = make(map[string]time.Time)
	b.mu.Unlock()
	log.Printf("candidate list refreshed: %d at-risk accounts", len(candidates))
}

// triggerLoop reacts to price ticks by re-checking the candidate list
func (b *Bot) triggerLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case update := <-b.feed.Updates():
			b.checkCandidates(ctx, update.AssetID)
		}
	}
}

// checkCandidates submits liquidations for candidates already below the
// waterline whose debt or collateral asset just moved
func (b *Bot) checkCandidates(ctx context.Context, movedAsset string) {
	b.mu.RLock()
	candidates := make([]Candidate, len(b.candidates))
	copy(candidates, b.candidates)
	b.mu.RUnlock()

	one := math.LegacyOneDec()
	for _, c := range candidates {
		if movedAsset != "" && c.DebtAssetID != movedAsset && c.CollateralAssetID != movedAsset {
			continue
		}
		if c.HealthFactor.GTE(one) {
			continue
		}
		if b.recentlySubmitted(c.Borrower) {
			continue
		}

		repay := c.DebtAmount.Mul(b.config.CloseFactor)
		if repay.LT(b.config.MinRepay) {
			continue
		}

		msg := &types.MsgLiquidate{
			Liquidator:        b.config.Liquidator,
			Borrower:          c.Borrower,
			DebtAssetID:       c.DebtAssetID,
			CollateralAssetID: c.CollateralAssetID,
			RepayAmount:       repay.String(),
		}
		if err := b.submitter.SubmitLiquidation(ctx, msg); err != nil {
			log.Printf("liquidation submission failed for %s: %v", c.Borrower, err)
			continue
		}
		b.markSubmitted(c.Borrower)
		log.Printf("liquidation submitted: borrower=%s repay=%s %s for %s",
			c.Borrower, repay.String(), c.DebtAssetID, c.CollateralAssetID)
	}
}

func (b *Bot) recentlySubmitted(borrower string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.recent[borrower]
	return ok
}

func (b *Bot) markSubmitted(borrower string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recent[borrower] = time.Now()
}
