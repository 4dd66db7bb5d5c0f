package keeper

import (
	"sync"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/btree"
	"github.com/openalpha/radiant-lend/x/lending/types"
)

// HealthEngine values positions against validated oracle quotes. It never
// mutates state: callers accrue reserves first and pass block time through
// the context.
type HealthEngine struct {
	keeper *Keeper
}

// NewHealthEngine creates a health engine bound to a keeper
func NewHealthEngine(keeper *Keeper) *HealthEngine {
	return &HealthEngine{keeper: keeper}
}

// ComputeHealth values each collateral and debt entry at current indices and
// validated prices. Any unusable quote fails the computation; solvency checks
// never run on approximated values.
func (e *HealthEngine) ComputeHealth(ctx sdk.Context, position *types.Position) (*types.HealthSnapshot, error) {
	if position == nil {
		return nil, types.ErrPositionNotFound
	}

	config := e.keeper.GetOracleConfig(ctx)
	now := ctx.BlockTime()

	snapshot := &types.HealthSnapshot{
		Owner:            position.Owner,
		CollateralValue:  math.LegacyZeroDec(),
		BorrowPowerValue: math.LegacyZeroDec(),
		LiquidationValue: math.LegacyZeroDec(),
		DebtValue:        math.LegacyZeroDec(),
		ComputedAt:       now,
	}

	for _, entry := range position.Collateral {
		params, err := e.keeper.GetAssetParams(ctx, entry.AssetID)
		if err != nil {
			return nil, err
		}
		reserve := e.keeper.GetReserve(ctx, entry.AssetID)
		if reserve == nil {
			return nil, types.ErrUnknownAsset.Wrap(entry.AssetID)
		}
		amount, err := position.CollateralAmount(entry.AssetID, reserve.SupplyIndex)
		if err != nil {
			return nil, err
		}
		quote, err := e.validatedQuote(ctx, entry.AssetID, config)
		if err != nil {
			return nil, err
		}
		value, err := types.SafeMul(amount, quote.Price)
		if err != nil {
			return nil, err
		}
		borrowPower, err := types.SafeMul(value, params.LTV)
		if err != nil {
			return nil, err
		}
		liqValue, err := types.SafeMul(value, params.LiquidationThreshold)
		if err != nil {
			return nil, err
		}
		snapshot.CollateralValue = snapshot.CollateralValue.Add(value)
		snapshot.BorrowPowerValue = snapshot.BorrowPowerValue.Add(borrowPower)
		snapshot.LiquidationValue = snapshot.LiquidationValue.Add(liqValue)
	}

	for _, entry := range position.Debts {
		reserve := e.keeper.GetReserve(ctx, entry.AssetID)
		if reserve == nil {
			return nil, types.ErrUnknownAsset.Wrap(entry.AssetID)
		}
		amount, err := position.DebtAmount(entry.AssetID, reserve.BorrowIndex)
		if err != nil {
			return nil, err
		}
		quote, err := e.validatedQuote(ctx, entry.AssetID, config)
		if err != nil {
			return nil, err
		}
		value, err := types.SafeMul(amount, quote.Price)
		if err != nil {
			return nil, err
		}
		snapshot.DebtValue = snapshot.DebtValue.Add(value)
	}

	return snapshot, nil
}

// validatedQuote fetches a quote and rejects stale or low-confidence data
func (e *HealthEngine) validatedQuote(ctx sdk.Context, assetID string, config types.OracleConfig) (*types.PriceQuote, error) {
	quote, err := e.keeper.oracle.GetPrice(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if err := quote.Validate(ctx.BlockTime(), config.MaxPriceAge, config.MaxConfidenceRatio); err != nil {
		return nil, err
	}
	return quote, nil
}

// ============ At-Risk Index ============

// healthItem orders accounts by health factor, ascending, in the advisory
// in-memory index. Ties break on owner so distinct accounts never collide.
type healthItem struct {
	factor math.LegacyDec
	owner  string
}

// Less implements btree.Item
func (a *healthItem) Less(b btree.Item) bool {
	other := b.(*healthItem)
	if a.factor.Equal(other.factor) {
		return a.owner < other.owner
	}
	return a.factor.LT(other.factor)
}

const healthTreeDegree = 32

// healthIndex is an in-memory index of accounts ordered by health factor.
// It is advisory: liquidation eligibility is always re-verified against
// store state, so a stale entry is a wasted scan, never a wrong seizure.
type healthIndex struct {
	mu     sync.RWMutex
	tree   *btree.BTree
	byAcct map[string]*healthItem
}

func newHealthIndex() *healthIndex {
	return &healthIndex{
		tree:   btree.New(healthTreeDegree),
		byAcct: make(map[string]*healthItem),
	}
}

// Update inserts or repositions an account. Accounts with no debt are
// removed; infinite health never needs scanning.
func (idx *healthIndex) Update(owner string, factor math.LegacyDec, hasDebt bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if prev, ok := idx.byAcct[owner]; ok {
		idx.tree.Delete(prev)
		delete(idx.byAcct, owner)
	}
	if !hasDebt {
		return
	}
	item := &healthItem{factor: factor, owner: owner}
	idx.tree.ReplaceOrInsert(item)
	idx.byAcct[owner] = item
}

// Remove drops an account from the index
func (idx *healthIndex) Remove(owner string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if prev, ok := idx.byAcct[owner]; ok {
		idx.tree.Delete(prev)
		delete(idx.byAcct, owner)
	}
}

// Below returns up to limit owners with indexed health factor below bound,
// worst first.
func (idx *healthIndex) Below(bound math.LegacyDec, limit int) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var owners []string
	idx.tree.Ascend(func(i btree.Item) bool {
		item := i.(*healthItem)
		if item.factor.GTE(bound) {
			return false
		}
		owners = append(owners, item.owner)
		return limit <= 0 || len(owners) < limit
	})
	return owners
}

// Len returns the number of indexed accounts
func (idx *healthIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}

// RefreshHealthIndex recomputes health for an account and repositions it in
// the at-risk index. Price failures degrade to removal rather than leaving a
// stale entry.
func (k *Keeper) RefreshHealthIndex(ctx sdk.Context, owner string) {
	position := k.GetPosition(ctx, owner)
	if position == nil || !position.HasDebt() {
		k.healthIndex.Remove(owner)
		return
	}
	snapshot, err := NewHealthEngine(k).ComputeHealth(ctx, position)
	if err != nil {
		k.healthIndex.Remove(owner)
		return
	}
	factor, hasDebt := snapshot.HealthFactor()
	k.healthIndex.Update(owner, factor, hasDebt)
}

// AtRiskAccounts returns indexed accounts whose health factor is below bound,
// worst first. Results are advisory and may lag store state.
func (k *Keeper) AtRiskAccounts(bound math.LegacyDec, limit int) []string {
	return k.healthIndex.Below(bound, limit)
}

// UnhealthyAccounts scans all positions and returns those currently
// liquidatable. Positions whose prices cannot be validated are skipped.
func (k *Keeper) UnhealthyAccounts(ctx sdk.Context) []*types.HealthSnapshot {
	engine := NewHealthEngine(k)

	var unhealthy []*types.HealthSnapshot
	for _, position := range k.GetAllPositions(ctx) {
		if !position.HasDebt() {
			continue
		}
		snapshot, err := engine.ComputeHealth(ctx, position)
		if err != nil {
			k.logger.Debug("skipping position in solvency scan", "owner", position.Owner, "error", err)
			continue
		}
		if snapshot.IsLiquidatable() {
			unhealthy = append(unhealthy, snapshot)
		}
	}
	return unhealthy
}
