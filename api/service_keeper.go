package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"cosmossdk.io/store"
	storemetrics "cosmossdk.io/store/metrics"
	storetypes "cosmossdk.io/store/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/radiant-lend/api/types"
	"github.com/openalpha/radiant-lend/x/lending/keeper"
	lendingtypes "github.com/openalpha/radiant-lend/x/lending/types"
)

// KeeperService implements MarketService, PositionService and
// LiquidationService over an in-memory keeper. It backs the standalone API
// mode; a production deployment queries a running chain instead.
type KeeperService struct {
	keeper    *keeper.Keeper
	processor *keeper.ActionProcessor
	ctx       sdk.Context
	mu        sync.Mutex
}

// NewKeeperService creates a keeper service with an in-memory store and the
// default asset listing.
func NewKeeperService(logger log.Logger, assets []string) (*KeeperService, error) {
	interfaceRegistry := codectypes.NewInterfaceRegistry()
	cdc := codec.NewProtoCodec(interfaceRegistry)

	storeKey := storetypes.NewKVStoreKey(lendingtypes.StoreKey)
	db := dbm.NewMemDB()
	stateStore := store.NewCommitMultiStore(db, log.NewNopLogger(), storemetrics.NewNoOpMetrics())
	stateStore.MountStoreWithDB(storeKey, storetypes.StoreTypeIAVL, db)
	if err := stateStore.LoadLatestVersion(); err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}

	k := keeper.NewKeeper(cdc, storeKey, "lending-api", logger)
	ctx := sdk.NewContext(stateStore, cmtproto.Header{}, false, logger).
		WithBlockTime(time.Now().UTC())

	k.InitDefaultOracleSources(ctx)
	for _, assetID := range assets {
		if err := k.RegisterAsset(ctx, lendingtypes.NewAssetParams(assetID, 6)); err != nil {
			return nil, fmt.Errorf("register %s: %w", assetID, err)
		}
	}

	return &KeeperService{
		keeper:    k,
		processor: keeper.NewActionProcessor(k),
		ctx:       ctx,
	}, nil
}

// Keeper exposes the underlying keeper for wiring price submissions
func (s *KeeperService) Keeper() *keeper.Keeper {
	return s.keeper
}

// now advances block time to wall clock so accrual and staleness checks run
// against real elapsed time
func (s *KeeperService) now() sdk.Context {
	s.ctx = s.ctx.WithBlockTime(time.Now().UTC())
	return s.ctx
}

// ============ MarketService ============

func (s *KeeperService) GetAssets(_ context.Context) ([]*types.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.Asset
	for _, params := range s.keeper.GetAllAssets(s.ctx) {
		out = append(out, &types.Asset{
			AssetID:              params.AssetID,
			Decimals:             params.Decimals,
			LTV:                  params.LTV.String(),
			LiquidationThreshold: params.LiquidationThreshold.String(),
			LiquidationBonus:     params.LiquidationBonus.String(),
			MaxUtilization:       params.MaxUtilization.String(),
			DepositsEnabled:      params.DepositsEnabled,
			BorrowsEnabled:       params.BorrowsEnabled,
		})
	}
	return out, nil
}

func (s *KeeperService) GetReserve(_ context.Context, assetID string) (*types.Reserve, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.now()
	reserve, err := s.keeper.AccrueReserve(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return reserveToAPI(reserve), nil
}

func (s *KeeperService) GetReserves(_ context.Context) ([]*types.Reserve, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.now()
	var out []*types.Reserve
	for _, params := range s.keeper.GetAllAssets(s.ctx) {
		reserve, err := s.keeper.AccrueReserve(ctx, params.AssetID)
		if err != nil {
			continue
		}
		out = append(out, reserveToAPI(reserve))
	}
	return out, nil
}

func (s *KeeperService) GetPrice(_ context.Context, assetID string) (*types.Price, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quote := s.keeper.GetQuote(s.ctx, assetID)
	if quote == nil {
		return nil, lendingtypes.ErrPriceUnavailable.Wrap(assetID)
	}
	return &types.Price{
		AssetID:    quote.AssetID,
		Price:      quote.Price.String(),
		Confidence: quote.Confidence.String(),
		Timestamp:  quote.Timestamp.Unix(),
	}, nil
}

// ============ PositionService ============

func (s *KeeperService) GetPosition(_ context.Context, owner string) (*types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	position := s.keeper.GetPosition(s.ctx, owner)
	if position == nil {
		return nil, lendingtypes.ErrPositionNotFound.Wrap(owner)
	}

	out := &types.Position{
		Owner:      position.Owner,
		Collateral: []types.BalanceEntry{},
		Debts:      []types.BalanceEntry{},
		LastUpdate: position.LastUpdate.Unix(),
	}
	for _, entry := range position.Collateral {
		amount := entry.Amount
		if reserve := s.keeper.GetReserve(s.ctx, entry.AssetID); reserve != nil {
			if current, err := position.CollateralAmount(entry.AssetID, reserve.SupplyIndex); err == nil {
				amount = current
			}
		}
		out.Collateral = append(out.Collateral, types.BalanceEntry{
			AssetID: entry.AssetID,
			Amount:  amount.String(),
		})
	}
	for _, entry := range position.Debts {
		amount := entry.Amount
		if reserve := s.keeper.GetReserve(s.ctx, entry.AssetID); reserve != nil {
			if current, err := position.DebtAmount(entry.AssetID, reserve.BorrowIndex); err == nil {
				amount = current
			}
		}
		out.Debts = append(out.Debts, types.BalanceEntry{
			AssetID: entry.AssetID,
			Amount:  amount.String(),
		})
	}
	return out, nil
}

func (s *KeeperService) GetHealth(_ context.Context, owner string) (*types.Health, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := s.processor.GetHealth(s.now(), owner)
	if err != nil {
		return nil, err
	}
	return healthToAPI(snapshot), nil
}

func (s *KeeperService) Deposit(_ context.Context, owner, assetID, amount string) (*types.ActionResponse, error) {
	return s.runAction("deposit", owner, assetID, amount, func(ctx sdk.Context, amt math.LegacyDec) error {
		return s.processor.Deposit(ctx, owner, assetID, amt)
	})
}

func (s *KeeperService) Withdraw(_ context.Context, owner, assetID, amount string) (*types.ActionResponse, error) {
	return s.runAction("withdraw", owner, assetID, amount, func(ctx sdk.Context, amt math.LegacyDec) error {
		return s.processor.Withdraw(ctx, owner, assetID, amt)
	})
}

func (s *KeeperService) Borrow(_ context.Context, owner, assetID, amount string) (*types.ActionResponse, error) {
	return s.runAction("borrow", owner, assetID, amount, func(ctx sdk.Context, amt math.LegacyDec) error {
		return s.processor.Borrow(ctx, owner, assetID, amt)
	})
}

func (s *KeeperService) Repay(_ context.Context, owner, assetID, amount string) (*types.ActionResponse, error) {
	return s.runAction("repay", owner, assetID, amount, func(ctx sdk.Context, amt math.LegacyDec) error {
		_, err := s.processor.Repay(ctx, owner, assetID, amt)
		return err
	})
}

func (s *KeeperService) runAction(action, owner, assetID, amount string, fn func(sdk.Context, math.LegacyDec) error) (*types.ActionResponse, error) {
	amt, err := math.LegacyNewDecFromStr(amount)
	if err != nil {
		return nil, lendingtypes.ErrInvalidAmount.Wrapf("amount %q: %s", amount, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.now()
	if err := fn(ctx, amt); err != nil {
		return nil, err
	}

	resp := &types.ActionResponse{
		Action:  action,
		Owner:   owner,
		AssetID: assetID,
		Amount:  amt.String(),
	}
	if snapshot, err := s.processor.GetHealth(ctx, owner); err == nil {
		resp.Health = healthToAPI(snapshot)
	}
	return resp, nil
}

// ============ LiquidationService ============

func (s *KeeperService) GetLiquidations(_ context.Context, limit int) ([]*types.Liquidation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.keeper.GetAllLiquidationRecords(s.ctx)
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	var out []*types.Liquidation
	for _, record := range records {
		out = append(out, liquidationToAPI(record))
	}
	return out, nil
}

func (s *KeeperService) GetAtRisk(_ context.Context, limit int) ([]*types.Health, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.now()
	snapshots := s.keeper.UnhealthyAccounts(ctx)
	if limit > 0 && len(snapshots) > limit {
		snapshots = snapshots[:limit]
	}
	var out []*types.Health
	for _, snapshot := range snapshots {
		out = append(out, healthToAPI(snapshot))
	}
	return out, nil
}

func (s *KeeperService) Liquidate(_ context.Context, req *types.LiquidateRequest) (*types.Liquidation, error) {
	repay, err := math.LegacyNewDecFromStr(req.RepayAmount)
	if err != nil {
		return nil, lendingtypes.ErrInvalidAmount.Wrapf("repay amount %q: %s", req.RepayAmount, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.now()
	result, err := s.processor.Liquidate(
		ctx, req.Liquidator, req.Borrower, req.DebtAssetID, req.CollateralAssetID, repay)
	if err != nil {
		return nil, err
	}
	record := s.keeper.GetLiquidationRecord(ctx, result.RecordID)
	if record == nil {
		return nil, lendingtypes.ErrAttemptNotFound.Wrap(result.RecordID)
	}
	return liquidationToAPI(record), nil
}

// ============ Conversions ============

func reserveToAPI(r *lendingtypes.ReserveState) *types.Reserve {
	return &types.Reserve{
		AssetID:             r.AssetID,
		TotalDeposits:       r.TotalDeposits.String(),
		TotalBorrows:        r.TotalBorrows.String(),
		AvailableLiquidity:  r.AvailableLiquidity().String(),
		Utilization:         r.Utilization().String(),
		BorrowRate:          r.BorrowRate.String(),
		SupplyRate:          r.SupplyRate.String(),
		BorrowIndex:         r.BorrowIndex.String(),
		SupplyIndex:         r.SupplyIndex.String(),
		AccruedProtocolFees: r.AccruedProtocolFees.String(),
		LastUpdate:          r.LastAccrual.Unix(),
	}
}

func healthToAPI(h *lendingtypes.HealthSnapshot) *types.Health {
	out := &types.Health{
		Owner:            h.Owner,
		CollateralValue:  h.CollateralValue.String(),
		BorrowPowerValue: h.BorrowPowerValue.String(),
		LiquidationValue: h.LiquidationValue.String(),
		DebtValue:        h.DebtValue.String(),
		HealthFactor:     "inf",
		Liquidatable:     h.IsLiquidatable(),
		ComputedAt:       h.ComputedAt.Unix(),
	}
	if factor, hasDebt := h.HealthFactor(); hasDebt {
		out.HealthFactor = factor.String()
	}
	return out
}

func liquidationToAPI(r *lendingtypes.LiquidationRecord) *types.Liquidation {
	return &types.Liquidation{
		RecordID:          r.RecordID,
		Liquidator:        r.Liquidator,
		Borrower:          r.Borrower,
		DebtAssetID:       r.DebtAssetID,
		CollateralAssetID: r.CollateralAssetID,
		RepaidAmount:      r.RepaidAmount.String(),
		CollateralSeized:  r.CollateralSeized.String(),
		BonusAmount:       r.BonusAmount.String(),
		Timestamp:         r.Timestamp.Unix(),
	}
}
