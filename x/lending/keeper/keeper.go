package keeper

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"cosmossdk.io/log"
	storetypes "cosmossdk.io/store/types"
	"github.com/cosmos/cosmos-sdk/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/openalpha/radiant-lend/x/lending/types"
)

// Store key prefixes
var (
	MarketParamsKey        = []byte{0x01}
	AssetKeyPrefix         = []byte{0x02}
	ReserveKeyPrefix       = []byte{0x03}
	PositionKeyPrefix      = []byte{0x04}
	QuoteKeyPrefix         = []byte{0x05}
	OracleConfigKey        = []byte{0x06}
	OracleSourceKeyPrefix  = []byte{0x07}
	SourcePriceKeyPrefix   = []byte{0x08}
	LiquidationKeyPrefix   = []byte{0x10}
	LiquidationCounterKey  = []byte{0x11}
	AttemptKeyPrefix       = []byte{0x12}
)

// Keeper manages the lending module state
type Keeper struct {
	cdc       codec.BinaryCodec
	storeKey  storetypes.StoreKey
	logger    log.Logger
	authority string // governance authority address

	oracle      types.PriceOracle
	healthIndex *healthIndex
}

// NewKeeper creates a new lending keeper. The price oracle defaults to the
// store-backed adapter; tests and offchain tooling may swap it.
func NewKeeper(
	cdc codec.BinaryCodec,
	storeKey storetypes.StoreKey,
	authority string,
	logger log.Logger,
) *Keeper {
	k := &Keeper{
		cdc:         cdc,
		storeKey:    storeKey,
		authority:   authority,
		logger:      logger.With("module", "x/"+types.ModuleName),
		healthIndex: newHealthIndex(),
	}
	k.oracle = StoreOracle{keeper: k}
	return k
}

// Logger returns the module logger
func (k *Keeper) Logger() log.Logger {
	return k.logger
}

// GetAuthority returns the governance authority address
func (k *Keeper) GetAuthority() string {
	return k.authority
}

// GetStore returns the KVStore
func (k *Keeper) GetStore(ctx sdk.Context) storetypes.KVStore {
	return ctx.KVStore(k.storeKey)
}

// SetPriceOracle overrides the price source consumed by the health engine.
func (k *Keeper) SetPriceOracle(oracle types.PriceOracle) {
	k.oracle = oracle
}

// Oracle returns the configured price source.
func (k *Keeper) Oracle() types.PriceOracle {
	return k.oracle
}

// ============ Market Params ============

// SetMarketParams saves the protocol-wide parameters
func (k *Keeper) SetMarketParams(ctx sdk.Context, params types.MarketParams) {
	store := k.GetStore(ctx)
	bz, _ := json.Marshal(params)
	store.Set(MarketParamsKey, bz)
}

// GetMarketParams retrieves the protocol-wide parameters
func (k *Keeper) GetMarketParams(ctx sdk.Context) types.MarketParams {
	store := k.GetStore(ctx)
	bz := store.Get(MarketParamsKey)
	if bz == nil {
		return types.DefaultMarketParams()
	}
	var params types.MarketParams
	if err := json.Unmarshal(bz, &params); err != nil {
		return types.DefaultMarketParams()
	}
	return params
}

// ============ Asset Registry ============

// RegisterAsset adds an asset to the registry and creates its empty reserve.
// Fails if the asset already exists or its parameters are invalid.
func (k *Keeper) RegisterAsset(ctx sdk.Context, params types.AssetParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	store := k.GetStore(ctx)
	key := append(AssetKeyPrefix, []byte(params.AssetID)...)
	if store.Has(key) {
		return types.ErrAssetExists.Wrap(params.AssetID)
	}
	bz, _ := json.Marshal(params)
	store.Set(key, bz)

	reserve := types.NewReserveState(params.AssetID, ctx.BlockTime())
	k.SetReserve(ctx, reserve)

	k.logger.Info("asset registered",
		"asset", params.AssetID,
		"ltv", params.LTV.String(),
		"liquidation_threshold", params.LiquidationThreshold.String(),
	)
	return nil
}

// UpdateAssetParams replaces an asset's risk parameters (administrative path).
func (k *Keeper) UpdateAssetParams(ctx sdk.Context, params types.AssetParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	store := k.GetStore(ctx)
	key := append(AssetKeyPrefix, []byte(params.AssetID)...)
	if !store.Has(key) {
		return types.ErrUnknownAsset.Wrap(params.AssetID)
	}
	bz, _ := json.Marshal(params)
	store.Set(key, bz)
	return nil
}

// GetAssetParams retrieves an asset's risk parameters
func (k *Keeper) GetAssetParams(ctx sdk.Context, assetID string) (types.AssetParams, error) {
	store := k.GetStore(ctx)
	key := append(AssetKeyPrefix, []byte(assetID)...)
	bz := store.Get(key)
	if bz == nil {
		return types.AssetParams{}, types.ErrUnknownAsset.Wrap(assetID)
	}
	var params types.AssetParams
	if err := json.Unmarshal(bz, &params); err != nil {
		return types.AssetParams{}, types.ErrUnknownAsset.Wrap(assetID)
	}
	return params, nil
}

// GetAllAssets returns all registered assets
func (k *Keeper) GetAllAssets(ctx sdk.Context) []types.AssetParams {
	store := k.GetStore(ctx)
	iterator := storetypes.KVStorePrefixIterator(store, AssetKeyPrefix)
	defer iterator.Close()

	var assets []types.AssetParams
	for ; iterator.Valid(); iterator.Next() {
		var params types.AssetParams
		if err := json.Unmarshal(iterator.Value(), &params); err != nil {
			continue
		}
		assets = append(assets, params)
	}
	return assets
}

// ============ Reserve Operations ============

// SetReserve saves a reserve, bumping its version for optimistic commit checks
func (k *Keeper) SetReserve(ctx sdk.Context, reserve *types.ReserveState) {
	reserve.Version++
	store := k.GetStore(ctx)
	key := append(ReserveKeyPrefix, []byte(reserve.AssetID)...)
	bz, _ := json.Marshal(reserve)
	store.Set(key, bz)
}

// GetReserve retrieves a reserve from the store
func (k *Keeper) GetReserve(ctx sdk.Context, assetID string) *types.ReserveState {
	store := k.GetStore(ctx)
	key := append(ReserveKeyPrefix, []byte(assetID)...)
	bz := store.Get(key)
	if bz == nil {
		return nil
	}
	var reserve types.ReserveState
	if err := json.Unmarshal(bz, &reserve); err != nil {
		return nil
	}
	return &reserve
}

// GetAllReserves returns all reserves
func (k *Keeper) GetAllReserves(ctx sdk.Context) []*types.ReserveState {
	store := k.GetStore(ctx)
	iterator := storetypes.KVStorePrefixIterator(store, ReserveKeyPrefix)
	defer iterator.Close()

	var reserves []*types.ReserveState
	for ; iterator.Valid(); iterator.Next() {
		var reserve types.ReserveState
		if err := json.Unmarshal(iterator.Value(), &reserve); err != nil {
			continue
		}
		reserves = append(reserves, &reserve)
	}
	return reserves
}

// AccrueReserve loads a reserve, compounds its indices up to the block time
// and saves it back. Every state-touching action calls this first.
func (k *Keeper) AccrueReserve(ctx sdk.Context, assetID string) (*types.ReserveState, error) {
	params, err := k.GetAssetParams(ctx, assetID)
	if err != nil {
		return nil, err
	}
	reserve := k.GetReserve(ctx, assetID)
	if reserve == nil {
		reserve = types.NewReserveState(assetID, ctx.BlockTime())
	}
	before := reserve.BorrowIndex
	if err := reserve.Accrue(params.Rates, ctx.BlockTime()); err != nil {
		return nil, err
	}
	if !reserve.BorrowIndex.Equal(before) {
		k.logger.Debug("reserve accrued",
			"asset", assetID,
			"borrow_index", reserve.BorrowIndex.String(),
			"supply_index", reserve.SupplyIndex.String(),
			"borrow_rate", reserve.BorrowRate.String(),
		)
	}
	k.SetReserve(ctx, reserve)
	return reserve, nil
}

// ============ Position Operations ============

// SetPosition saves a position, bumping its version
func (k *Keeper) SetPosition(ctx sdk.Context, position *types.Position) {
	position.Version++
	position.LastUpdate = ctx.BlockTime()
	store := k.GetStore(ctx)
	key := append(PositionKeyPrefix, []byte(position.Owner)...)
	bz, _ := json.Marshal(position)
	store.Set(key, bz)
}

// GetPosition retrieves a position from the store
func (k *Keeper) GetPosition(ctx sdk.Context, owner string) *types.Position {
	store := k.GetStore(ctx)
	key := append(PositionKeyPrefix, []byte(owner)...)
	bz := store.Get(key)
	if bz == nil {
		return nil
	}
	var position types.Position
	if err := json.Unmarshal(bz, &position); err != nil {
		return nil
	}
	return &position
}

// GetOrCreatePosition gets an existing position or creates an empty one
func (k *Keeper) GetOrCreatePosition(ctx sdk.Context, owner string) *types.Position {
	position := k.GetPosition(ctx, owner)
	if position == nil {
		position = types.NewPosition(owner)
	}
	return position
}

// GetAllPositions returns all positions
func (k *Keeper) GetAllPositions(ctx sdk.Context) []*types.Position {
	store := k.GetStore(ctx)
	iterator := storetypes.KVStorePrefixIterator(store, PositionKeyPrefix)
	defer iterator.Close()

	var positions []*types.Position
	for ; iterator.Valid(); iterator.Next() {
		var position types.Position
		if err := json.Unmarshal(iterator.Value(), &position); err != nil {
			continue
		}
		positions = append(positions, &position)
	}
	return positions
}

// ============ Liquidation Records ============

// generateLiquidationID generates a unique, monotonic liquidation record ID
func (k *Keeper) generateLiquidationID(ctx sdk.Context) string {
	store := k.GetStore(ctx)
	bz := store.Get(LiquidationCounterKey)
	var counter uint64
	if bz != nil {
		counter = binary.BigEndian.Uint64(bz)
	}
	counter++

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, counter)
	store.Set(LiquidationCounterKey, buf)

	// Zero-padded so store iteration order matches issue order past liq-9.
	return fmt.Sprintf("liq-%012d", counter)
}

// AppendLiquidationRecord appends an immutable audit record. Records are
// keyed by their counter ID and never overwritten.
func (k *Keeper) AppendLiquidationRecord(ctx sdk.Context, record *types.LiquidationRecord) {
	store := k.GetStore(ctx)
	key := append(LiquidationKeyPrefix, []byte(record.RecordID)...)
	bz, _ := json.Marshal(record)
	store.Set(key, bz)
}

// GetLiquidationRecord retrieves one audit record
func (k *Keeper) GetLiquidationRecord(ctx sdk.Context, recordID string) *types.LiquidationRecord {
	store := k.GetStore(ctx)
	key := append(LiquidationKeyPrefix, []byte(recordID)...)
	bz := store.Get(key)
	if bz == nil {
		return nil
	}
	var record types.LiquidationRecord
	if err := json.Unmarshal(bz, &record); err != nil {
		return nil
	}
	return &record
}

// GetAllLiquidationRecords returns the full audit trail
func (k *Keeper) GetAllLiquidationRecords(ctx sdk.Context) []*types.LiquidationRecord {
	store := k.GetStore(ctx)
	iterator := storetypes.KVStorePrefixIterator(store, LiquidationKeyPrefix)
	defer iterator.Close()

	var records []*types.LiquidationRecord
	for ; iterator.Valid(); iterator.Next() {
		var record types.LiquidationRecord
		if err := json.Unmarshal(iterator.Value(), &record); err != nil {
			continue
		}
		records = append(records, &record)
	}
	return records
}

// SetAttempt saves a liquidation attempt
func (k *Keeper) SetAttempt(ctx sdk.Context, attempt *types.LiquidationAttempt) {
	store := k.GetStore(ctx)
	key := append(AttemptKeyPrefix, []byte(attempt.AttemptID)...)
	bz, _ := json.Marshal(attempt)
	store.Set(key, bz)
}

// GetAttempt retrieves a liquidation attempt
func (k *Keeper) GetAttempt(ctx sdk.Context, attemptID string) *types.LiquidationAttempt {
	store := k.GetStore(ctx)
	key := append(AttemptKeyPrefix, []byte(attemptID)...)
	bz := store.Get(key)
	if bz == nil {
		return nil
	}
	var attempt types.LiquidationAttempt
	if err := json.Unmarshal(bz, &attempt); err != nil {
		return nil
	}
	return &attempt
}

// reserveVersion returns the stored version of a reserve, zero if absent
func (k *Keeper) reserveVersion(ctx sdk.Context, assetID string) uint64 {
	if r := k.GetReserve(ctx, assetID); r != nil {
		return r.Version
	}
	return 0
}

// positionVersion returns the stored version of a position, zero if absent
func (k *Keeper) positionVersion(ctx sdk.Context, owner string) uint64 {
	if p := k.GetPosition(ctx, owner); p != nil {
		return p.Version
	}
	return 0
}
