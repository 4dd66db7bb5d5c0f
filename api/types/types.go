package types

import (
	"context"
)

// Asset represents a listed asset in the API response
type Asset struct {
	AssetID              string `json:"asset_id"`
	Decimals             uint32 `json:"decimals"`
	LTV                  string `json:"ltv"`
	LiquidationThreshold string `json:"liquidation_threshold"`
	LiquidationBonus     string `json:"liquidation_bonus"`
	MaxUtilization       string `json:"max_utilization"`
	DepositsEnabled      bool   `json:"deposits_enabled"`
	BorrowsEnabled       bool   `json:"borrows_enabled"`
}

// Reserve represents reserve state in the API response
type Reserve struct {
	AssetID             string `json:"asset_id"`
	TotalDeposits       string `json:"total_deposits"`
	TotalBorrows        string `json:"total_borrows"`
	AvailableLiquidity  string `json:"available_liquidity"`
	Utilization         string `json:"utilization"`
	BorrowRate          string `json:"borrow_rate"`
	SupplyRate          string `json:"supply_rate"`
	BorrowIndex         string `json:"borrow_index"`
	SupplyIndex         string `json:"supply_index"`
	AccruedProtocolFees string `json:"accrued_protocol_fees"`
	LastUpdate          int64  `json:"last_update"`
}

// BalanceEntry is one collateral or debt line of a position
type BalanceEntry struct {
	AssetID string `json:"asset_id"`
	Amount  string `json:"amount"`
}

// Position represents a position in the API response
type Position struct {
	Owner      string         `json:"owner"`
	Collateral []BalanceEntry `json:"collateral"`
	Debts      []BalanceEntry `json:"debts"`
	LastUpdate int64          `json:"last_update"`
}

// Health represents a solvency snapshot in the API response
type Health struct {
	Owner            string `json:"owner"`
	CollateralValue  string `json:"collateral_value"`
	BorrowPowerValue string `json:"borrow_power_value"`
	LiquidationValue string `json:"liquidation_value"`
	DebtValue        string `json:"debt_value"`
	HealthFactor     string `json:"health_factor"` // "inf" when there is no debt
	Liquidatable     bool   `json:"liquidatable"`
	ComputedAt       int64  `json:"computed_at"`
}

// Liquidation represents an executed liquidation in the API response
type Liquidation struct {
	RecordID          string `json:"record_id"`
	Liquidator        string `json:"liquidator"`
	Borrower          string `json:"borrower"`
	DebtAssetID       string `json:"debt_asset_id"`
	CollateralAssetID string `json:"collateral_asset_id"`
	RepaidAmount      string `json:"repaid_amount"`
	CollateralSeized  string `json:"collateral_seized"`
	BonusAmount       string `json:"bonus_amount"`
	Timestamp         int64  `json:"timestamp"`
}

// Price represents an aggregated oracle quote in the API response
type Price struct {
	AssetID    string `json:"asset_id"`
	Price      string `json:"price"`
	Confidence string `json:"confidence"`
	Timestamp  int64  `json:"timestamp"`
}

// ActionRequest is the body of deposit/withdraw/borrow/repay calls
type ActionRequest struct {
	Owner   string `json:"owner"`
	AssetID string `json:"asset_id"`
	Amount  string `json:"amount"`
}

// ActionResponse acknowledges a committed action
type ActionResponse struct {
	Action  string  `json:"action"`
	Owner   string  `json:"owner"`
	AssetID string  `json:"asset_id"`
	Amount  string  `json:"amount"`
	Health  *Health `json:"health,omitempty"`
}

// LiquidateRequest is the body of a liquidation call
type LiquidateRequest struct {
	Liquidator        string `json:"liquidator"`
	Borrower          string `json:"borrower"`
	DebtAssetID       string `json:"debt_asset_id"`
	CollateralAssetID string `json:"collateral_asset_id"`
	RepayAmount       string `json:"repay_amount"`
}

// MarketService serves asset listings and reserve state
type MarketService interface {
	GetAssets(ctx context.Context) ([]*Asset, error)
	GetReserve(ctx context.Context, assetID string) (*Reserve, error)
	GetReserves(ctx context.Context) ([]*Reserve, error)
	GetPrice(ctx context.Context, assetID string) (*Price, error)
}

// PositionService serves positions and executes user actions
type PositionService interface {
	GetPosition(ctx context.Context, owner string) (*Position, error)
	GetHealth(ctx context.Context, owner string) (*Health, error)
	Deposit(ctx context.Context, owner, assetID, amount string) (*ActionResponse, error)
	Withdraw(ctx context.Context, owner, assetID, amount string) (*ActionResponse, error)
	Borrow(ctx context.Context, owner, assetID, amount string) (*ActionResponse, error)
	Repay(ctx context.Context, owner, assetID, amount string) (*ActionResponse, error)
}

// LiquidationService serves liquidation history and at-risk scans
type LiquidationService interface {
	GetLiquidations(ctx context.Context, limit int) ([]*Liquidation, error)
	GetAtRisk(ctx context.Context, limit int) ([]*Health, error)
	Liquidate(ctx context.Context, req *LiquidateRequest) (*Liquidation, error)
}
