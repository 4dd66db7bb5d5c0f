package keeper

import (
	"context"
	"fmt"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/openalpha/radiant-lend/x/lending/types"
)

var _ types.MsgServer = (*msgServer)(nil)

type msgServer struct {
	Keeper    *Keeper
	processor *ActionProcessor
}

// NewMsgServerImpl returns an implementation of the MsgServer interface
func NewMsgServerImpl(keeper *Keeper) types.MsgServer {
	return &msgServer{
		Keeper:    keeper,
		processor: NewActionProcessor(keeper),
	}
}

func parseAmount(amount string) (math.LegacyDec, error) {
	dec, err := math.LegacyNewDecFromStr(amount)
	if err != nil {
		return math.LegacyDec{}, fmt.Errorf("invalid amount: %w", err)
	}
	if !dec.IsPositive() {
		return math.LegacyDec{}, types.ErrInvalidAmount.Wrap("amount must be positive")
	}
	return dec, nil
}

// Deposit handles the MsgDeposit message
func (m *msgServer) Deposit(ctx context.Context, msg *types.MsgDeposit) (*types.MsgDepositResponse, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)

	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	amount, err := parseAmount(msg.Amount)
	if err != nil {
		return nil, err
	}

	if err := m.processor.Deposit(sdkCtx, msg.Depositor, msg.AssetID, amount); err != nil {
		return nil, err
	}

	reserve := m.Keeper.GetReserve(sdkCtx, msg.AssetID)
	position := m.Keeper.GetPosition(sdkCtx, msg.Depositor)
	newCollateral := math.LegacyZeroDec()
	if position != nil {
		if c, err := position.CollateralAmount(msg.AssetID, reserve.SupplyIndex); err == nil {
			newCollateral = c
		}
	}

	return &types.MsgDepositResponse{
		NewCollateral: newCollateral.String(),
		SupplyIndex:   reserve.SupplyIndex.String(),
	}, nil
}

// Withdraw handles the MsgWithdraw message
func (m *msgServer) Withdraw(ctx context.Context, msg *types.MsgWithdraw) (*types.MsgWithdrawResponse, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)

	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	amount, err := parseAmount(msg.Amount)
	if err != nil {
		return nil, err
	}

	if err := m.processor.Withdraw(sdkCtx, msg.Withdrawer, msg.AssetID, amount); err != nil {
		return nil, err
	}

	resp := &types.MsgWithdrawResponse{RemainingCollateral: "0"}
	position := m.Keeper.GetPosition(sdkCtx, msg.Withdrawer)
	if position != nil {
		reserve := m.Keeper.GetReserve(sdkCtx, msg.AssetID)
		if reserve != nil {
			if c, err := position.CollateralAmount(msg.AssetID, reserve.SupplyIndex); err == nil {
				resp.RemainingCollateral = c.String()
			}
		}
		if position.HasDebt() {
			if snapshot, err := NewHealthEngine(m.Keeper).ComputeHealth(sdkCtx, position); err == nil {
				if factor, ok := snapshot.HealthFactor(); ok {
					resp.HealthFactor = factor.String()
				}
			}
		}
	}
	return resp, nil
}

// Borrow handles the MsgBorrow message
func (m *msgServer) Borrow(ctx context.Context, msg *types.MsgBorrow) (*types.MsgBorrowResponse, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)

	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	amount, err := parseAmount(msg.Amount)
	if err != nil {
		return nil, err
	}

	if err := m.processor.Borrow(sdkCtx, msg.Borrower, msg.AssetID, amount); err != nil {
		return nil, err
	}

	reserve := m.Keeper.GetReserve(sdkCtx, msg.AssetID)
	position := m.Keeper.GetPosition(sdkCtx, msg.Borrower)

	newDebt := math.LegacyZeroDec()
	if position != nil {
		if d, err := position.DebtAmount(msg.AssetID, reserve.BorrowIndex); err == nil {
			newDebt = d
		}
	}
	healthFactor := ""
	if snapshot, err := NewHealthEngine(m.Keeper).ComputeHealth(sdkCtx, position); err == nil {
		if factor, ok := snapshot.HealthFactor(); ok {
			healthFactor = factor.String()
		}
	}

	return &types.MsgBorrowResponse{
		NewDebt:      newDebt.String(),
		BorrowRate:   reserve.BorrowRate.String(),
		HealthFactor: healthFactor,
	}, nil
}

// Repay handles the MsgRepay message
func (m *msgServer) Repay(ctx context.Context, msg *types.MsgRepay) (*types.MsgRepayResponse, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)

	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	amount, err := parseAmount(msg.Amount)
	if err != nil {
		return nil, err
	}

	applied, err := m.processor.Repay(sdkCtx, msg.Payer, msg.AssetID, amount)
	if err != nil {
		return nil, err
	}

	remaining := math.LegacyZeroDec()
	position := m.Keeper.GetPosition(sdkCtx, msg.Payer)
	if position != nil && position.HasDebtIn(msg.AssetID) {
		reserve := m.Keeper.GetReserve(sdkCtx, msg.AssetID)
		if d, err := position.DebtAmount(msg.AssetID, reserve.BorrowIndex); err == nil {
			remaining = d
		}
	}

	return &types.MsgRepayResponse{
		Repaid:        applied.String(),
		RemainingDebt: remaining.String(),
	}, nil
}

// Liquidate handles the MsgLiquidate message
func (m *msgServer) Liquidate(ctx context.Context, msg *types.MsgLiquidate) (*types.MsgLiquidateResponse, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)

	if err := msg.ValidateBasic(); err != nil {
		return nil, err
	}
	amount, err := parseAmount(msg.RepayAmount)
	if err != nil {
		return nil, err
	}

	result, err := m.processor.Liquidate(sdkCtx, msg.Liquidator, msg.Borrower, msg.DebtAssetID, msg.CollateralAssetID, amount)
	if err != nil {
		return nil, err
	}

	return &types.MsgLiquidateResponse{
		RecordID:         result.RecordID,
		RepaidAmount:     result.RepaidAmount.String(),
		CollateralSeized: result.CollateralSeized.String(),
		BonusAmount:      result.BonusAmount.String(),
	}, nil
}
