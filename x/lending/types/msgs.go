package types

import (
	"context"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Message types
const (
	TypeMsgDeposit   = "deposit"
	TypeMsgWithdraw  = "withdraw"
	TypeMsgBorrow    = "borrow"
	TypeMsgRepay     = "repay"
	TypeMsgLiquidate = "liquidate"
)

// MsgServer is the transaction-handling interface of the module
type MsgServer interface {
	Deposit(context.Context, *MsgDeposit) (*MsgDepositResponse, error)
	Withdraw(context.Context, *MsgWithdraw) (*MsgWithdrawResponse, error)
	Borrow(context.Context, *MsgBorrow) (*MsgBorrowResponse, error)
	Repay(context.Context, *MsgRepay) (*MsgRepayResponse, error)
	Liquidate(context.Context, *MsgLiquidate) (*MsgLiquidateResponse, error)
}

// RegisterMsgServer registers the MsgServer to the configurator's MsgServer
func RegisterMsgServer(s interface{}, srv MsgServer) {
	// Messages are dispatched through the module handler
}

func validateAmountString(amount string) error {
	if amount == "" {
		return ErrInvalidAmount
	}
	return nil
}

// MsgDeposit supplies collateral to a reserve
type MsgDeposit struct {
	Depositor string `json:"depositor"`
	AssetID   string `json:"asset_id"`
	Amount    string `json:"amount"`
}

func (msg MsgDeposit) Route() string { return ModuleName }
func (msg MsgDeposit) Type() string  { return TypeMsgDeposit }

func (msg MsgDeposit) ValidateBasic() error {
	if _, err := sdk.AccAddressFromBech32(msg.Depositor); err != nil {
		return err
	}
	if msg.AssetID == "" {
		return ErrUnknownAsset
	}
	return validateAmountString(msg.Amount)
}

func (msg MsgDeposit) GetSigners() []sdk.AccAddress {
	addr, _ := sdk.AccAddressFromBech32(msg.Depositor)
	return []sdk.AccAddress{addr}
}

func (*MsgDeposit) ProtoMessage()    {}
func (msg *MsgDeposit) Reset()       { *msg = MsgDeposit{} }
func (msg MsgDeposit) String() string {
	return fmt.Sprintf("MsgDeposit{Depositor: %s, AssetID: %s, Amount: %s}", msg.Depositor, msg.AssetID, msg.Amount)
}

// MsgDepositResponse is the deposit result
type MsgDepositResponse struct {
	NewCollateral string `json:"new_collateral"`
	SupplyIndex   string `json:"supply_index"`
}

func (*MsgDepositResponse) ProtoMessage()     {}
func (msg *MsgDepositResponse) Reset()        { *msg = MsgDepositResponse{} }
func (msg MsgDepositResponse) String() string { return "MsgDepositResponse" }

// MsgWithdraw removes collateral from a reserve
type MsgWithdraw struct {
	Withdrawer string `json:"withdrawer"`
	AssetID    string `json:"asset_id"`
	Amount     string `json:"amount"`
}

func (msg MsgWithdraw) Route() string { return ModuleName }
func (msg MsgWithdraw) Type() string  { return TypeMsgWithdraw }

func (msg MsgWithdraw) ValidateBasic() error {
	if _, err := sdk.AccAddressFromBech32(msg.Withdrawer); err != nil {
		return err
	}
	if msg.AssetID == "" {
		return ErrUnknownAsset
	}
	return validateAmountString(msg.Amount)
}

func (msg MsgWithdraw) GetSigners() []sdk.AccAddress {
	addr, _ := sdk.AccAddressFromBech32(msg.Withdrawer)
	return []sdk.AccAddress{addr}
}

func (*MsgWithdraw) ProtoMessage()    {}
func (msg *MsgWithdraw) Reset()       { *msg = MsgWithdraw{} }
func (msg MsgWithdraw) String() string {
	return fmt.Sprintf("MsgWithdraw{Withdrawer: %s, AssetID: %s, Amount: %s}", msg.Withdrawer, msg.AssetID, msg.Amount)
}

// MsgWithdrawResponse is the withdraw result
type MsgWithdrawResponse struct {
	RemainingCollateral string `json:"remaining_collateral"`
	HealthFactor        string `json:"health_factor,omitempty"`
}

func (*MsgWithdrawResponse) ProtoMessage()     {}
func (msg *MsgWithdrawResponse) Reset()        { *msg = MsgWithdrawResponse{} }
func (msg MsgWithdrawResponse) String() string { return "MsgWithdrawResponse" }

// MsgBorrow draws liquidity against collateral
type MsgBorrow struct {
	Borrower string `json:"borrower"`
	AssetID  string `json:"asset_id"`
	Amount   string `json:"amount"`
}

func (msg MsgBorrow) Route() string { return ModuleName }
func (msg MsgBorrow) Type() string  { return TypeMsgBorrow }

func (msg MsgBorrow) ValidateBasic() error {
	if _, err := sdk.AccAddressFromBech32(msg.Borrower); err != nil {
		return err
	}
	if msg.AssetID == "" {
		return ErrUnknownAsset
	}
	return validateAmountString(msg.Amount)
}

func (msg MsgBorrow) GetSigners() []sdk.AccAddress {
	addr, _ := sdk.AccAddressFromBech32(msg.Borrower)
	return []sdk.AccAddress{addr}
}

func (*MsgBorrow) ProtoMessage()    {}
func (msg *MsgBorrow) Reset()       { *msg = MsgBorrow{} }
func (msg MsgBorrow) String() string {
	return fmt.Sprintf("MsgBorrow{Borrower: %s, AssetID: %s, Amount: %s}", msg.Borrower, msg.AssetID, msg.Amount)
}

// MsgBorrowResponse is the borrow result
type MsgBorrowResponse struct {
	NewDebt      string `json:"new_debt"`
	BorrowRate   string `json:"borrow_rate"`
	HealthFactor string `json:"health_factor"`
}

func (*MsgBorrowResponse) ProtoMessage()     {}
func (msg *MsgBorrowResponse) Reset()        { *msg = MsgBorrowResponse{} }
func (msg MsgBorrowResponse) String() string { return "MsgBorrowResponse" }

// MsgRepay pays down outstanding debt
type MsgRepay struct {
	Payer   string `json:"payer"`
	AssetID string `json:"asset_id"`
	Amount  string `json:"amount"`
}

func (msg MsgRepay) Route() string { return ModuleName }
func (msg MsgRepay) Type() string  { return TypeMsgRepay }

func (msg MsgRepay) ValidateBasic() error {
	if _, err := sdk.AccAddressFromBech32(msg.Payer); err != nil {
		return err
	}
	if msg.AssetID == "" {
		return ErrUnknownAsset
	}
	return validateAmountString(msg.Amount)
}

func (msg MsgRepay) GetSigners() []sdk.AccAddress {
	addr, _ := sdk.AccAddressFromBech32(msg.Payer)
	return []sdk.AccAddress{addr}
}

func (*MsgRepay) ProtoMessage()    {}
func (msg *MsgRepay) Reset()       { *msg = MsgRepay{} }
func (msg MsgRepay) String() string {
	return fmt.Sprintf("MsgRepay{Payer: %s, AssetID: %s, Amount: %s}", msg.Payer, msg.AssetID, msg.Amount)
}

// MsgRepayResponse is the repay result
type MsgRepayResponse struct {
	Repaid        string `json:"repaid"`
	RemainingDebt string `json:"remaining_debt"`
}

func (*MsgRepayResponse) ProtoMessage()     {}
func (msg *MsgRepayResponse) Reset()        { *msg = MsgRepayResponse{} }
func (msg MsgRepayResponse) String() string { return "MsgRepayResponse" }

// MsgLiquidate repays an unhealthy borrower's debt in exchange for collateral
type MsgLiquidate struct {
	Liquidator        string `json:"liquidator"`
	Borrower          string `json:"borrower"`
	DebtAssetID       string `json:"debt_asset_id"`
	CollateralAssetID string `json:"collateral_asset_id"`
	RepayAmount       string `json:"repay_amount"`
}

func (msg MsgLiquidate) Route() string { return ModuleName }
func (msg MsgLiquidate) Type() string  { return TypeMsgLiquidate }

func (msg MsgLiquidate) ValidateBasic() error {
	if _, err := sdk.AccAddressFromBech32(msg.Liquidator); err != nil {
		return err
	}
	if _, err := sdk.AccAddressFromBech32(msg.Borrower); err != nil {
		return err
	}
	if msg.DebtAssetID == "" || msg.CollateralAssetID == "" {
		return ErrUnknownAsset
	}
	return validateAmountString(msg.RepayAmount)
}

func (msg MsgLiquidate) GetSigners() []sdk.AccAddress {
	addr, _ := sdk.AccAddressFromBech32(msg.Liquidator)
	return []sdk.AccAddress{addr}
}

func (*MsgLiquidate) ProtoMessage()    {}
func (msg *MsgLiquidate) Reset()       { *msg = MsgLiquidate{} }
func (msg MsgLiquidate) String() string {
	return fmt.Sprintf("MsgLiquidate{Liquidator: %s, Borrower: %s, Debt: %s, Collateral: %s, Repay: %s}",
		msg.Liquidator, msg.Borrower, msg.DebtAssetID, msg.CollateralAssetID, msg.RepayAmount)
}

// MsgLiquidateResponse is the liquidation result
type MsgLiquidateResponse struct {
	RecordID         string `json:"record_id"`
	RepaidAmount     string `json:"repaid_amount"`
	CollateralSeized string `json:"collateral_seized"`
	BonusAmount      string `json:"bonus_amount"`
}

func (*MsgLiquidateResponse) ProtoMessage()     {}
func (msg *MsgLiquidateResponse) Reset()        { *msg = MsgLiquidateResponse{} }
func (msg MsgLiquidateResponse) String() string { return "MsgLiquidateResponse" }
