package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/client/flags"
	"github.com/cosmos/cosmos-sdk/client/tx"
	"cosmossdk.io/math"

	"github.com/openalpha/radiant-lend/x/lending/types"
)

// GetTxCmd returns the transaction commands for the lending module
func GetTxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                        "lending",
		Short:                      "Lending module transaction commands",
		DisableFlagParsing:         true,
		SuggestionsMinimumDistance: 2,
		RunE:                       client.ValidateCmd,
	}

	cmd.AddCommand(
		CmdDeposit(),
		CmdWithdraw(),
		CmdBorrow(),
		CmdRepay(),
		CmdLiquidate(),
	)

	return cmd
}

func validateDecArg(name, value string) error {
	dec, err := math.LegacyNewDecFromStr(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %v", name, err)
	}
	if !dec.IsPositive() {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}

// CmdDeposit returns the command to supply collateral
func CmdDeposit() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit [asset-id] [amount]",
		Short: "Supply collateral to a reserve",
		Long: `Supply collateral to a reserve. Deposits earn the current supply rate.

Examples:
  lendd tx lending deposit USDC 1000 --from alice
  lendd tx lending deposit SOL 2.5 --from bob`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientCtx, err := client.GetClientTxContext(cmd)
			if err != nil {
				return err
			}
			if err := validateDecArg("amount", args[1]); err != nil {
				return err
			}

			msg := &types.MsgDeposit{
				Depositor: clientCtx.GetFromAddress().String(),
				AssetID:   args[0],
				Amount:    args[1],
			}
			return tx.GenerateOrBroadcastTxCLI(clientCtx, cmd.Flags(), msg)
		},
	}

	flags.AddTxFlagsToCmd(cmd)
	return cmd
}

// CmdWithdraw returns the command to withdraw collateral
func CmdWithdraw() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw [asset-id] [amount]",
		Short: "Withdraw supplied collateral",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientCtx, err := client.GetClientTxContext(cmd)
			if err != nil {
				return err
			}
			if err := validateDecArg("amount", args[1]); err != nil {
				return err
			}

			msg := &types.MsgWithdraw{
				Withdrawer: clientCtx.GetFromAddress().String(),
				AssetID:    args[0],
				Amount:     args[1],
			}
			return tx.GenerateOrBroadcastTxCLI(clientCtx, cmd.Flags(), msg)
		},
	}

	flags.AddTxFlagsToCmd(cmd)
	return cmd
}

// CmdBorrow returns the command to borrow against collateral
func CmdBorrow() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "borrow [asset-id] [amount]",
		Short: "Borrow against supplied collateral",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientCtx, err := client.GetClientTxContext(cmd)
			if err != nil {
				return err
			}
			if err := validateDecArg("amount", args[1]); err != nil {
				return err
			}

			msg := &types.MsgBorrow{
				Borrower: clientCtx.GetFromAddress().String(),
				AssetID:  args[0],
				Amount:   args[1],
			}
			return tx.GenerateOrBroadcastTxCLI(clientCtx, cmd.Flags(), msg)
		},
	}

	flags.AddTxFlagsToCmd(cmd)
	return cmd
}

// CmdRepay returns the command to repay debt
func CmdRepay() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repay [asset-id] [amount]",
		Short: "Repay outstanding debt",
		Long: `Repay outstanding debt. Amounts beyond the outstanding debt are
clamped, so passing a large amount repays the position in full.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientCtx, err := client.GetClientTxContext(cmd)
			if err != nil {
				return err
			}
			if err := validateDecArg("amount", args[1]); err != nil {
				return err
			}

			msg := &types.MsgRepay{
				Payer:   clientCtx.GetFromAddress().String(),
				AssetID: args[0],
				Amount:  args[1],
			}
			return tx.GenerateOrBroadcastTxCLI(clientCtx, cmd.Flags(), msg)
		},
	}

	flags.AddTxFlagsToCmd(cmd)
	return cmd
}

// CmdLiquidate returns the command to liquidate an unhealthy position
func CmdLiquidate() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "liquidate [borrower] [debt-asset] [collateral-asset] [repay-amount]",
		Short: "Liquidate an unhealthy position",
		Long: `Repay part of an unhealthy borrower's debt in exchange for their
collateral plus the liquidation bonus.

Example:
  lendd tx lending liquidate cosmos1... USDC SOL 500 --from keeper`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientCtx, err := client.GetClientTxContext(cmd)
			if err != nil {
				return err
			}
			if err := validateDecArg("repay amount", args[3]); err != nil {
				return err
			}

			msg := &types.MsgLiquidate{
				Liquidator:        clientCtx.GetFromAddress().String(),
				Borrower:          args[0],
				DebtAssetID:       args[1],
				CollateralAssetID: args[2],
				RepayAmount:       args[3],
			}
			return tx.GenerateOrBroadcastTxCLI(clientCtx, cmd.Flags(), msg)
		},
	}

	flags.AddTxFlagsToCmd(cmd)
	return cmd
}
