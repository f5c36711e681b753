package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/congo-pay/p2p_wallet/internal/accounts"
	"github.com/congo-pay/p2p_wallet/internal/ledger"
)

func createAccountCmd() *cobra.Command {
	var input accounts.CreateInput
	cmd := &cobra.Command{
		Use:   "create-account",
		Short: "Register an account with a zero balance",
		Example: `  walletctl create-account --username shop --merchant
  walletctl create-account --username root --admin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			svc := accounts.NewService(e.store, e.engine, e.logger)
			acc, err := svc.Create(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tmerchant=%t\tadmin=%t\n", acc.ID, acc.Username, acc.IsMerchant, acc.IsAdmin)
			return nil
		},
	}
	cmd.Flags().StringVar(&input.Username, "username", "", "unique username (3-50 chars)")
	cmd.Flags().BoolVar(&input.Merchant, "merchant", false, "mark the account as a merchant")
	cmd.Flags().BoolVar(&input.Admin, "admin", false, "grant administrator rights")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func setBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-balance <account> <amount>",
		Short: "Override an account balance, recording an adjustment",
		Long: `Set an account balance to an exact amount. The account may be given by
id or username. The difference is recorded as an adjustment transaction.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := ledger.ParseBalance(args[1])
			if err != nil {
				return err
			}
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			svc := accounts.NewService(e.store, e.engine, e.logger)
			acc, err := svc.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			adj, err := svc.OverrideBalance(cmd.Context(), accounts.Actor{ID: operatorID, Admin: true}, acc.ID, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", acc.Username, ledger.Format(adj.Previous), ledger.Format(adj.Balance))
			return nil
		},
	}
}
