package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/congo-pay/p2p_wallet/internal/accounts"
	"github.com/congo-pay/p2p_wallet/internal/ledger"
	"github.com/congo-pay/p2p_wallet/internal/notification"
	"github.com/congo-pay/p2p_wallet/internal/reversal"
)

func reverseCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reverse <transaction-id>",
		Short: "Reverse a completed transaction exactly once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			mgr := reversal.NewManager(e.engine, notification.NewLoggerNotifier(e.logger), nil, e.logger)
			res, err := mgr.Reverse(cmd.Context(), accounts.Actor{ID: operatorID, Admin: true}, reversal.Input{
				TransactionID: args[0],
				Reason:        reason,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reversed %s with %s (%s)\n",
				res.Original.ID, res.Compensation.ID, ledger.Format(res.Compensation.Amount))
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "note attached to the reversal notification")
	return cmd
}
