package main

import (
	"fmt"

	"github.com/google/uuid"
	ledgerdomain "github.com/restorehq/restore/internal/ledger/domain"
	ledgerrepo "github.com/restorehq/restore/internal/ledger/repository"
	ledgerservice "github.com/restorehq/restore/internal/ledger/service"
	"github.com/spf13/cobra"
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Inspect and grant customer credits",
}

var creditsBalanceCmd = &cobra.Command{
	Use:   "balance <email>",
	Short: "Print a customer's credit balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := openLedger()
		if err != nil {
			return err
		}
		defer closeFn()

		balance, err := svc.GetBalance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", ledgerdomain.NormalizeCustomerID(args[0]), balance)
		return nil
	},
}

var creditsGrantCmd = &cobra.Command{
	Use:   "grant <email> <amount>",
	Short: "Grant credits to a customer",
	Long: `Grant credits outside of a payment. Pass --key to make a retried grant
idempotent; without it every invocation grants again.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var amount int64
		if _, err := fmt.Sscan(args[1], &amount); err != nil || amount <= 0 {
			return fmt.Errorf("amount must be a positive integer, got %q", args[1])
		}
		key, _ := cmd.Flags().GetString("key")
		if key == "" {
			key = uuid.NewString()
		}

		svc, closeFn, err := openLedger()
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := svc.Credit(cmd.Context(), ledgerdomain.CreditRequest{
			CustomerID:     args[0],
			Amount:         amount,
			IdempotencyKey: "admin:" + key,
			Source:         ledgerdomain.SourceAdminGrant,
		})
		if err != nil {
			return err
		}
		if !res.Applied {
			fmt.Fprintf(cmd.OutOrStdout(), "grant %s already applied, balance %d\n", key, res.Balance)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "granted %d, balance %d\n", amount, res.Balance)
		return nil
	},
}

func init() {
	creditsGrantCmd.Flags().String("key", "", "idempotency key for the grant")
	creditsCmd.AddCommand(creditsBalanceCmd)
	creditsCmd.AddCommand(creditsGrantCmd)
}

func openLedger() (ledgerdomain.Service, func(), error) {
	e, closeFn, err := openEnv()
	if err != nil {
		return nil, nil, err
	}
	node, err := newNode()
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return ledgerservice.NewService(ledgerservice.Params{
		DB:    e.db,
		Log:   e.log,
		GenID: node,
		Repo:  ledgerrepo.Provide(),
	}), closeFn, nil
}
