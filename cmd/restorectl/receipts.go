package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	ledgerdomain "github.com/restorehq/restore/internal/ledger/domain"
	paymentrepo "github.com/restorehq/restore/internal/payment/repository"
	"github.com/restorehq/restore/internal/providers/pdf"
	"github.com/restorehq/restore/pkg/db/pagination"
	"github.com/spf13/cobra"
)

var receiptsCmd = &cobra.Command{
	Use:   "receipts",
	Short: "Inspect payment receipts",
}

var receiptsListCmd = &cobra.Command{
	Use:   "list <email>",
	Short: "List a customer's receipts, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		limit = pagination.Pagination{PageSize: limit}.Limit()

		e, closeFn, err := openEnv()
		if err != nil {
			return err
		}
		defer closeFn()

		receipts, err := paymentrepo.Provide().ListReceipts(cmd.Context(), e.db, ledgerdomain.NormalizeCustomerID(args[0]), nil, limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPAID AT\tCREDITS\tAMOUNT\tPAYMENT")
		for _, r := range receipts {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				r.ID, r.PaidAt.UTC().Format(time.RFC3339), r.Quantity,
				pdf.FormatAmount(r.Amount, r.Currency), r.ExternalPaymentID)
		}
		return w.Flush()
	},
}

func init() {
	receiptsListCmd.Flags().Int("limit", pagination.DefaultPageSize, "maximum receipts to print")
	receiptsCmd.AddCommand(receiptsListCmd)
}
