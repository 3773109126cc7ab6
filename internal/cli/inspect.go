package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/types"
)

func newBalanceCmd(o *options) *cobra.Command {
	var org string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the balance of an organization and its accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withSession(cmd, func(ctx context.Context, s *session) error {
				sub, err := s.store.GetSubscriptionByOrganization(ctx, org)
				if err != nil {
					return err
				}
				total, err := s.ledger.Balance(ctx, sub)
				if err != nil {
					return err
				}
				accounts, err := s.ledger.AccountBalances(ctx, sub)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "ACCOUNT\tAVAILABLE\tINCOMING\tBLOCKED")
				ids := make([]id.AccountID, 0, len(accounts))
				for a := range accounts {
					ids = append(ids, a)
				}
				sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
				for _, a := range ids {
					b := accounts[a]
					_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", a, b.Available, b.Incoming, b.Blocked)
				}
				_, _ = fmt.Fprintf(w, "total\t%d\t%d\t%d\n", total.Available, total.Incoming, total.Blocked)
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "organization id")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newTransactionsCmd(o *options) *cobra.Command {
	var (
		org      string
		from, to string
		q        transaction.Query
		unit     string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List the completed transactions of an organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if from != "" {
				if q.From, err = time.Parse(time.RFC3339, from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}
			if to != "" {
				if q.To, err = time.Parse(time.RFC3339, to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}
			q.Unit = types.Unit(unit)

			return o.withSession(cmd, func(ctx context.Context, s *session) error {
				page, err := s.ledger.GetTransactions(ctx, org, q)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(page)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "CREATED\tLEASE\tCREDITS\tPROJECT\tSERVICE")
				for _, r := range page.Records {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
						r.Created.Format(time.RFC3339), r.LeaseID, r.Credits, r.ProjectID, r.ServiceName)
				}
				_, _ = fmt.Fprintf(w, "%d of %d\n", len(page.Records), page.Total)
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "organization id")
	cmd.Flags().StringVar(&from, "from", "", "earliest creation instant, inclusive (RFC 3339)")
	cmd.Flags().StringVar(&to, "to", "", "latest creation instant, exclusive (RFC 3339)")
	cmd.Flags().StringVar(&q.ProjectID, "project", "", "only this project")
	cmd.Flags().StringVar(&unit, "unit", "", "only records consuming this resource unit")
	cmd.Flags().StringVar(&q.Sort, "sort", transaction.SortCreatedDesc, "created, -created, credits or -credits")
	cmd.Flags().IntVar(&q.Skip, "skip", 0, "records to skip")
	cmd.Flags().IntVar(&q.Limit, "limit", transaction.DefaultLimit, "records per page")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the page as JSON")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}
