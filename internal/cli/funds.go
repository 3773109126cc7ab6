package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/credits"
	"github.com/xraph/credits/id"
)

// fundsFlags are shared by fill and withdraw.
type fundsFlags struct {
	org     string
	account string
	amount  int64
}

func (f *fundsFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.org, "org", "", "organization id")
	cmd.Flags().StringVar(&f.account, "account", "", "asset account id")
	cmd.Flags().Int64Var(&f.amount, "amount", 0, "credits to move")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("amount")
}

func newFillCmd(o *options) *cobra.Command {
	var (
		f  fundsFlags
		at string
	)
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Mint credits into an asset account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			accountID, err := id.ParseAccountID(f.account)
			if err != nil {
				return fmt.Errorf("--account: %w", err)
			}
			req := credits.FillRequest{AccountID: accountID, Amount: f.amount, OrganizationID: f.org}
			if at != "" {
				if req.Created, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}

			return o.withSession(cmd, func(ctx context.Context, s *session) error {
				if err := s.ledger.FillAccount(ctx, req); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Filled %d credits into %s\n", f.amount, accountID)
				return nil
			})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&at, "at", "", "date the fill (RFC 3339); a future date makes the credits incoming")
	return cmd
}

func newWithdrawCmd(o *options) *cobra.Command {
	var f fundsFlags
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Return available credits from an asset account to the platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			accountID, err := id.ParseAccountID(f.account)
			if err != nil {
				return fmt.Errorf("--account: %w", err)
			}

			return o.withSession(cmd, func(ctx context.Context, s *session) error {
				sub, err := s.store.GetSubscriptionByOrganization(ctx, f.org)
				if err != nil {
					return err
				}
				err = s.ledger.WithdrawCredits(ctx, credits.WithdrawRequest{
					AccountID:      accountID,
					Amount:         f.amount,
					Subscription:   sub,
					OrganizationID: f.org,
				})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Withdrew %d credits from %s\n", f.amount, accountID)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}
