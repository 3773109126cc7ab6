package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/credits"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/types"
)

func newMigrateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withSession(cmd, func(ctx context.Context, s *session) error {
				if err := s.store.Migrate(ctx); err != nil {
					return err
				}
				platform, err := s.ledger.EnsurePlatformAccount(ctx)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Migrated. Platform account: %s\n", platform.ID)
				return nil
			})
		},
	}
}

func newOpenAccountCmd(o *options) *cobra.Command {
	var (
		org       string
		expires   string
		renewable int64
	)
	cmd := &cobra.Command{
		Use:   "open-account",
		Short: "Open an asset account for an organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := credits.AssetAccountRequest{OrganizationID: org}
			if expires != "" {
				t, err := time.Parse(time.RFC3339, expires)
				if err != nil {
					return fmt.Errorf("--expires: %w", err)
				}
				req.Expires = &t
			}
			if renewable > 0 {
				req.RenewableAmount = &renewable
			}

			return o.withSession(cmd, func(ctx context.Context, s *session) error {
				a, err := s.ledger.OpenAssetAccount(ctx, req)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), a.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "organization id")
	cmd.Flags().StringVar(&expires, "expires", "", "expiry instant (RFC 3339)")
	cmd.Flags().Int64Var(&renewable, "renewable", 0, "amount topped up on each renewal day")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newSubscribeCmd(o *options) *cobra.Command {
	var (
		org        string
		renewalDay int
		accounts   []string
	)
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Create the subscription of an organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sub := &subscription.Subscription{
				Entity:         types.NewEntity(time.Time{}),
				ID:             id.NewSubscriptionID(),
				OrganizationID: org,
				Status:         subscription.StatusActive,
				RenewalDay:     renewalDay,
			}
			for _, raw := range accounts {
				a, err := id.ParseAccountID(raw)
				if err != nil {
					return fmt.Errorf("--account %q: %w", raw, err)
				}
				sub.CreditAccounts = append(sub.CreditAccounts, a)
			}

			return o.withSession(cmd, func(ctx context.Context, s *session) error {
				if _, err := s.ledger.OpenOrganization(ctx, org); err != nil {
					return err
				}
				if err := s.store.CreateSubscription(ctx, sub); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), sub.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "organization id")
	cmd.Flags().IntVar(&renewalDay, "renewal-day", 0, "day of month renewable accounts top up (1-31)")
	cmd.Flags().StringSliceVar(&accounts, "account", nil, "restrict allocation to these asset accounts")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}
