package cmd

import (
	"fmt"

	"github.com/erp/ledger/internal/bootstrap"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// ErrUnbalanced is returned by audit when any group is out of tolerance
var ErrUnbalanced = fmt.Errorf("unbalanced reference groups found")

func (c *cli) auditCommand() *cobra.Command {
	var (
		flags     documentFlags
		tolerance string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List a tenant's reference groups whose debits and credits differ",
		Long: `audit sums every reference group of a tenant in its reporting currency
and prints the groups whose net exceeds the tolerance. It exits non-zero when any are found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := flags.tenantID()
			if err != nil {
				return err
			}
			tol, err := decimal.NewFromString(tolerance)
			if err != nil {
				return fmt.Errorf("invalid tolerance %q: %w", tolerance, err)
			}
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				groups, err := app.Auditor.FindUnbalanced(cmd.Context(), tenantID, tol)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), groups); err != nil {
					return err
				}
				if len(groups) > 0 {
					return fmt.Errorf("%w: %d", ErrUnbalanced, len(groups))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&flags.tenant, "tenant", "t", "", "tenant ID")
	_ = cmd.MarkFlagRequired("tenant")
	cmd.Flags().StringVar(&tolerance, "tolerance", "0.01", "largest acceptable |debit - credit|")
	return cmd
}

func (c *cli) relayOnceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "relay-once",
		Short: "Deliver one batch of pending outbox events and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				sent := app.NewOutboxProcessor().ProcessBatch(cmd.Context())
				return writeJSON(cmd.OutOrStdout(), map[string]int{"sent": sent})
			})
		},
	}
}
