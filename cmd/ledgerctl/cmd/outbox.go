package cmd

import (
	"errors"
	"fmt"

	"github.com/erp/ledger/internal/bootstrap"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func (c *cli) outboxCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and repair ledger event delivery",
	}

	var page, pageSize int
	dead := &cobra.Command{
		Use:   "dead",
		Short: "List dead-lettered events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				result, err := app.Admin.DeadLetters(cmd.Context(), page, pageSize)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	dead.Flags().IntVar(&page, "page", 1, "page number")
	dead.Flags().IntVar(&pageSize, "page-size", 20, "entries per page, at most 100")

	var all bool
	retry := &cobra.Command{
		Use:   "retry [entry-id]",
		Short: "Return dead-lettered events to PENDING",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("give either an entry ID or --all")
			}
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				if all {
					n, err := app.Admin.RetryAll(cmd.Context())
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), map[string]int64{"retried": n})
				}
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid entry ID %q: %w", args[0], err)
				}
				entry, err := app.Admin.Retry(cmd.Context(), id)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), entry)
			})
		},
	}
	retry.Flags().BoolVar(&all, "all", false, "retry every dead-lettered event")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count events per delivery status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				result, err := app.Admin.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.AddCommand(dead, retry, stats)
	return cmd
}
