package cmd

import (
	"context"
	"fmt"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/bootstrap"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type postFunc func(ctx context.Context, doc ledger.SourceDocument, components []ledger.Component, actor ledger.Actor) ([]*ledger.LedgerEntry, error)

func (c *cli) postCommand() *cobra.Command {
	return c.postingCommand("post", "Post a source document to the ledger",
		func(app *bootstrap.App) postFunc { return app.Posting.Post })
}

func (c *cli) repostCommand() *cobra.Command {
	return c.postingCommand("repost", "Replace a document's ledger entries with a fresh posting",
		func(app *bootstrap.App) postFunc { return app.Posting.Repost })
}

func (c *cli) postingCommand(use, short string, pick func(app *bootstrap.App) postFunc) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Example: "ledgerctl " + use + " --file invoice.json",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			command, err := appledger.ParsePostingRequest(data)
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				entries, err := pick(app)(cmd.Context(), command.Document, command.Components, command.Actor)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), appledger.NewPostingResult(command.Document.Header().DocumentRef, entries))
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "posting request JSON, - for stdin")
	return cmd
}

// documentFlags binds the --tenant and --ref pair shared by reverse and check-balance
type documentFlags struct {
	tenant string
	ref    string
}

func (f *documentFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.tenant, "tenant", "t", "", "tenant ID")
	cmd.Flags().StringVarP(&f.ref, "ref", "r", "", "document reference")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("ref")
}

func (f *documentFlags) tenantID() (uuid.UUID, error) {
	id, err := uuid.Parse(f.tenant)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid tenant %q: %w", f.tenant, err)
	}
	return id, nil
}

func (c *cli) reverseCommand() *cobra.Command {
	var flags documentFlags
	cmd := &cobra.Command{
		Use:   "reverse",
		Short: "Delete every ledger entry of a document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := flags.tenantID()
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				removed, err := app.Posting.Reverse(cmd.Context(), tenantID, flags.ref)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"document_ref": flags.ref,
					"removed":      removed,
				})
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func (c *cli) checkBalanceCommand() *cobra.Command {
	var flags documentFlags
	cmd := &cobra.Command{
		Use:   "check-balance",
		Short: "Report whether a document's entries balance in the reporting currency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := flags.tenantID()
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				result, err := app.Posting.CheckBalance(cmd.Context(), tenantID, flags.ref)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}
