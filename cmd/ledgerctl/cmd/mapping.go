package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erp/ledger/internal/bootstrap"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// mappingFile is the JSON form read by "mapping set" and printed by "mapping show"
type mappingFile struct {
	TenantID          uuid.UUID                     `json:"tenant_id"`
	ReportingCurrency string                        `json:"reporting_currency"`
	Accounts          map[string]mappingFileAccount `json:"accounts"`
}

type mappingFileAccount struct {
	ID   uuid.UUID `json:"id,omitempty"`
	Code string    `json:"code"`
	Name string    `json:"name"`
}

func (c *cli) mappingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Manage a tenant's role-to-account mapping",
	}
	cmd.AddCommand(c.mappingSetCommand(), c.mappingShowCommand())
	return cmd
}

func (c *cli) mappingSetCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create or replace a tenant's account mapping",
		Long: `set saves the mapping read from --file. Accounts whose code already exists
for the tenant keep their ID; the cached mapping is invalidated afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			var in mappingFile
			if err := json.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("malformed mapping file: %w", err)
			}
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				ctx := cmd.Context()
				existing, err := app.Mappings.FindByTenant(ctx, in.TenantID)
				if err != nil && !errors.Is(err, shared.ErrNotFound) {
					return err
				}
				mapping, err := buildMapping(in, existing)
				if err != nil {
					return err
				}
				if err := app.Mappings.Save(ctx, mapping); err != nil {
					return err
				}
				if err := app.Cache.Invalidate(ctx, in.TenantID); err != nil {
					app.Logger.Warn("mapping saved but cache invalidation failed",
						zap.String("tenant_id", in.TenantID.String()), zap.Error(err))
				}
				return writeJSON(cmd.OutOrStdout(), toMappingFile(mapping))
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "mapping JSON, - for stdin")
	return cmd
}

func (c *cli) mappingShowCommand() *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a tenant's account mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid tenant %q: %w", tenant, err)
			}
			return c.withApp(cmd.Context(), func(app *bootstrap.App) error {
				mapping, err := app.Cache.FindByTenant(cmd.Context(), tenantID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), toMappingFile(mapping))
			})
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "tenant ID")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

// buildMapping converts the file into a domain mapping. Accounts are matched to the
// tenant's existing ones by code so re-saving a mapping never duplicates an account.
func buildMapping(in mappingFile, existing *ledger.AccountMapping) (*ledger.AccountMapping, error) {
	currency, err := valueobject.ParseCurrency(in.ReportingCurrency)
	if err != nil {
		return nil, err
	}

	byCode := make(map[string]ledger.Account)
	if existing != nil {
		for _, account := range existing.Accounts() {
			byCode[account.Code] = account
		}
	}

	accounts := make(map[ledger.Role]ledger.Account, len(in.Accounts))
	for name, a := range in.Accounts {
		role, err := ledger.ParseRole(name)
		if err != nil {
			return nil, err
		}
		if a.Code == "" {
			return nil, fmt.Errorf("%w: account code for role %s is required", ledger.ErrInvalidComponent, role)
		}
		account, ok := byCode[a.Code]
		if !ok {
			account = ledger.Account{BaseEntity: shared.NewBaseEntity(), TenantID: in.TenantID, Code: a.Code}
			if a.ID != uuid.Nil {
				account.ID = a.ID
			}
		}
		account.Name = a.Name
		byCode[a.Code] = account
		accounts[role] = account
	}
	return ledger.NewAccountMapping(in.TenantID, currency, accounts)
}

func toMappingFile(m *ledger.AccountMapping) mappingFile {
	out := mappingFile{
		TenantID:          m.TenantID,
		ReportingCurrency: m.ReportingCurrency.String(),
		Accounts:          make(map[string]mappingFileAccount),
	}
	for _, role := range m.Roles() {
		account, _ := m.Resolve(role)
		out.Accounts[role.String()] = mappingFileAccount{ID: account.ID, Code: account.Code, Name: account.Name}
	}
	return out
}
