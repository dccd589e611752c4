package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/infrastructure/auth"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type tokenOutput struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *cli) tokenCommand() *cobra.Command {
	var (
		tenant   string
		user     string
		username string
		admin    bool
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token signed with jwt.secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.JWT.Secret == "" {
				return errors.New("jwt.secret is not configured")
			}
			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid tenant %q: %w", tenant, err)
			}
			userID := uuid.New()
			if user != "" {
				if userID, err = uuid.Parse(user); err != nil {
					return fmt.Errorf("invalid user %q: %w", user, err)
				}
			}
			var roles []string
			if admin {
				roles = append(roles, auth.RoleLedgerAdmin)
			}

			token, expiresAt, err := auth.NewJWTService(c.cfg.JWT.Secret, c.cfg.JWT.Issuer).Issue(auth.TokenInput{
				TenantID: tenantID,
				UserID:   userID,
				Username: username,
				Roles:    roles,
				TTL:      ttl,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tokenOutput{Token: token, ExpiresAt: expiresAt})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant ID the token is scoped to")
	cmd.Flags().StringVar(&user, "user", "", "user ID, random when empty")
	cmd.Flags().StringVar(&username, "username", "", "display name recorded in the token")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the ledger admin role")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
