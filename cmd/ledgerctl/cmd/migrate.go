package cmd

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/erp/ledger/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (c *cli) migrateCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
		Long: `migrate applies the SQL files in the migrations directory (database.migrations_path
unless --path is given). sqlite databases are migrated automatically on startup.`,
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "migrations directory")

	dir := func() (string, error) {
		p := path
		if p == "" {
			p = c.cfg.Database.MigrationsPath
		}
		return filepath.Abs(p)
	}

	// withMigrator opens a plain database/sql connection; golang-migrate drives it directly
	withMigrator := func(fn func(m *migration.Migrator) error) error {
		if c.cfg.Database.Driver != "postgres" {
			return fmt.Errorf("migrate requires database.driver=postgres, got %q", c.cfg.Database.Driver)
		}
		migrationsPath, err := dir()
		if err != nil {
			return err
		}
		db, err := sql.Open("postgres", c.cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}

		m, err := migration.New(db, migrationsPath, c.log)
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()
		return fn(m)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return withMigrator(func(m *migration.Migrator) error { return m.Up() })
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return withMigrator(func(m *migration.Migrator) error { return m.Down() })
			},
		},
		&cobra.Command{
			Use:     "steps <n>",
			Short:   "Apply n migrations, negative n rolls back",
			Example: "ledgerctl migrate steps -- -1",
			Args:    cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				return withMigrator(func(m *migration.Migrator) error { return m.Steps(n) })
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(func(m *migration.Migrator) error {
					version, dirty, err := m.Version()
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), map[string]any{"version": version, "dirty": dirty})
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				c.log.Warn("forcing migration version", zap.Int("version", version))
				return withMigrator(func(m *migration.Migrator) error { return m.Force(version) })
			},
		},
		&cobra.Command{
			Use:     "create <name> [description]",
			Short:   "Create the next up/down migration pair",
			Example: `ledgerctl migrate create add_cost_center "Cost center on ledger entries"`,
			Args:    cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				migrationsPath, err := dir()
				if err != nil {
					return err
				}
				description := ""
				if len(args) > 1 {
					description = args[1]
				}
				mf, err := migration.CreateMigration(migrationsPath, args[0], description)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"version": mf.Version,
					"up":      mf.UpPath,
					"down":    mf.DownPath,
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the migrations in the directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				migrationsPath, err := dir()
				if err != nil {
					return err
				}
				names, err := migration.ListMigrations(migrationsPath)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), names)
			},
		},
	)
	return cmd
}
