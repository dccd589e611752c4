// Package cmd implements ledgerctl, the operator command line for the posting engine.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/erp/ledger/internal/bootstrap"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli carries what PersistentPreRunE loaded to the subcommands
type cli struct {
	configDir string
	envFiles  []string
	logLevel  string

	cfg *config.Config
	log *zap.Logger
}

// NewRootCommand builds the ledgerctl command tree
func NewRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the multi-tenant ledger posting engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configDir, "config", "c", "", "directory containing config.toml")
	flags.StringSliceVar(&c.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the configuration")
	flags.StringVar(&c.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		c.postCommand(),
		c.repostCommand(),
		c.reverseCommand(),
		c.checkBalanceCommand(),
		c.auditCommand(),
		c.relayOnceCommand(),
		c.outboxCommand(),
		c.mappingCommand(),
		c.migrateCommand(),
		c.tokenCommand(),
	)
	return root
}

// Execute runs ledgerctl and exits non-zero on failure
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (c *cli) load() error {
	if err := config.LoadDotEnv(c.envFiles...); err != nil {
		return err
	}
	var paths []string
	if c.configDir != "" {
		paths = append(paths, c.configDir)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	// stdout carries command results
	if cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}

	log, err := bootstrap.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.cfg = cfg
	c.log = log
	return nil
}

// withApp opens the ledger for the duration of fn
func (c *cli) withApp(ctx context.Context, fn func(app *bootstrap.App) error) (err error) {
	app, err := bootstrap.New(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(app)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput reads path, or stdin when path is "-"
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
