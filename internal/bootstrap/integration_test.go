//go:build integration

package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/migration"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// startPostgres runs a throwaway postgres, applies the SQL migrations and
// returns a config pointing at it
func startPostgres(t *testing.T) *config.Config {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := &config.Config{
		App: config.AppConfig{Name: "ledger-it", Env: "test"},
		Database: config.DatabaseConfig{
			Driver:         "postgres",
			Host:           host,
			Port:           port.Int(),
			User:           "postgres",
			Password:       "ledger",
			DBName:         "ledger_test",
			SSLMode:        "disable",
			MaxOpenConns:   10,
			MaxIdleConns:   2,
			MigrationsPath: migrationsDir(t),
		},
		Log:    config.LogConfig{Level: "error"},
		Event:  config.EventConfig{BatchSize: 50, PollInterval: time.Second, MaxRetries: 5},
		Kafka:  config.KafkaConfig{PublishRetries: 1, PublishMaxBackoff: 10 * time.Millisecond},
		Ledger: config.LedgerConfig{BalanceToleranceUnits: 1, LockStrategy: config.LockStrategyAdvisory, LockTimeout: 5 * time.Second},
	}

	sqlDB, err := sql.Open("postgres", cfg.Database.DSN())
	require.NoError(t, err)
	defer sqlDB.Close()
	m, err := migration.New(sqlDB, cfg.Database.MigrationsPath, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.EqualValues(t, 2, version)

	return cfg
}

func migrationsDir(t *testing.T) string {
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok)
	dir := filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
	_, err := os.Stat(dir)
	require.NoError(t, err, "migrations directory not found")
	return dir
}

func saveMapping(t *testing.T, app *App, tenantID uuid.UUID, reporting valueobject.Currency) {
	t.Helper()
	accounts := map[ledger.Role]ledger.Account{}
	for _, role := range ledger.AllRoles() {
		accounts[role] = ledger.Account{BaseEntity: shared.NewBaseEntity(), TenantID: tenantID, Code: "2-" + role.Suffix(), Name: role.String()}
	}
	mapping, err := ledger.NewAccountMapping(tenantID, reporting, accounts)
	require.NoError(t, err)
	require.NoError(t, app.Mappings.Save(context.Background(), mapping))
}

func salesInvoice(tenantID uuid.UUID, ref string) *ledger.SalesInvoice {
	return &ledger.SalesInvoice{
		DocumentHeader: ledger.DocumentHeader{
			TenantID:     tenantID,
			DocumentRef:  ref,
			Currency:     valueobject.IDR,
			ExchangeRate: decimal.RequireFromString("0.5"),
		},
		Subtotal: decimal.NewFromInt(1000),
		Discount: decimal.NewFromInt(100),
		Tax:      decimal.NewFromInt(90),
		Balance:  decimal.NewFromInt(990),
	}
}

func TestPostgres_PostingLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	cfg := startPostgres(t)
	ctx := context.Background()

	app, err := New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, app.Close(ctx)) }()

	tenantID := uuid.New()
	saveMapping(t, app, tenantID, valueobject.USD)
	actor := ledger.Actor{ID: uuid.New(), TenantID: tenantID}

	t.Run("concurrent posts of one document serialize on the advisory lock", func(t *testing.T) {
		const workers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			already   int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := app.Posting.Post(ctx, salesInvoice(tenantID, "INV-PG-1"), nil, actor)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, ledger.ErrAlreadyPosted):
					already++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, workers-1, already)
	})

	t.Run("balance and audit agree", func(t *testing.T) {
		result, err := app.Posting.CheckBalance(ctx, tenantID, "INV-PG-1")
		require.NoError(t, err)
		assert.True(t, result.Balanced)
		assert.Equal(t, 4, result.EntryCount)
		assert.True(t, result.DebitTotal.Equal(decimal.RequireFromString("545")))

		groups, err := app.Auditor.FindUnbalanced(ctx, tenantID, decimal.RequireFromString("0.01"))
		require.NoError(t, err)
		assert.Empty(t, groups)
	})

	t.Run("repost replaces and reverse removes", func(t *testing.T) {
		entries, err := app.Posting.Repost(ctx, salesInvoice(tenantID, "INV-PG-1"), nil, actor)
		require.NoError(t, err)
		assert.Len(t, entries, 4)

		removed, err := app.Posting.Reverse(ctx, tenantID, "INV-PG-1")
		require.NoError(t, err)
		assert.EqualValues(t, 4, removed)

		_, err = app.Posting.Reverse(ctx, tenantID, "INV-PG-1")
		assert.ErrorIs(t, err, ledger.ErrNothingToReverse)
	})

	t.Run("relay drains the outbox", func(t *testing.T) {
		processor := app.NewOutboxProcessor()
		// post, repost (reversed then posted) and reverse
		assert.Equal(t, 4, processor.ProcessBatch(ctx))
		assert.Equal(t, 0, processor.ProcessBatch(ctx))
	})
}
