// Package bootstrap wires configuration into the ledger's runtime components.
// ledgerctl and the relay share it so both run against identically configured services.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	appevent "github.com/erp/ledger/internal/application/event"
	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/infrastructure/audit"
	"github.com/erp/ledger/internal/infrastructure/cache"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/erp/ledger/internal/infrastructure/persistence/tenant"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the wired components. Close releases them in reverse order.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *persistence.Database
	Posting  *appledger.PostingService
	Mappings *persistence.GormAccountMappingRepository
	Cache    *cache.MappingCache
	Auditor  *audit.LedgerAuditor
	Outbox   *event.GormOutboxRepository
	Admin    *appevent.OutboxService
	Bus      *event.InMemoryEventBus
	Metrics  *telemetry.LedgerMetrics

	closers []func(context.Context) error
}

// NewLogger builds the process logger from configuration
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
}

// New opens the database and builds every ledger component.
// On error, whatever was already opened is closed.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *App, err error) {
	app := &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	if err := app.initTelemetry(ctx); err != nil {
		return nil, err
	}
	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	db := app.DB.DB
	locker, err := persistence.NewDocumentLocker(cfg.Ledger.LockStrategy, cfg.Database.Driver, cfg.Ledger.LockTimeout)
	if err != nil {
		return nil, err
	}

	serializer := event.NewLedgerEventSerializer()
	scope := persistence.NewGormTransactionScope(db, locker, event.NewOutboxPublisher(serializer).WithMaxRetries(cfg.Event.MaxRetries))

	app.Mappings = persistence.NewGormAccountMappingRepository(db)
	app.Cache = cache.NewMappingCache(app.redisClient(ctx), app.Mappings, cfg.Ledger.MappingCacheTTL, app.Logger)
	app.Posting = appledger.NewPostingService(
		scope,
		persistence.NewGormLedgerEntryRepository(db),
		app.Cache,
		app.Logger,
		appledger.WithBalanceToleranceUnits(cfg.Ledger.BalanceToleranceUnits),
		appledger.WithMetrics(app.Metrics),
	)

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	app.Auditor = audit.NewLedgerAuditor(sqlDB, cfg.Database.Driver)
	app.Outbox = event.NewGormOutboxRepository(db)
	app.Admin = appevent.NewOutboxService(app.Outbox, app.Logger)

	app.Bus = event.NewInMemoryEventBus(app.Logger)
	app.Bus.Subscribe(event.NewLedgerEventLogger(app.Logger))

	app.Logger.Info("ledger initialized",
		zap.String("driver", cfg.Database.Driver),
		zap.String("lock_strategy", cfg.Ledger.LockStrategy),
		zap.Bool("redis_cache", cfg.Redis.Enabled),
		zap.Bool("kafka", cfg.Kafka.Enabled()),
	)
	return app, nil
}

func (a *App) initTelemetry(ctx context.Context) error {
	tc := a.Config.Telemetry

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           tc.Enabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		SamplingRatio:     tc.SamplingRatio,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to start tracing: %w", err)
	}
	a.onClose(tp.Shutdown)

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           tc.Enabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ExportInterval:    tc.MetricsInterval,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to start metrics: %w", err)
	}
	a.onClose(mp.Shutdown)

	a.Metrics, err = telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{
		Meter:  mp.Meter("github.com/erp/ledger"),
		Logger: a.Logger,
	})
	if err != nil {
		return err
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           tc.ProfilingEnabled,
		ServerAddress:     tc.ProfilingServerAddress,
		ApplicationName:   tc.ServiceName,
		BasicAuthUser:     tc.ProfilingAuthUser,
		BasicAuthPassword: tc.ProfilingAuthPassword,
		ProfileTypes:      tc.ProfilingTypes,
	}, a.Logger)
	if err != nil {
		return err
	}
	a.onClose(profiler.Stop)
	if profiler.IsEnabled() && tc.SpanProfilesEnabled {
		tp.EnableSpanProfiles()
	}

	if tc.Enabled && tc.LogsEnabled {
		lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
			Enabled:           true,
			CollectorEndpoint: tc.CollectorEndpoint,
			ServiceName:       tc.ServiceName,
			Insecure:          tc.Insecure,
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to start log export: %w", err)
		}
		a.onClose(lp.Shutdown)
		a.Logger = lp.Bridge(a.Logger, logger.ParseLevel(tc.LogsLevel))
	}
	return nil
}

func (a *App) initDatabase() error {
	cfg := a.Config
	gormLog := logger.NewGormLogger(a.Logger, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		return err
	}
	a.DB = db
	a.onClose(func(context.Context) error { return db.Close() })

	if err := tenant.Register(db.DB); err != nil {
		return fmt.Errorf("failed to register tenant guard: %w", err)
	}

	dbSystem := "postgresql"
	if cfg.Database.Driver == persistence.DriverSQLite {
		dbSystem = "sqlite"
		// sqlite is for local use; the SQL migrations target postgres
		if err := db.DB.AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
	}

	plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        dbSystem,
	}, a.Logger)
	return plugin.RegisterOtelGorm(db.DB)
}

// redisClient returns nil when Redis is disabled or unreachable; the mapping cache then
// only de-duplicates loads
func (a *App) redisClient(ctx context.Context) redis.Cmdable {
	rc := a.Config.Redis
	if !rc.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr(),
		Password: rc.Password,
		DB:       rc.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.Logger.Warn("redis unavailable, account mapping cache disabled", zap.String("addr", rc.Addr()), zap.Error(err))
		_ = client.Close()
		return nil
	}
	a.onClose(func(context.Context) error { return client.Close() })
	return client
}

// NewOutboxProcessor builds the relay. Entries go to Kafka when brokers are configured,
// otherwise to the in-process bus.
func (a *App) NewOutboxProcessor() *event.OutboxProcessor {
	var publisher event.Publisher
	if a.Config.Kafka.Enabled() {
		kp := event.NewKafkaPublisher(a.Config.Kafka)
		a.onClose(func(context.Context) error { return kp.Close() })
		publisher = kp
	} else {
		publisher = event.NewBusPublisher(a.Bus, event.NewLedgerEventSerializer())
	}

	ec := a.Config.Event
	pc := event.DefaultOutboxProcessorConfig()
	pc.BatchSize = ec.BatchSize
	pc.PollInterval = ec.PollInterval
	pc.CleanupEnabled = ec.CleanupEnabled
	pc.CleanupRetention = ec.CleanupRetention
	pc.PublishRetries = a.Config.Kafka.PublishRetries
	pc.PublishMaxDelay = a.Config.Kafka.PublishMaxBackoff

	return event.NewOutboxProcessor(a.Outbox, publisher, pc, a.Metrics, a.Logger)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases everything New opened, last opened first
func (a *App) Close(ctx context.Context) error {
	var errs *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	a.closers = nil
	return errs.ErrorOrNil()
}
