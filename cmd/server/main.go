// server exposes the posting engine over HTTP until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/erp/ledger/internal/bootstrap"
	"github.com/erp/ledger/internal/infrastructure/auth"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/erp/ledger/internal/interfaces/http/router"
	"go.uber.org/zap"
)

func main() {
	var (
		configDir string
		envFile   string
		withRelay bool
	)
	flag.StringVar(&configDir, "config", "", "directory containing config.toml")
	flag.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	flag.BoolVar(&withRelay, "relay", false, "also run the outbox relay in this process")
	flag.Parse()

	if err := config.LoadDotEnv(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", envFile, err)
		os.Exit(1)
	}
	var paths []string
	if configDir != "" {
		paths = append(paths, configDir)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := bootstrap.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	if cfg.JWT.Secret == "" {
		log.Fatal("jwt.secret is required to serve the API")
	}

	app, err := bootstrap.New(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize ledger", zap.Error(err))
	}

	var processor *event.OutboxProcessor
	if withRelay && cfg.Event.ProcessorEnabled {
		processor = app.NewOutboxProcessor()
		if err := processor.Start(context.Background()); err != nil {
			_ = app.Close(context.Background())
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
	}

	engine := router.NewAPI(router.EngineConfig{
		Mode:           cfg.HTTP.Mode,
		ServiceName:    cfg.Telemetry.ServiceName,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TracingEnabled: cfg.Telemetry.Enabled,
	}, log, router.Dependencies{
		Posting: app.Posting,
		Auditor: app.Auditor,
		Outbox:  app.Admin,
		DB:      app.DB,
		Tokens:  auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.HTTP.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.App.Env),
			zap.Bool("relay", processor != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("Shutting down server", zap.String("signal", sig.String()))
	case err := <-serveErr:
		log.Error("Server failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if processor != nil {
		if err := processor.Stop(ctx); err != nil {
			log.Error("Outbox processor did not stop in time", zap.Error(err))
		}
	}
	if err := app.Close(ctx); err != nil {
		log.Error("Failed to release resources", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}
