// relay delivers committed outbox events to Kafka, or to the in-process bus when no
// brokers are configured, until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/ledger/internal/bootstrap"
	"github.com/erp/ledger/internal/infrastructure/config"
	"go.uber.org/zap"
)

func main() {
	var (
		configDir string
		envFile   string
	)
	flag.StringVar(&configDir, "config", "", "directory containing config.toml")
	flag.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the configuration")
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

	if !cfg.Event.ProcessorEnabled {
		log.Info("Outbox processor disabled by event.processor_enabled, exiting")
		return
	}

	app, err := bootstrap.New(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize ledger", zap.Error(err))
	}

	processor := app.NewOutboxProcessor()
	if err := processor.Start(context.Background()); err != nil {
		_ = app.Close(context.Background())
		log.Fatal("Failed to start outbox processor", zap.Error(err))
	}
	app.Logger.Info("Relay started",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	app.Logger.Info("Shutting down relay", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := processor.Stop(ctx); err != nil {
		app.Logger.Error("Outbox processor did not stop in time", zap.Error(err))
	}
	if err := app.Close(ctx); err != nil {
		app.Logger.Error("Failed to release resources", zap.Error(err))
	}
	app.Logger.Info("Relay exited gracefully")
}
