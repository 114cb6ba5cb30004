// Package cli holds the bootstrap steps shared by the binaries under cmd/.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetlist/internal/amqp"
	"budgetlist/internal/config"
	"budgetlist/internal/log"
	"budgetlist/internal/services"
	"budgetlist/internal/storage"
)

// LoadEnvFile loads .env from the working directory for local development.
func LoadEnvFile() {
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
}

// SetupLogger builds the process logger from cfg and installs it as the
// slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    strings.ToLower(cfg.LogFormat),
		Component: component,
		Output:    os.Stderr,
	})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads the configuration and runs check on it.
// The process exits when check fails.
func LoadAndValidateConfig(component string, check func(*config.Config) error) (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg, component)
	if check != nil {
		if err := check(cfg); err != nil {
			logger.Error("Configuration validation failed", log.FieldError, err)
			os.Exit(1)
		}
	}
	return cfg, logger
}

// InitSQLite opens the SQLite List Store, running migrations first.
// The process exits on failure.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	logger.Info("SQLite repository ready", "path", dbPath)
	return repo
}

// InitAlertPublisher connects to the broker when AMQP is configured. Alerts
// are best-effort, so a failed connection disables them instead of stopping
// the process. The returned publisher is a nil interface when disabled.
func InitAlertPublisher(logger *log.Logger, cfg *config.Config) (services.AlertPublisher, func() error) {
	noop := func() error { return nil }
	if !cfg.AMQPEnabled() {
		logger.Info("AMQP not configured, budget alerts disabled")
		return nil, noop
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to connect to AMQP, budget alerts disabled", log.FieldError, err)
		return nil, noop
	}
	logger.Info("AMQP connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client, client.Close
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// GracefulShutdown runs serve until ctx is done, then calls shutdown with a
// fresh context bounded by timeout. serve returning on its own also
// triggers shutdown. The first non-cancellation error is returned.
func GracefulShutdown(ctx context.Context, logger *log.Logger, timeout time.Duration,
	serve func(ctx context.Context) error, shutdown func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := serve(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", "timeout", timeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", log.FieldError, err)
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("Shutdown complete")
		return nil
	})

	return g.Wait()
}
