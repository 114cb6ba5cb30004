package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"budgetlist/internal/auth"
	"budgetlist/internal/cache"
	"budgetlist/internal/cli"
	"budgetlist/internal/config"
	apphttp "budgetlist/internal/http"
	"budgetlist/internal/ledger"
	"budgetlist/internal/log"
	"budgetlist/internal/metrics"
	"budgetlist/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp, (*config.Config).Validate)
	logger.Info("Starting budgetlist server", "port", cfg.Port, "log_format", cfg.LogFormat)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	alerts, closeAlerts := cli.InitAlertPublisher(logger, cfg)
	defer closeAlerts()

	ctx, stop := cli.SignalContext()
	defer stop()

	totals := cache.NewLRUCache[ledger.CachedTotals](cfg.CacheSize, cfg.CacheTTL)
	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	caches.Register(totals)
	caches.Start(ctx, cfg.CacheTTL)

	m := metrics.New()
	lists := services.NewListService(repo, alerts,
		services.WithMetrics(m),
		services.WithLogger(logger),
		services.WithTotalsCache(totals),
	)
	authSvc := auth.NewService(repo, auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL))

	srv := apphttp.NewServer(lists, authSvc, apphttp.Options{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Metrics:            m,
		Logger:             logger,
		Ready:              repo.Ping,
	})

	err := cli.GracefulShutdown(ctx, logger, shutdownTimeout,
		func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Info("Listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		srv.Shutdown,
	)
	stop()
	caches.Wait()
	if err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
