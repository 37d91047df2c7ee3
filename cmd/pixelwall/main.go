package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pixelwall/pixelwall/internal/allocator"
	"github.com/pixelwall/pixelwall/internal/api"
	"github.com/pixelwall/pixelwall/internal/broadcast"
	"github.com/pixelwall/pixelwall/internal/circuitbreaker"
	"github.com/pixelwall/pixelwall/internal/config"
	"github.com/pixelwall/pixelwall/internal/metrics"
	"github.com/pixelwall/pixelwall/internal/processor"
	"github.com/pixelwall/pixelwall/internal/storage"
)

func main() {
	cfg := config.Load()

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store    storage.Store
		backends map[string]api.Pinger
	)

	switch cfg.StoreBackend {
	case config.StoreMemory:
		store = storage.NewMemoryStore()
		logger.Info("using in-memory store; grid state will not survive a restart")

	default:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")

		if err := storage.RunMigrations(ctx, pool); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations complete")

		prometheus.MustRegister(metrics.NewPoolCollector(pool))
		store = storage.NewPostgresStore(pool, cfg.QueryTimeout, cfg.AllocTxTimeout)
		backends = map[string]api.Pinger{"postgres": pool}
	}

	revealed, err := store.RevealedCount(ctx)
	if err != nil {
		logger.Error("failed to read grid state", "error", err)
		os.Exit(1)
	}
	metrics.RevealedCells.Set(float64(revealed))
	logger.Info("grid state loaded",
		"width", cfg.GridWidth,
		"height", cfg.GridHeight,
		"revealed", revealed,
	)

	alloc := allocator.New(cfg.GridWidth, cfg.GridHeight)
	breaker := circuitbreaker.New(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout,
		circuitbreaker.WithIgnored(processor.ErrAlreadyHandled))
	hub := broadcast.NewHub(logger, cfg.WSWriteTimeout, cfg.WSSendBuffer)
	proc := processor.New(store, alloc, breaker, hub, cfg.CentsPerCell, logger)

	handler := api.NewServer(logger, store, proc, hub, backends)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down...")

	cancel()
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
