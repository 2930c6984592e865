package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/proserve/booking-core/internal/config"
	"github.com/proserve/booking-core/internal/db"
	"github.com/proserve/booking-core/internal/lock"
	redisclient "github.com/proserve/booking-core/internal/redis"
)

// The sweeper is the authoritative reclamation path for locks whose
// holders crashed before releasing. Local cleanup timers in the api-server
// usually beat it to the delete; running both is harmless.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger.Info("lock-sweeper starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load error", "error", err)
		os.Exit(1)
	}

	logger.Info("running lock sweeper", "env", cfg.Env, "interval", cfg.SweepInterval, "lock_store", cfg.LockStore)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store lock.Store
	if cfg.LockStore == "redis" {
		rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Error("redis connection error", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		store = lock.NewRedisStore(rdb)
		logger.Info("connected to Redis")
	} else {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			logger.Error("postgres connection error", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()
		store = lock.NewPgStore(pgPool)
		logger.Info("connected to Postgres")
	}

	manager := lock.NewManager(store, logger, lock.Options{})
	defer manager.Close()

	// Run once at startup
	runOnce(rootCtx, manager, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping lock sweeper")
			return
		case <-ticker.C:
			runOnce(rootCtx, manager, logger)
		}
	}
}

func runOnce(ctx context.Context, manager *lock.Manager, logger *slog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	reclaimed, err := manager.CleanupExpired(runCtx)
	if err != nil {
		logger.Error("sweep run error", "error", err)
		return
	}
	logger.Info("sweep run complete", "reclaimed", reclaimed, "duration", time.Since(start))
}
