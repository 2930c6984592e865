package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/proserve/booking-core/internal/api"
	"github.com/proserve/booking-core/internal/booking"
	"github.com/proserve/booking-core/internal/config"
	"github.com/proserve/booking-core/internal/conflict"
	"github.com/proserve/booking-core/internal/db"
	"github.com/proserve/booking-core/internal/lock"
	redisclient "github.com/proserve/booking-core/internal/redis"
	"github.com/proserve/booking-core/internal/schedule"
)

const version = "0.3.0"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger.Info("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load error", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"http_port", cfg.HTTPPort,
		"lock_store", cfg.LockStore,
		"lock_ttl", cfg.LockTTL,
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	var (
		rdb   *redis.Client
		store lock.Store
	)
	if cfg.LockStore == "redis" {
		rdb, err = redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Error("redis connection error", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", "error", err)
			}
		}()
		store = lock.NewRedisStore(rdb)
		logger.Info("connected to Redis, using redis lock store")
	} else {
		store = lock.NewPgStore(pgPool)
	}

	locks := lock.NewManager(store, logger, lock.Options{
		TTL:        cfg.LockTTL,
		MaxRetries: cfg.LockMaxRetries,
		RetryDelay: cfg.LockRetryDelay,
	})
	defer locks.Close()

	repo := schedule.NewPgRepository(pgPool)
	detector := conflict.NewDetector(repo, conflict.Rules{
		MinLeadTime: cfg.MinLeadTime,
		MaxAdvance:  cfg.MaxAdvance,
		OpenHour:    cfg.OpenHour,
		CloseHour:   cfg.CloseHour,
		MaxDuration: cfg.MaxDuration,
	})
	orchestrator := booking.NewOrchestrator(repo, locks, detector, logger)

	router := api.NewRouter(api.RouterConfig{
		Orchestrator: orchestrator,
		Detector:     detector,
		Locks:        locks,
		PgPool:       pgPool,
		Redis:        rdb,
		Logger:       logger,
		Env:          cfg.Env,
		Version:      version,

		BookingTimeout: cfg.BookingTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}
}
