package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/proserve/booking-core/internal/booking"
	"github.com/proserve/booking-core/internal/conflict"
	"github.com/proserve/booking-core/internal/lock"
)

type RouterConfig struct {
	Orchestrator *booking.Orchestrator
	Detector     *conflict.Detector
	Locks        *lock.Manager
	PgPool       *pgxpool.Pool
	Redis        *redis.Client // nil when the redis lock store is not in use
	Logger       *slog.Logger
	Env          string
	Version      string

	// BookingTimeout is the lock lease around one booking attempt. Zero
	// falls back to the orchestrator's default.
	BookingTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	validate := validator.New()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/bookings", bookSlotHandler(cfg.Orchestrator, validate, cfg.BookingTimeout))
	r.Post("/conflicts/validate", validateEntityHandler(cfg.Detector, validate))
	r.Get("/professionals/{id}/conflict-statistics", conflictStatisticsHandler(cfg.Detector))

	r.Get("/locks", listLocksHandler(cfg.Locks))
	r.Get("/locks/{key}", lockStatusHandler(cfg.Locks))

	return r
}
