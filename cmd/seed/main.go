package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/proserve/booking-core/internal/db"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

func main() {
	logger.Info("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Error("POSTGRES_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	professionals, err := seedProfessionals(context.Background(), pool, 100)
	if err != nil {
		logger.Error("seed professionals", "error", err)
		os.Exit(1)
	}
	if err := seedClients(context.Background(), pool, 5000); err != nil {
		logger.Error("seed clients", "error", err)
		os.Exit(1)
	}
	if err := seedSlots(context.Background(), pool, professionals); err != nil {
		logger.Error("seed slots", "error", err)
		os.Exit(1)
	}
	if err := seedBlockedPeriods(context.Background(), pool, professionals); err != nil {
		logger.Error("seed blocked periods", "error", err)
		os.Exit(1)
	}

	logger.Info("seed complete")
}

func seedProfessionals(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	logger.Info("seeding professionals", "count", count)

	specialties := []string{
		"Plumbing",
		"Electrical",
		"Legal Advice",
		"Accounting",
		"Graphic Design",
		"Tutoring",
		"Career Coaching",
		"Photography",
		"Landscaping",
		"IT Consulting",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO professionals (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, specialty)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info("professionals seeded")
	return ids, nil
}

func seedClients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	logger.Info("seeding clients", "count", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO clients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info("clients seeded", "done", end, "total", count)
	}

	return nil
}

// seedSlots gives each professional hourly slots on weekdays, two to
// thirty days out so the lead-time rule does not flag them.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, professionals []uuid.UUID) error {
	logger.Info("seeding slots", "professionals", len(professionals))

	for _, professionalID := range professionals {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for day := 2; day <= 30; day++ {
			date := time.Now().AddDate(0, 0, day)
			if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			for hour := 9; hour < 17; hour++ {
				start := time.Date(date.Year(), date.Month(), date.Day(), hour, 0, 0, 0, time.Local)
				_, err := tx.Exec(ctx, `
					INSERT INTO slots (id, professional_id, start_time, end_time, status, created_at, updated_at)
					VALUES ($1, $2, $3, $4, 'available', now(), now())
				`, uuid.New(), professionalID, start, start.Add(time.Hour))
				if err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	logger.Info("slots seeded")
	return nil
}

func seedBlockedPeriods(ctx context.Context, pool *pgxpool.Pool, professionals []uuid.UUID) error {
	logger.Info("seeding blocked periods")

	reasons := []string{"vacation", "training", "admin time", "personal"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, professionalID := range professionals {
		// Roughly one in four professionals has an upcoming block.
		if gofakeit.Number(0, 3) != 0 {
			continue
		}
		day := gofakeit.Number(5, 25)
		date := time.Now().AddDate(0, 0, day)
		start := time.Date(date.Year(), date.Month(), date.Day(), 9, 0, 0, 0, time.Local)

		_, err := tx.Exec(ctx, `
			INSERT INTO blocked_periods (id, professional_id, start_time, end_time, reason, allow_override, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
		`, uuid.New(), professionalID, start, start.Add(8*time.Hour),
			reasons[gofakeit.Number(0, len(reasons)-1)], gofakeit.Bool())
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info("blocked periods seeded")
	return nil
}
