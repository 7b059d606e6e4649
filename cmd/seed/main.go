package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/booking-platform/internal/appointment"
	"github.com/hackgods/booking-platform/internal/auth"
	"github.com/hackgods/booking-platform/internal/db"
	"github.com/hackgods/booking-platform/internal/logging"
)

// every seeded account shares this password
const seedPassword = "password123"

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Physiotherapy",
	"Nutrition",
	"Dentistry",
	"Pediatrics",
	"Psychology",
	"Optometry",
	"Massage Therapy",
}

type seedConfig struct {
	Providers int
	Clients   int
	Days      int
	SlotLen   time.Duration
}

func main() {
	logger := logging.New("seed", os.Getenv("LOG_LEVEL"))

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Error("POSTGRES_DSN is required")
		os.Exit(1)
	}
	cfg := seedConfig{
		Providers: getInt("SEED_PROVIDERS", 50),
		Clients:   getInt("SEED_CLIENTS", 2000),
		Days:      getInt("SEED_DAYS", 14),
		SlotLen:   30 * time.Minute,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate", "err", err)
		os.Exit(1)
	}

	hash, err := auth.HashPassword(seedPassword)
	if err != nil {
		logger.Error("hash password", "err", err)
		os.Exit(1)
	}

	providers, err := seedProviders(ctx, pool, logger, cfg.Providers, hash)
	if err != nil {
		logger.Error("seed providers", "err", err)
		os.Exit(1)
	}
	if err := seedClients(ctx, pool, logger, cfg.Clients, hash); err != nil {
		logger.Error("seed clients", "err", err)
		os.Exit(1)
	}
	if err := seedTimeslots(ctx, pool, logger, providers, cfg); err != nil {
		logger.Error("seed timeslots", "err", err)
		os.Exit(1)
	}

	logger.Info("seed complete", "providers", len(providers), "clients", cfg.Clients, "password", seedPassword)
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger, count int, hash string) ([]uuid.UUID, error) {
	logger.Info("seeding providers", "count", count)

	ids := make([]uuid.UUID, 0, count)
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			var userID, providerID uuid.UUID
			specialty := specialties[gofakeit.Number(0, len(specialties)-1)]
			if err := tx.QueryRow(ctx, `
				INSERT INTO users (first_name, last_name, email, password_hash, role, is_verified)
				VALUES ($1, $2, $3, $4, 'provider', true)
				RETURNING id
			`, gofakeit.FirstName(), gofakeit.LastName(), seedEmail("provider", i), hash).Scan(&userID); err != nil {
				return err
			}
			if err := tx.QueryRow(ctx, `
				INSERT INTO providers (user_id, specialty, bio, rating)
				VALUES ($1, $2, $3, $4)
				RETURNING id
			`, userID, specialty, fmt.Sprintf("%s practice in %s", specialty, gofakeit.City()),
				gofakeit.Float64Range(3, 5)).Scan(&providerID); err != nil {
				return err
			}
			ids = append(ids, providerID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func seedClients(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger, count int, hash string) error {
	logger.Info("seeding clients", "count", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			batch.Queue(`
				INSERT INTO users (first_name, last_name, email, password_hash, role, is_verified)
				VALUES ($1, $2, $3, $4, 'client', $5)
			`, gofakeit.FirstName(), gofakeit.LastName(), seedEmail("client", i), hash, gofakeit.Bool())
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		logger.Info("clients seeded", "done", end, "total", count)
	}
	return nil
}

func seedTimeslots(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger, providers []uuid.UUID, cfg seedConfig) error {
	today := appointment.DateOnly(time.Now().UTC())
	open, closing := appointment.NewClock(9, 0), appointment.NewClock(17, 0)

	var rows [][]any
	for _, pid := range providers {
		for d := 1; d <= cfg.Days; d++ {
			day := today.AddDate(0, 0, d)
			if day.Weekday() == time.Sunday {
				continue
			}
			for _, s := range daySlots(open, closing, cfg.SlotLen) {
				// leave gaps so schedules look lived in
				if gofakeit.Number(0, 9) < 2 {
					continue
				}
				rows = append(rows, []any{pid, day, s[0], s[1]})
			}
		}
	}

	n, err := pool.CopyFrom(ctx,
		pgx.Identifier{"timeslots"},
		[]string{"provider_id", "day", "start_time", "end_time"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return err
	}
	logger.Info("timeslots seeded", "count", n)
	return nil
}

// daySlots splits [open, closing) into back-to-back slots of length step.
func daySlots(open, closing appointment.Clock, step time.Duration) [][2]appointment.Clock {
	minutes := appointment.Clock(step / time.Minute)
	if minutes <= 0 {
		return nil
	}
	var out [][2]appointment.Clock
	for start := open; start+minutes <= closing; start += minutes {
		out = append(out, [2]appointment.Clock{start, start + minutes})
	}
	return out
}

func seedEmail(role string, i int) string {
	return fmt.Sprintf("%s.%s.%d@example.com", role, strings.ToLower(gofakeit.Username()), i)
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
