package stats

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) CountBooked(ctx context.Context, providerID uuid.UUID, day time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE provider_id = $1
		  AND appointment_date = $2
		  AND status = 'booked'
	`, providerID, day).Scan(&n)
	return n, err
}

func (r *PgRepository) AvgDurationMinutes(ctx context.Context, providerID uuid.UUID, from, to time.Time) (float64, error) {
	var avg float64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (t.end_time - t.start_time)) / 60), 0)::float8
		FROM appointments a
		JOIN timeslots t ON t.id = a.timeslot_id
		WHERE a.provider_id = $1
		  AND a.status = 'booked'
		  AND a.appointment_date BETWEEN $2 AND $3
	`, providerID, from, to).Scan(&avg)
	return avg, err
}

func (r *PgRepository) BookedAndCanceled(ctx context.Context, providerID uuid.UUID, from, to time.Time) (int, int, error) {
	var booked, canceled int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE status = 'booked'),
		       count(*) FILTER (WHERE status = 'canceled')
		FROM appointments
		WHERE provider_id = $1
		  AND appointment_date BETWEEN $2 AND $3
	`, providerID, from, to).Scan(&booked, &canceled)
	return booked, canceled, err
}

func (r *PgRepository) StatusDistribution(ctx context.Context, providerID uuid.UUID, from, to time.Time) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, count(*)
		FROM appointments
		WHERE provider_id = $1
		  AND appointment_date BETWEEN $2 AND $3
		GROUP BY status
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dist := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		dist[status] = n
	}
	return dist, rows.Err()
}
