package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/booking-platform/internal/db"
)

const (
	constraintSlotUnique       = "timeslots_provider_day_start_end_key"
	constraintOneActivePerSlot = "appointments_one_active_per_slot"

	slotColumns        = `id, provider_id, day, start_time, end_time, is_booked, created_at, updated_at`
	appointmentColumns = `id, user_id, provider_id, timeslot_id, appointment_date, status, reminder_sent_at, created_at, updated_at`
)

type PgRepository struct {
	pool   *pgxpool.Pool
	runner *db.TxRunner
}

func NewPgRepository(pool *pgxpool.Pool, runner *db.TxRunner) *PgRepository {
	return &PgRepository{pool: pool, runner: runner}
}

// Helpers

func scanSlot(row pgx.Row) (*Timeslot, error) {
	var s Timeslot

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.Day,
		&s.StartTime,
		&s.EndTime,
		&s.IsBooked,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Day = DateOnly(s.Day)
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.ProviderID,
		&a.TimeslotID,
		&a.AppointmentDate,
		&a.Status,
		&a.ReminderSentAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.AppointmentDate = DateOnly(a.AppointmentDate)
	return &a, nil
}

func scanView(row pgx.Row) (*AppointmentView, error) {
	var v AppointmentView

	err := row.Scan(
		&v.ID,
		&v.Status,
		&v.CreatedAt,
		&v.TimeslotID,
		&v.Day,
		&v.StartTime,
		&v.EndTime,
		&v.CounterpartyID,
		&v.CounterpartyFirstName,
		&v.CounterpartyLastName,
	)
	if err != nil {
		return nil, err
	}

	v.Day = DateOnly(v.Day)
	return &v, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	result := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Store methods

func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return r.runner.Run(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

func (r *PgRepository) ProviderUserID(ctx context.Context, providerID uuid.UUID) (uuid.UUID, error) {
	var userID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT user_id FROM providers WHERE id = $1`, providerID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrProviderNotFound
		}
		return uuid.Nil, fmt.Errorf("load provider: %w", err)
	}
	return userID, nil
}

func (r *PgRepository) ListForClient(ctx context.Context, userID uuid.UUID) ([]AppointmentView, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.status, a.created_at, a.timeslot_id,
		       t.day, t.start_time, t.end_time,
		       u.id, u.first_name, u.last_name
		FROM appointments a
		JOIN timeslots t ON t.id = a.timeslot_id
		JOIN providers p ON p.id = a.provider_id
		JOIN users u ON u.id = p.user_id
		WHERE a.user_id = $1
		ORDER BY t.day ASC, t.start_time ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list client appointments: %w", err)
	}
	return collect(rows, scanView)
}

func (r *PgRepository) ListForProvider(ctx context.Context, providerID uuid.UUID) ([]AppointmentView, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.status, a.created_at, a.timeslot_id,
		       t.day, t.start_time, t.end_time,
		       u.id, u.first_name, u.last_name
		FROM appointments a
		JOIN timeslots t ON t.id = a.timeslot_id
		JOIN users u ON u.id = a.user_id
		WHERE a.provider_id = $1
		ORDER BY t.day DESC, t.start_time DESC
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("list provider appointments: %w", err)
	}
	return collect(rows, scanView)
}

func (r *PgRepository) InsertSlot(ctx context.Context, providerID uuid.UUID, day time.Time, start, end Clock) (*Timeslot, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO timeslots (provider_id, day, start_time, end_time)
		VALUES ($1, $2, $3, $4)
		RETURNING `+slotColumns,
		providerID, day, start, end)

	slot, err := scanSlot(row)
	if err != nil {
		if db.IsUniqueViolation(err, constraintSlotUnique) {
			return nil, ErrSlotExists
		}
		return nil, fmt.Errorf("insert slot: %w", err)
	}
	return slot, nil
}

func (r *PgRepository) ListSlots(ctx context.Context, providerID uuid.UUID, availableOnly bool) ([]Timeslot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM timeslots
		WHERE provider_id = $1
		  AND (NOT $2 OR is_booked = FALSE)
		ORDER BY day ASC, start_time ASC
	`, providerID, availableOnly)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return collect(rows, scanSlot)
}

// pgTx runs statements on an open transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockSlot(ctx context.Context, id uuid.UUID) (*Timeslot, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM timeslots
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanSlot(row)
}

func (t *pgTx) SetSlotBooked(ctx context.Context, id uuid.UUID, booked bool) (*Timeslot, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE timeslots
		SET is_booked = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+slotColumns,
		id, booked)
	return scanSlot(row)
}

func (t *pgTx) UpdateSlot(ctx context.Context, slot Timeslot) (*Timeslot, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE timeslots
		SET day = $2,
		    start_time = $3,
		    end_time = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+slotColumns,
		slot.ID, slot.Day, slot.StartTime, slot.EndTime)

	updated, err := scanSlot(row)
	if err != nil {
		if db.IsUniqueViolation(err, constraintSlotUnique) {
			return nil, ErrSlotExists
		}
		return nil, err
	}
	return updated, nil
}

func (t *pgTx) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM timeslots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (t *pgTx) LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (t *pgTx) InsertAppointment(ctx context.Context, userID uuid.UUID, slot Timeslot) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (user_id, provider_id, timeslot_id, appointment_date, status)
		VALUES ($1, $2, $3, $4, 'booked')
		RETURNING `+appointmentColumns,
		userID, slot.ProviderID, slot.ID, slot.Day)

	appt, err := scanAppointment(row)
	if err != nil {
		if db.IsUniqueViolation(err, constraintOneActivePerSlot) {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return appt, nil
}

func (t *pgTx) SetAppointmentStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, status)
	return scanAppointment(row)
}

func (t *pgTx) MoveAppointment(ctx context.Context, id uuid.UUID, slot Timeslot) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET timeslot_id = $2,
		    appointment_date = $3,
		    reminder_sent_at = NULL,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, slot.ID, slot.Day)

	appt, err := scanAppointment(row)
	if err != nil {
		if db.IsUniqueViolation(err, constraintOneActivePerSlot) {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, err
	}
	return appt, nil
}

func (t *pgTx) LockDueReminders(ctx context.Context, from, to time.Time, limit int) ([]DueReminder, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT a.id, a.user_id, a.provider_id, t.day, t.start_time, t.end_time
		FROM appointments a
		JOIN timeslots t ON t.id = a.timeslot_id
		WHERE a.status = 'booked'
		  AND a.reminder_sent_at IS NULL
		  AND t.day + t.start_time > $1::timestamp
		  AND t.day + t.start_time <= $2::timestamp
		ORDER BY t.day, t.start_time
		LIMIT $3
		FOR UPDATE OF a SKIP LOCKED
	`, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("lock due reminders: %w", err)
	}
	return collect(rows, func(row pgx.Row) (*DueReminder, error) {
		var d DueReminder
		if err := row.Scan(&d.AppointmentID, &d.UserID, &d.ProviderID, &d.Day, &d.StartTime, &d.EndTime); err != nil {
			return nil, err
		}
		d.Day = DateOnly(d.Day)
		return &d, nil
	})
}

func (t *pgTx) MarkRemindersSent(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent_at = $2,
		    updated_at = now()
		WHERE id = ANY($1)
	`, ids, at)
	if err != nil {
		return fmt.Errorf("mark reminders sent: %w", err)
	}
	return nil
}
