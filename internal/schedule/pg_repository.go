package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID,
		&s.ProfessionalID,
		&s.StartTime,
		&s.EndTime,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var slotID *uuid.UUID

	err := row.Scan(
		&a.ID,
		&a.ProfessionalID,
		&a.ClientID,
		&slotID,
		&a.StartTime,
		&a.EndTime,
		&a.Price,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.SlotID = slotID
	return &a, nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()
	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// Interface methods

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, professional_id, start_time, end_time, status, created_at, updated_at
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) SlotsOverlapping(ctx context.Context, professionalID uuid.UUID, start, end time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, professional_id, start_time, end_time, status, created_at, updated_at
		FROM slots
		WHERE professional_id = $1
		  AND status <> 'cancelled'
		  AND start_time < $3
		  AND end_time > $2
	`, professionalID, start, end)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) AvailableSlotsOverlapping(ctx context.Context, professionalID uuid.UUID, start, end time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, professional_id, start_time, end_time, status, created_at, updated_at
		FROM slots
		WHERE professional_id = $1
		  AND status = 'available'
		  AND start_time < $3
		  AND end_time > $2
	`, professionalID, start, end)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r *PgRepository) AppointmentsOverlapping(ctx context.Context, professionalID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, professional_id, client_id, slot_id, start_time, end_time, price, created_at, updated_at
		FROM appointments
		WHERE professional_id = $1
		  AND start_time < $3
		  AND end_time > $2
	`, professionalID, start, end)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ClientAppointmentsOverlapping(ctx context.Context, clientID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, professional_id, client_id, slot_id, start_time, end_time, price, created_at, updated_at
		FROM appointments
		WHERE client_id = $1
		  AND start_time < $3
		  AND end_time > $2
	`, clientID, start, end)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) BlockedPeriodsOverlapping(ctx context.Context, professionalID uuid.UUID, start, end time.Time) ([]BlockedPeriod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, professional_id, start_time, end_time, reason, allow_override, created_at
		FROM blocked_periods
		WHERE professional_id = $1
		  AND start_time < $3
		  AND end_time > $2
	`, professionalID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BlockedPeriod
	for rows.Next() {
		var b BlockedPeriod
		if err := rows.Scan(&b.ID, &b.ProfessionalID, &b.StartTime, &b.EndTime, &b.Reason, &b.AllowOverride, &b.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (r *PgRepository) CommitBooking(ctx context.Context, a Appointment, slotID uuid.UUID, from, to SlotStatus) (*Appointment, *Slot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	// The compare-and-set goes first; its failure aborts before the
	// appointment row ever exists.
	slot, err := scanSlot(tx.QueryRow(ctx, `
		UPDATE slots
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, professional_id, start_time, end_time, status, created_at, updated_at
	`, slotID, to, from))
	if err != nil {
		return nil, nil, err
	}

	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	appt, err := scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments (id, professional_id, client_id, slot_id, start_time, end_time, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING id, professional_id, client_id, slot_id, start_time, end_time, price, created_at, updated_at
	`, id, a.ProfessionalID, a.ClientID, a.SlotID, a.StartTime, a.EndTime, a.Price))
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return appt, slot, nil
}

func (r *PgRepository) CountInRange(ctx context.Context, professionalID uuid.UUID, start, end time.Time) (RangeCounts, error) {
	var c RangeCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM slots
			 WHERE professional_id = $1 AND start_time < $3 AND end_time > $2),
			(SELECT count(*) FROM appointments
			 WHERE professional_id = $1 AND start_time < $3 AND end_time > $2),
			(SELECT count(*) FROM blocked_periods
			 WHERE professional_id = $1 AND start_time < $3 AND end_time > $2)
	`, professionalID, start, end).Scan(&c.Slots, &c.Appointments, &c.Blocks)
	if err != nil {
		return RangeCounts{}, err
	}
	return c, nil
}
