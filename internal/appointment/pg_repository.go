package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository keeps each appointment as a JSONB document next to the
// projection columns used for filtering, ordering and the version check.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		doc     []byte
		version int
	)
	if err := row.Scan(&doc, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	var a Appointment
	if err := json.Unmarshal(doc, &a); err != nil {
		return nil, fmt.Errorf("decode appointment document: %w", err)
	}
	a.Version = version
	return &a, nil
}

func collect(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

var activeStatuses = []string{string(StatusScheduled), string(StatusConfirmed), string(StatusInProgress)}

// Interface methods

func (r *PgRepository) Create(ctx context.Context, a *Appointment) error {
	a.Version = 1
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode appointment: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO appointments (
			id, patient_id, provider_id, service_id, status, scheduled_at, ends_at,
			reminder_delivered, version, doc, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.ID, a.PatientID, a.ProviderID, a.ServiceID, a.Status, a.ScheduledAt, a.EndsAt(),
		a.Communication.ReminderDelivered, a.Version, doc, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT doc, version FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) List(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.ProviderID != nil {
		add("provider_id = $%d", *f.ProviderID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.From != nil {
		add("scheduled_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("scheduled_at < $%d", *f.To)
	}

	q := `SELECT doc, version FROM appointments`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY scheduled_at LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	return collect(rows)
}

func (r *PgRepository) Update(ctx context.Context, a *Appointment) error {
	expected := a.Version
	a.Version = expected + 1
	doc, err := json.Marshal(a)
	if err != nil {
		a.Version = expected
		return fmt.Errorf("encode appointment: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $3,
		    scheduled_at = $4,
		    ends_at = $5,
		    reminder_delivered = $6,
		    doc = $7,
		    version = version + 1,
		    updated_at = $8
		WHERE id = $1
		  AND version = $2
	`, a.ID, expected, a.Status, a.ScheduledAt, a.EndsAt(), a.Communication.ReminderDelivered, doc, a.UpdatedAt)
	if err != nil {
		a.Version = expected
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		a.Version = expected
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check appointment: %w", err)
		}
		if !exists {
			return ErrAppointmentNotFound
		}
		return ErrConcurrentUpdate
	}
	return nil
}

func (r *PgRepository) FindOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT doc, version
		FROM appointments
		WHERE provider_id = $1
		  AND status = ANY($2)
		  AND scheduled_at < $4
		  AND ends_at > $3
	`, providerID, activeStatuses, start, end)
	if err != nil {
		return nil, fmt.Errorf("query overlapping appointments: %w", err)
	}
	return collect(rows)
}

func (r *PgRepository) FindDueReminders(ctx context.Context, from, to time.Time, limit int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT doc, version
		FROM appointments
		WHERE status IN ('scheduled', 'confirmed')
		  AND NOT reminder_delivered
		  AND scheduled_at >= $1
		  AND scheduled_at < $2
		ORDER BY scheduled_at
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	return collect(rows)
}

func (r *PgRepository) FindStale(ctx context.Context, status Status, before time.Time, limit int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT doc, version
		FROM appointments
		WHERE status = $1
		  AND ends_at < $2
		ORDER BY ends_at
		LIMIT $3
	`, status, before, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale appointments: %w", err)
	}
	return collect(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
