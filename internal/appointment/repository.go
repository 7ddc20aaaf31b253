package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrConcurrentUpdate    = errors.New("appointment was modified concurrently")
)

type ListFilter struct {
	PatientID  *uuid.UUID
	ProviderID *uuid.UUID
	Status     Status
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
	// IncludeService loads each appointment's listing. Off by default.
	IncludeService bool
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, f ListFilter) ([]Appointment, error)

	// Update persists a only if the stored version still equals a.Version,
	// then increments a.Version. A mismatch is ErrConcurrentUpdate.
	Update(ctx context.Context, a *Appointment) error

	// Active appointments of the provider intersecting [start, end).
	FindOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time) ([]Appointment, error)

	// Worker scans
	FindDueReminders(ctx context.Context, from, to time.Time, limit int) ([]Appointment, error)
	FindStale(ctx context.Context, status Status, before time.Time, limit int) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
