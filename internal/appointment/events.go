package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventAppointmentCreated      = "appointment.created"
	EventAppointmentUpdated      = "appointment.updated"
	EventAppointmentTransitioned = "appointment.transitioned"
	EventAppointmentCanceled     = "appointment.canceled"
	EventAppointmentRescheduled  = "appointment.rescheduled"
	EventAppointmentReminder     = "appointment.reminder"
)

// Event is what the notification collaborator consumes.
type Event struct {
	Type          string         `json:"type"`
	AppointmentID uuid.UUID      `json:"appointment_id"`
	PatientID     uuid.UUID      `json:"patient_id"`
	ProviderID    uuid.UUID      `json:"provider_id"`
	Status        Status         `json:"status"`
	ScheduledAt   time.Time      `json:"scheduled_at"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Payload       map[string]any `json:"payload,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

func newEvent(eventType string, a *Appointment, now time.Time, payload map[string]any) Event {
	return Event{
		Type:          eventType,
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		ProviderID:    a.ProviderID,
		Status:        a.Status,
		ScheduledAt:   a.ScheduledAt,
		OccurredAt:    now,
		Payload:       payload,
	}
}
