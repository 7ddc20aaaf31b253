package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/abhishinde10/healthnexus/internal/auth"
	"github.com/abhishinde10/healthnexus/internal/catalog"
)

type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusInProgress  Status = "in-progress"
	StatusCompleted   Status = "completed"
	StatusCanceled    Status = "canceled"
	StatusNoShow      Status = "no-show"
	StatusRescheduled Status = "rescheduled"
)

type Type string

const (
	TypeConsultation   Type = "consultation"
	TypeFollowUp       Type = "follow-up"
	TypeEmergency      Type = "emergency"
	TypeRoutineCheckup Type = "routine-checkup"
	TypeHomeVisit      Type = "home-visit"
	TypeTelemedicine   Type = "telemedicine"
)

func (t Type) Valid() bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeEmergency, TypeRoutineCheckup, TypeHomeVisit, TypeTelemedicine:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentNone     PaymentStatus = "none"
	PaymentPending  PaymentStatus = "pending"
	PaymentVerified PaymentStatus = "verified"
)

const (
	MinDurationMinutes     = 15
	MaxDurationMinutes     = 480
	DefaultDurationMinutes = 30
)

type Charge struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// Cost holds the billing inputs and the two derived amounts. TotalAmount and
// PatientPayment are only ever written by Recalculate.
type Cost struct {
	BasePrice         float64  `json:"base_price"`
	AdditionalCharges []Charge `json:"additional_charges"`
	InsuranceCovered  float64  `json:"insurance_covered"`
	TotalAmount       float64  `json:"total_amount"`
	PatientPayment    float64  `json:"patient_payment"`
	Currency          string   `json:"currency"`
}

type Prescription struct {
	Medication   string `json:"medication"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions,omitempty"`
}

type FollowUp struct {
	Required bool       `json:"required"`
	Date     *time.Time `json:"date,omitempty"`
	Notes    string     `json:"notes,omitempty"`
}

type Referral struct {
	Specialty string `json:"specialty"`
	Reason    string `json:"reason"`
	Urgency   string `json:"urgency,omitempty"`
}

type LabOrder struct {
	Test   string `json:"test"`
	Reason string `json:"reason,omitempty"`
	Urgent bool   `json:"urgent"`
}

type VitalSigns struct {
	BloodPressure    string  `json:"blood_pressure,omitempty"`
	HeartRate        int     `json:"heart_rate,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	RespiratoryRate  int     `json:"respiratory_rate,omitempty"`
	OxygenSaturation int     `json:"oxygen_saturation,omitempty"`
	WeightKg         float64 `json:"weight_kg,omitempty"`
	HeightCm         float64 `json:"height_cm,omitempty"`
}

type Consultation struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	// ActualDuration is in minutes and stays nil when the visit never started.
	ActualDuration *int `json:"actual_duration,omitempty"`

	ChiefComplaint string   `json:"chief_complaint,omitempty"`
	Symptoms       []string `json:"symptoms,omitempty"`
	Diagnosis      string   `json:"diagnosis,omitempty"`
	TreatmentPlan  string   `json:"treatment_plan,omitempty"`
	ClinicalNotes  string   `json:"clinical_notes,omitempty"`

	Prescriptions []Prescription `json:"prescriptions,omitempty"`
	FollowUp      FollowUp       `json:"follow_up"`
	Referrals     []Referral     `json:"referrals,omitempty"`
	LabOrders     []LabOrder     `json:"lab_orders,omitempty"`
	VitalSigns    *VitalSigns    `json:"vital_signs,omitempty"`
}

type ReminderAttempt struct {
	SentAt  time.Time `json:"sent_at"`
	Channel string    `json:"channel"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

type Communication struct {
	NotifyPatient     bool              `json:"notify_patient"`
	NotifyProvider    bool              `json:"notify_provider"`
	Reminders         []ReminderAttempt `json:"reminders,omitempty"`
	ReminderDelivered bool              `json:"reminder_delivered"`
}

type Cancellation struct {
	By             uuid.UUID `json:"by"`
	ByRole         auth.Role `json:"by_role"`
	At             time.Time `json:"at"`
	Reason         string    `json:"reason"`
	RefundEligible bool      `json:"refund_eligible"`
	RefundAmount   float64   `json:"refund_amount"`
}

type RescheduleRecord struct {
	OriginalDateTime time.Time `json:"original_date_time"`
	NewDateTime      time.Time `json:"new_date_time"`
	By               uuid.UUID `json:"by"`
	ByRole           auth.Role `json:"by_role"`
	Reason           string    `json:"reason,omitempty"`
	At               time.Time `json:"at"`
}

type Note struct {
	AuthorID   uuid.UUID `json:"author_id"`
	AuthorRole auth.Role `json:"author_role"`
	Content    string    `json:"content"`
	Private    bool      `json:"private"`
	At         time.Time `json:"at"`
}

type Appointment struct {
	ID         uuid.UUID  `json:"id"`
	PatientID  uuid.UUID  `json:"patient_id"`
	ProviderID uuid.UUID  `json:"provider_id"`
	ServiceID  *uuid.UUID `json:"service_id,omitempty"`

	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`

	Type     Type     `json:"type"`
	Priority Priority `json:"priority"`
	Status   Status   `json:"status"`

	Cost             Cost          `json:"cost"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	PaymentReference string        `json:"payment_reference,omitempty"`

	Consultation      Consultation       `json:"consultation"`
	Communication     Communication      `json:"communication"`
	Cancellation      *Cancellation      `json:"cancellation,omitempty"`
	RescheduleHistory []RescheduleRecord `json:"reschedule_history,omitempty"`
	Notes             []Note             `json:"notes,omitempty"`

	// Version is bumped by every successful update and checked by the
	// repository so concurrent writers cannot overwrite each other.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EndsAt is the end of the booked interval.
func (a *Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps reports whether the booked intervals intersect.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.ScheduledAt.Before(end) && a.EndsAt().After(start)
}

// Detail is an appointment with its related listing loaded on request.
type Detail struct {
	Appointment
	Service *catalog.Listing `json:"service,omitempty"`
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
