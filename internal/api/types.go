package api

import (
	"time"

	"github.com/abhishinde10/healthnexus/internal/appointment"
)

type ChargeRequest struct {
	Description string  `json:"description" validate:"required,max=200"`
	Amount      float64 `json:"amount" validate:"gte=0"`
}

type CreateAppointmentRequest struct {
	PatientID        string          `json:"patient_id,omitempty" validate:"omitempty,uuid"`
	ProviderID       string          `json:"provider_id,omitempty" validate:"omitempty,uuid"`
	ServiceID        string          `json:"service_id,omitempty" validate:"omitempty,uuid"`
	ScheduledAt      time.Time       `json:"scheduled_at" validate:"required"`
	DurationMinutes  int             `json:"duration_minutes,omitempty" validate:"omitempty,min=15,max=480"`
	Type             string          `json:"type,omitempty" validate:"omitempty,oneof=consultation follow-up emergency routine-checkup home-visit telemedicine"`
	Priority         string          `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	BasePrice        float64         `json:"base_price" validate:"gte=0"`
	Charges          []ChargeRequest `json:"additional_charges,omitempty" validate:"omitempty,dive"`
	InsuranceCovered float64         `json:"insurance_covered" validate:"gte=0"`
	Currency         string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	ChiefComplaint   string          `json:"chief_complaint,omitempty" validate:"max=2000"`
	PaymentReference string          `json:"payment_reference,omitempty" validate:"max=128"`
	NotifyPatient    bool            `json:"notify_patient"`
	NotifyProvider   bool            `json:"notify_provider"`
}

type TransitionRequest struct {
	Status string `json:"status" validate:"required,oneof=scheduled confirmed in-progress completed canceled no-show rescheduled"`
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type ReasonRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type RescheduleRequest struct {
	NewDateTime time.Time `json:"new_date_time" validate:"required"`
	Reason      string    `json:"reason,omitempty" validate:"max=500"`
}

type UpdateCostRequest struct {
	BasePrice         *float64         `json:"base_price,omitempty" validate:"omitempty,gte=0"`
	AdditionalCharges *[]ChargeRequest `json:"additional_charges,omitempty" validate:"omitempty,dive"`
	InsuranceCovered  *float64         `json:"insurance_covered,omitempty" validate:"omitempty,gte=0"`
}

type UpdateConsultationRequest struct {
	ChiefComplaint *string                     `json:"chief_complaint,omitempty" validate:"omitempty,max=2000"`
	Symptoms       *[]string                   `json:"symptoms,omitempty"`
	Diagnosis      *string                     `json:"diagnosis,omitempty" validate:"omitempty,max=2000"`
	TreatmentPlan  *string                     `json:"treatment_plan,omitempty" validate:"omitempty,max=4000"`
	ClinicalNotes  *string                     `json:"clinical_notes,omitempty" validate:"omitempty,max=8000"`
	Prescriptions  *[]appointment.Prescription `json:"prescriptions,omitempty"`
	FollowUp       *appointment.FollowUp       `json:"follow_up,omitempty"`
	Referrals      *[]appointment.Referral     `json:"referrals,omitempty"`
	LabOrders      *[]appointment.LabOrder     `json:"lab_orders,omitempty"`
	VitalSigns     *appointment.VitalSigns     `json:"vital_signs,omitempty"`
}

type AddNoteRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
	Private bool   `json:"private"`
}

type CreateServiceRequest struct {
	ProviderID      string  `json:"provider_id,omitempty" validate:"omitempty,uuid"`
	Name            string  `json:"name" validate:"required,max=200"`
	Category        string  `json:"category" validate:"required,max=100"`
	Description     string  `json:"description,omitempty" validate:"max=4000"`
	BasePrice       float64 `json:"base_price" validate:"gte=0"`
	Currency        string  `json:"currency,omitempty" validate:"omitempty,len=3"`
	DurationMinutes int     `json:"duration_minutes,omitempty" validate:"omitempty,min=15,max=480"`
}

type UpdateServiceRequest struct {
	Name            *string  `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Category        *string  `json:"category,omitempty" validate:"omitempty,min=1,max=100"`
	Description     *string  `json:"description,omitempty" validate:"omitempty,max=4000"`
	BasePrice       *float64 `json:"base_price,omitempty" validate:"omitempty,gte=0"`
	DurationMinutes *int     `json:"duration_minutes,omitempty" validate:"omitempty,min=15,max=480"`
	Active          *bool    `json:"active,omitempty"`
}

type CompactRequest struct {
	Table string `json:"table" validate:"required"`
}

type CleanupRequest struct {
	Table         string `json:"table" validate:"required"`
	OlderThanDays int    `json:"older_than_days" validate:"required,min=1"`
}

type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Count  int `json:"count"`
	Offset int `json:"offset"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toCharges(in []ChargeRequest) []appointment.Charge {
	out := make([]appointment.Charge, 0, len(in))
	for _, c := range in {
		out = append(out, appointment.Charge{Description: c.Description, Amount: c.Amount})
	}
	return out
}
