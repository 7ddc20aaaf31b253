package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/abhishinde10/healthnexus/internal/auth"
	"github.com/abhishinde10/healthnexus/internal/catalog"
	"github.com/abhishinde10/healthnexus/internal/metrics"
	"github.com/abhishinde10/healthnexus/internal/payment"
	redisclient "github.com/abhishinde10/healthnexus/internal/redis"
)

var (
	ErrForbidden           = errors.New("not allowed to act on this appointment")
	ErrInvalidBooking      = errors.New("invalid booking")
	ErrProviderUnavailable = errors.New("provider already has an appointment at that time")
	ErrProviderBusy        = errors.New("provider calendar is being updated, please retry")
	ErrPaymentDeclined     = errors.New("payment declined")
)

// ListingSource resolves catalog listings for pricing and eager loading.
type ListingSource interface {
	Get(ctx context.Context, id uuid.UUID) (*catalog.Listing, error)
}

// Evictor drops cached views matching key patterns. The HTTP layer marks
// its own writes stale; background writers report theirs through this.
type Evictor interface {
	Evict(ctx context.Context, patterns ...string)
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	listings ListingSource
	payments payment.Verifier
	events   Publisher
	evictor  Evictor
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, listings ListingSource, payments payment.Verifier, events Publisher, log zerolog.Logger) *Service {
	if payments == nil {
		payments = payment.Disabled{}
	}
	return &Service{
		repo:     repo,
		locker:   locker,
		listings: listings,
		payments: payments,
		events:   events,
		log:      log.With().Str("component", "appointment").Logger(),
		now:      time.Now,
	}
}

// WithEvictor makes the maintenance operations evict the cached views of
// every appointment they change.
func (s *Service) WithEvictor(e Evictor) *Service {
	s.evictor = e
	return s
}

// CachePatterns lists the cache key patterns that can hold a view of appt:
// its detail and the calendars of both participants.
func CachePatterns(appt *Appointment) []string {
	return []string{
		"appointment:" + appt.ID.String() + ":*",
		"appointments:" + appt.PatientID.String() + ":*",
		"appointments:" + appt.ProviderID.String() + ":*",
		"appointments:all:*",
	}
}

func (s *Service) evict(ctx context.Context, appt *Appointment) {
	if s.evictor != nil {
		s.evictor.Evict(ctx, CachePatterns(appt)...)
	}
}

type BookingRequest struct {
	PatientID        uuid.UUID
	ProviderID       uuid.UUID
	ServiceID        *uuid.UUID
	ScheduledAt      time.Time
	DurationMinutes  int
	Type             Type
	Priority         Priority
	BasePrice        float64
	Charges          []Charge
	InsuranceCovered float64
	Currency         string
	ChiefComplaint   string
	PaymentReference string
	NotifyPatient    bool
	NotifyProvider   bool
}

// Book creates an appointment in the scheduled state. The provider's
// calendar is locked while the overlap check and the insert run.
func (s *Service) Book(ctx context.Context, actor auth.Caller, req BookingRequest) (*Appointment, error) {
	switch {
	case actor.Role == auth.RolePatient:
		if req.PatientID != uuid.Nil && req.PatientID != actor.ID {
			return nil, ErrForbidden
		}
		req.PatientID = actor.ID
	case actor.IsProvider():
		if req.ProviderID != uuid.Nil && req.ProviderID != actor.ID {
			return nil, ErrForbidden
		}
		req.ProviderID = actor.ID
	case actor.IsPrivileged():
	default:
		return nil, ErrForbidden
	}

	now := s.now()
	appt, err := s.newAppointment(ctx, req, now)
	if err != nil {
		return nil, err
	}

	if req.PaymentReference != "" {
		result, err := s.payments.Verify(ctx, req.PaymentReference, appt.Cost.PatientPayment)
		switch {
		case errors.Is(err, payment.ErrUnavailable):
			s.log.Warn().Err(err).Str("reference", req.PaymentReference).Msg("payment not verified, booking left pending")
			appt.PaymentStatus = PaymentPending
		case err != nil:
			return nil, fmt.Errorf("verify payment: %w", err)
		case result == payment.Declined:
			return nil, ErrPaymentDeclined
		default:
			appt.PaymentStatus = PaymentVerified
		}
	}

	// Paid bookings are inserted already confirmed.
	bookedAs := appt.Status
	if appt.PaymentStatus == PaymentVerified {
		if err := appt.Transition(StatusConfirmed, now); err != nil {
			return nil, err
		}
	}

	err = s.locker.WithLock(ctx, providerLockKey(appt.ProviderID), func(lockCtx context.Context) error {
		clashes, err := s.repo.FindOverlapping(lockCtx, appt.ProviderID, appt.ScheduledAt, appt.EndsAt())
		if err != nil {
			return fmt.Errorf("check provider calendar: %w", err)
		}
		if len(clashes) > 0 {
			return ErrProviderUnavailable
		}
		if err := s.repo.Create(lockCtx, appt); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrHeld) {
			return nil, ErrProviderBusy
		}
		return nil, err
	}

	s.logEvent(ctx, appt, EventAppointmentCreated, map[string]any{
		"booked_by":      actor.ID.String(),
		"payment_status": appt.PaymentStatus,
		"total_amount":   appt.Cost.TotalAmount,
	})

	if appt.Status != bookedAs {
		s.recordTransition(ctx, appt, bookedAs, auth.System, "payment verified")
	}

	return appt, nil
}

func (s *Service) newAppointment(ctx context.Context, req BookingRequest, now time.Time) (*Appointment, error) {
	if req.PatientID == uuid.Nil || req.ProviderID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient and provider are required", ErrInvalidBooking)
	}
	if req.PatientID == req.ProviderID {
		return nil, fmt.Errorf("%w: patient and provider must differ", ErrInvalidBooking)
	}
	if !req.ScheduledAt.After(now) {
		return nil, fmt.Errorf("%w: appointment must be in the future", ErrInvalidBooking)
	}

	cost := Cost{
		BasePrice:         req.BasePrice,
		AdditionalCharges: req.Charges,
		InsuranceCovered:  req.InsuranceCovered,
		Currency:          req.Currency,
	}
	duration := req.DurationMinutes

	if req.ServiceID != nil {
		if s.listings == nil {
			return nil, fmt.Errorf("%w: service listings are not available", ErrInvalidBooking)
		}
		l, err := s.listings.Get(ctx, *req.ServiceID)
		if err != nil {
			if errors.Is(err, catalog.ErrListingNotFound) {
				return nil, fmt.Errorf("%w: %v", ErrInvalidBooking, err)
			}
			return nil, fmt.Errorf("load listing: %w", err)
		}
		if !l.Active {
			return nil, fmt.Errorf("%w: service is not active", ErrInvalidBooking)
		}
		if l.ProviderID != req.ProviderID {
			return nil, fmt.Errorf("%w: service is not offered by this provider", ErrInvalidBooking)
		}
		cost.BasePrice = l.BasePrice
		cost.Currency = l.Currency
		if duration == 0 {
			duration = l.DurationMinutes
		}
	}

	if duration == 0 {
		duration = DefaultDurationMinutes
	}
	if duration < MinDurationMinutes || duration > MaxDurationMinutes {
		return nil, fmt.Errorf("%w: duration must be between %d and %d minutes", ErrInvalidBooking, MinDurationMinutes, MaxDurationMinutes)
	}
	if cost.Currency == "" {
		cost.Currency = "USD"
	}
	if err := cost.Recalculate(); err != nil {
		return nil, err
	}

	typ := req.Type
	if typ == "" {
		typ = TypeConsultation
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidBooking, typ)
	}
	priority := req.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidBooking, priority)
	}

	return &Appointment{
		ID:               uuid.New(),
		PatientID:        req.PatientID,
		ProviderID:       req.ProviderID,
		ServiceID:        req.ServiceID,
		ScheduledAt:      req.ScheduledAt.UTC(),
		DurationMinutes:  duration,
		Type:             typ,
		Priority:         priority,
		Status:           StatusScheduled,
		Cost:             cost,
		PaymentStatus:    PaymentNone,
		PaymentReference: req.PaymentReference,
		Consultation:     Consultation{ChiefComplaint: strings.TrimSpace(req.ChiefComplaint)},
		Communication: Communication{
			NotifyPatient:  req.NotifyPatient,
			NotifyProvider: req.NotifyProvider,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

type GetOptions struct {
	IncludeService bool
}

func (s *Service) Get(ctx context.Context, actor auth.Caller, id uuid.UUID, opts GetOptions) (*Detail, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if err := authorizeParticipant(actor, appt); err != nil {
		return nil, err
	}

	return s.detail(ctx, actor, appt, opts.IncludeService), nil
}

// List scopes the filter to the caller: patients see their own bookings,
// providers their own calendar.
func (s *Service) List(ctx context.Context, actor auth.Caller, f ListFilter) ([]Detail, error) {
	switch {
	case actor.Role == auth.RolePatient:
		f.PatientID = &actor.ID
	case actor.IsProvider():
		f.ProviderID = &actor.ID
	case actor.IsPrivileged():
	default:
		return nil, ErrForbidden
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidBooking, f.Status)
	}

	if f.Limit <= 0 {
		f.Limit = 20 // default
	}
	if f.Limit > 100 {
		f.Limit = 100 // max
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	appts, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	result := make([]Detail, 0, len(appts))
	for i := range appts {
		result = append(result, *s.detail(ctx, actor, &appts[i], f.IncludeService))
	}
	return result, nil
}

func (s *Service) detail(ctx context.Context, actor auth.Caller, appt *Appointment, includeService bool) *Detail {
	d := &Detail{Appointment: *appt.VisibleTo(actor)}
	if includeService && appt.ServiceID != nil && s.listings != nil {
		l, err := s.listings.Get(ctx, *appt.ServiceID)
		if err != nil {
			s.log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to load listing")
		} else {
			d.Service = l
		}
	}
	return d
}

// VisibleTo returns the appointment as the caller may see it. Patients get a
// copy without private notes.
func (a *Appointment) VisibleTo(actor auth.Caller) *Appointment {
	if actor.Role != auth.RolePatient {
		return a
	}
	cp := *a
	cp.Notes = publicNotes(a.Notes)
	return &cp
}

func publicNotes(notes []Note) []Note {
	var out []Note
	for _, n := range notes {
		if !n.Private {
			out = append(out, n)
		}
	}
	return out
}

// Transition applies a status change requested through the generic
// endpoint. Cancel and reschedule carry extra data and have their own
// operations.
func (s *Service) Transition(ctx context.Context, actor auth.Caller, id uuid.UUID, to Status, reason string) (*Appointment, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, to)
	}
	switch to {
	case StatusCanceled:
		return s.Cancel(ctx, actor, id, reason)
	case StatusRescheduled:
		return nil, fmt.Errorf("%w: use the reschedule operation", ErrIllegalTransition)
	}

	var from Status
	appt, err := s.mutate(ctx, id, func(a *Appointment, now time.Time) error {
		if err := authorizeProvider(actor, a); err != nil {
			return err
		}
		from = a.Status
		return a.Transition(to, now)
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(ctx, appt, from, actor, reason)
	return appt, nil
}

func (s *Service) Cancel(ctx context.Context, actor auth.Caller, id uuid.UUID, reason string) (*Appointment, error) {
	var from Status
	appt, err := s.mutate(ctx, id, func(a *Appointment, now time.Time) error {
		if err := authorizeParticipant(actor, a); err != nil {
			return err
		}
		from = a.Status
		return a.Cancel(actor, reason, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.AppointmentTransitions.WithLabelValues(string(from), string(StatusCanceled)).Inc()
	s.logEvent(ctx, appt, EventAppointmentCanceled, map[string]any{
		"from":            from,
		"by":              actor.ID.String(),
		"by_role":         actor.Role,
		"reason":          reason,
		"refund_eligible": appt.Cancellation.RefundEligible,
		"refund_amount":   appt.Cancellation.RefundAmount,
	})
	return appt, nil
}

// Reschedule moves the appointment to newTime, re-checking the provider's
// calendar under the same lock bookings use.
func (s *Service) Reschedule(ctx context.Context, actor auth.Caller, id uuid.UUID, newTime time.Time, reason string) (*Appointment, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if err := authorizeParticipant(actor, current); err != nil {
		return nil, err
	}
	if !newTime.After(s.now()) {
		return nil, fmt.Errorf("%w: new time must be in the future", ErrInvalidBooking)
	}
	newTime = newTime.UTC()

	var (
		appt *Appointment
		from Status
		orig time.Time
	)
	err = s.locker.WithLock(ctx, providerLockKey(current.ProviderID), func(lockCtx context.Context) error {
		end := newTime.Add(time.Duration(current.DurationMinutes) * time.Minute)
		clashes, err := s.repo.FindOverlapping(lockCtx, current.ProviderID, newTime, end)
		if err != nil {
			return fmt.Errorf("check provider calendar: %w", err)
		}
		for _, c := range clashes {
			if c.ID != id {
				return ErrProviderUnavailable
			}
		}

		appt, err = s.mutate(lockCtx, id, func(a *Appointment, now time.Time) error {
			from = a.Status
			orig = a.ScheduledAt
			return a.Reschedule(newTime, actor, reason, now)
		})
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrHeld) {
			return nil, ErrProviderBusy
		}
		return nil, err
	}

	metrics.AppointmentTransitions.WithLabelValues(string(from), string(StatusRescheduled)).Inc()
	metrics.AppointmentTransitions.WithLabelValues(string(StatusRescheduled), string(StatusScheduled)).Inc()
	s.logEvent(ctx, appt, EventAppointmentRescheduled, map[string]any{
		"from":          from,
		"original_time": orig,
		"new_time":      newTime,
		"by":            actor.ID.String(),
		"reason":        reason,
	})
	return appt, nil
}

// CostUpdate carries only the inputs to change. Derived amounts are always
// recomputed.
type CostUpdate struct {
	BasePrice         *float64
	AdditionalCharges *[]Charge
	InsuranceCovered  *float64
}

func (s *Service) UpdateCost(ctx context.Context, actor auth.Caller, id uuid.UUID, upd CostUpdate) (*Appointment, error) {
	appt, err := s.mutate(ctx, id, func(a *Appointment, now time.Time) error {
		if err := authorizeProvider(actor, a); err != nil {
			return err
		}
		if a.Status == StatusCanceled || a.Status == StatusNoShow {
			return fmt.Errorf("%w: cost of a %s appointment is frozen", ErrIneligible, a.Status)
		}

		cost := a.Cost
		if upd.BasePrice != nil {
			cost.BasePrice = *upd.BasePrice
		}
		if upd.AdditionalCharges != nil {
			cost.AdditionalCharges = append([]Charge(nil), (*upd.AdditionalCharges)...)
		}
		if upd.InsuranceCovered != nil {
			cost.InsuranceCovered = *upd.InsuranceCovered
		}
		if err := cost.Recalculate(); err != nil {
			return err
		}
		a.Cost = cost
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, appt, EventAppointmentUpdated, map[string]any{
		"field":           "cost",
		"total_amount":    appt.Cost.TotalAmount,
		"patient_payment": appt.Cost.PatientPayment,
	})
	return appt, nil
}

type ConsultationUpdate struct {
	ChiefComplaint *string
	Symptoms       *[]string
	Diagnosis      *string
	TreatmentPlan  *string
	ClinicalNotes  *string
	Prescriptions  *[]Prescription
	FollowUp       *FollowUp
	Referrals      *[]Referral
	LabOrders      *[]LabOrder
	VitalSigns     *VitalSigns
}

// UpdateConsultation edits the clinical record. Start, end and duration are
// owned by the state machine and cannot be set here.
func (s *Service) UpdateConsultation(ctx context.Context, actor auth.Caller, id uuid.UUID, upd ConsultationUpdate) (*Appointment, error) {
	appt, err := s.mutate(ctx, id, func(a *Appointment, now time.Time) error {
		if err := authorizeProvider(actor, a); err != nil {
			return err
		}
		switch a.Status {
		case StatusConfirmed, StatusInProgress, StatusCompleted:
		default:
			return fmt.Errorf("%w: consultation cannot be recorded on a %s appointment", ErrIneligible, a.Status)
		}

		c := &a.Consultation
		if upd.ChiefComplaint != nil {
			c.ChiefComplaint = *upd.ChiefComplaint
		}
		if upd.Symptoms != nil {
			c.Symptoms = *upd.Symptoms
		}
		if upd.Diagnosis != nil {
			c.Diagnosis = *upd.Diagnosis
		}
		if upd.TreatmentPlan != nil {
			c.TreatmentPlan = *upd.TreatmentPlan
		}
		if upd.ClinicalNotes != nil {
			c.ClinicalNotes = *upd.ClinicalNotes
		}
		if upd.Prescriptions != nil {
			c.Prescriptions = *upd.Prescriptions
		}
		if upd.FollowUp != nil {
			if upd.FollowUp.Required && upd.FollowUp.Date != nil && !upd.FollowUp.Date.After(a.ScheduledAt) {
				return fmt.Errorf("%w: follow-up date must be after the appointment", ErrInvalidBooking)
			}
			c.FollowUp = *upd.FollowUp
		}
		if upd.Referrals != nil {
			c.Referrals = *upd.Referrals
		}
		if upd.LabOrders != nil {
			c.LabOrders = *upd.LabOrders
		}
		if upd.VitalSigns != nil {
			vs := *upd.VitalSigns
			c.VitalSigns = &vs
		}
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, appt, EventAppointmentUpdated, map[string]any{"field": "consultation"})
	return appt, nil
}

// AddNote appends to the note log. Patient notes are always visible to both
// sides.
func (s *Service) AddNote(ctx context.Context, actor auth.Caller, id uuid.UUID, content string, private bool) (*Appointment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: note content is required", ErrInvalidBooking)
	}
	if actor.Role == auth.RolePatient {
		private = false
	}

	appt, err := s.mutate(ctx, id, func(a *Appointment, now time.Time) error {
		if err := authorizeParticipant(actor, a); err != nil {
			return err
		}
		a.Notes = append(a.Notes, Note{
			AuthorID:   actor.ID,
			AuthorRole: actor.Role,
			Content:    content,
			Private:    private,
			At:         now,
		})
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, appt, EventAppointmentUpdated, map[string]any{"field": "notes", "private": private})
	if actor.Role == auth.RolePatient {
		appt.Notes = publicNotes(appt.Notes)
	}
	return appt, nil
}

// SendDueReminders publishes a reminder for every open appointment starting
// within lead and records each attempt. It returns how many were handed off.
func (s *Service) SendDueReminders(ctx context.Context, lead time.Duration) (int, error) {
	now := s.now()
	due, err := s.repo.FindDueReminders(ctx, now, now.Add(lead), 100)
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	sent := 0
	for i := range due {
		appt := &due[i]

		attempt := ReminderAttempt{SentAt: now, Channel: "event", Success: true}
		if s.events != nil {
			ev := newEvent(EventAppointmentReminder, appt, now, map[string]any{
				"starts_in_minutes": int(appt.ScheduledAt.Sub(now).Minutes()),
			})
			if err := s.events.Publish(ctx, ev); err != nil {
				attempt.Success = false
				attempt.Error = err.Error()
			}
		}

		appt.Communication.Reminders = append(appt.Communication.Reminders, attempt)
		if attempt.Success {
			appt.Communication.ReminderDelivered = true
			sent++
		}
		appt.UpdatedAt = now

		if err := s.repo.Update(ctx, appt); err != nil {
			s.log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to record reminder attempt")
			continue
		}
		s.evict(ctx, appt)
	}

	return sent, nil
}

// ExpireStale closes appointments whose time has passed: confirmed ones
// become no-shows and never-confirmed ones are canceled by the system.
func (s *Service) ExpireStale(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := s.now().Add(-grace)
	expired := 0

	for _, status := range []Status{StatusConfirmed, StatusScheduled} {
		stale, err := s.repo.FindStale(ctx, status, cutoff, 100)
		if err != nil {
			return expired, fmt.Errorf("find stale %s appointments: %w", status, err)
		}

		for _, candidate := range stale {
			var (
				appt *Appointment
				err  error
			)
			if status == StatusConfirmed {
				appt, err = s.Transition(ctx, auth.System, candidate.ID, StatusNoShow, "patient did not attend")
			} else {
				appt, err = s.Cancel(ctx, auth.System, candidate.ID, "not confirmed before the appointment time")
			}
			if err != nil {
				s.log.Warn().Err(err).Str("appointment_id", candidate.ID.String()).Msg("failed to expire appointment")
				continue
			}
			s.evict(ctx, appt)
			expired++
		}
	}

	return expired, nil
}

// mutate loads the appointment, applies fn and persists it with the version
// check. Changes made by a failing fn are discarded.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(a *Appointment, now time.Time) error) (*Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if err := fn(appt, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, fmt.Errorf("save appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) recordTransition(ctx context.Context, appt *Appointment, from Status, actor auth.Caller, reason string) {
	metrics.AppointmentTransitions.WithLabelValues(string(from), string(appt.Status)).Inc()
	payload := map[string]any{
		"from":    from,
		"to":      appt.Status,
		"by":      actor.ID.String(),
		"by_role": actor.Role,
	}
	if reason != "" {
		payload["reason"] = reason
	}
	if d := appt.Consultation.ActualDuration; d != nil && appt.Status == StatusCompleted {
		payload["actual_duration"] = *d
	}
	s.logEvent(ctx, appt, EventAppointmentTransitioned, payload)
}

func (s *Service) logEvent(ctx context.Context, appt *Appointment, eventType string, payload map[string]any) {
	now := s.now()

	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appt.ID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     now,
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Str("appointment_id", appt.ID.String()).Msg("failed to insert event log")
	}

	if s.events != nil {
		if err := s.events.Publish(ctx, newEvent(eventType, appt, now, payload)); err != nil {
			s.log.Warn().Err(err).Str("event", eventType).Str("appointment_id", appt.ID.String()).Msg("failed to publish event")
		}
	}
}

func providerLockKey(id uuid.UUID) string {
	return "provider:" + id.String()
}

// authorizeParticipant allows the patient, the provider and privileged
// callers.
func authorizeParticipant(actor auth.Caller, a *Appointment) error {
	switch {
	case actor.IsPrivileged():
		return nil
	case actor.Role == auth.RolePatient && actor.ID == a.PatientID:
		return nil
	case actor.IsProvider() && actor.ID == a.ProviderID:
		return nil
	}
	return ErrForbidden
}

// authorizeProvider allows the appointment's provider and privileged callers.
func authorizeProvider(actor auth.Caller, a *Appointment) error {
	if actor.IsPrivileged() || (actor.IsProvider() && actor.ID == a.ProviderID) {
		return nil
	}
	return ErrForbidden
}
