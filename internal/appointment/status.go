package appointment

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/abhishinde10/healthnexus/internal/auth"
)

var (
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrIneligible        = errors.New("appointment is not eligible for this change")
)

const (
	CancelLeadTime     = 24 * time.Hour
	RescheduleLeadTime = 2 * time.Hour
)

var transitions = map[Status][]Status{
	StatusScheduled:   {StatusConfirmed, StatusCanceled, StatusRescheduled},
	StatusConfirmed:   {StatusInProgress, StatusCanceled, StatusNoShow, StatusRescheduled},
	StatusInProgress:  {StatusCompleted, StatusCanceled},
	StatusRescheduled: {StatusScheduled},
}

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted,
	StatusCanceled, StatusNoShow, StatusRescheduled,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusNoShow
}

// Active statuses hold a provider's time.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed || s == StatusInProgress
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the appointment to the target status and applies the
// consultation timestamps tied to it. On error nothing is modified.
func (a *Appointment) Transition(to Status, now time.Time) error {
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.Status, to)
	}

	switch to {
	case StatusInProgress:
		start := now
		a.Consultation.StartTime = &start
	case StatusCompleted:
		end := now
		a.Consultation.EndTime = &end
		if a.Consultation.StartTime != nil {
			minutes := int(math.Round(end.Sub(*a.Consultation.StartTime).Minutes()))
			a.Consultation.ActualDuration = &minutes
		}
	}

	a.Status = to
	a.UpdatedAt = now
	return nil
}

func (a *Appointment) CanCancel(now time.Time) error {
	return a.leadTimeCheck("cancel", CancelLeadTime, now)
}

func (a *Appointment) CanReschedule(now time.Time) error {
	return a.leadTimeCheck("reschedule", RescheduleLeadTime, now)
}

func (a *Appointment) leadTimeCheck(action string, lead time.Duration, now time.Time) error {
	if a.Status != StatusScheduled && a.Status != StatusConfirmed {
		return fmt.Errorf("%w: cannot %s a %s appointment", ErrIneligible, action, a.Status)
	}
	if a.ScheduledAt.Sub(now) < lead {
		return fmt.Errorf("%w: %s requires at least %s notice", ErrIneligible, action, lead)
	}
	return nil
}

// Cancel moves the appointment to canceled and records who did it. The lead
// time rule applies to every actor except the system.
func (a *Appointment) Cancel(actor auth.Caller, reason string, now time.Time) error {
	eligible := a.CanCancel(now)
	if actor.Role != auth.RoleSystem && eligible != nil {
		return eligible
	}

	if err := a.Transition(StatusCanceled, now); err != nil {
		return err
	}

	c := &Cancellation{
		By:     actor.ID,
		ByRole: actor.Role,
		At:     now,
		Reason: reason,
	}
	if eligible == nil && a.PaymentStatus == PaymentVerified {
		c.RefundEligible = true
		c.RefundAmount = a.Cost.PatientPayment
	}
	a.Cancellation = c
	return nil
}

// Reschedule records the move in the history and runs the two hops
// current -> rescheduled -> scheduled with the new time applied.
func (a *Appointment) Reschedule(newTime time.Time, actor auth.Caller, reason string, now time.Time) error {
	if actor.Role != auth.RoleSystem {
		if err := a.CanReschedule(now); err != nil {
			return err
		}
	}
	if !CanTransition(a.Status, StatusRescheduled) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.Status, StatusRescheduled)
	}

	a.RescheduleHistory = append(a.RescheduleHistory, RescheduleRecord{
		OriginalDateTime: a.ScheduledAt,
		NewDateTime:      newTime,
		By:               actor.ID,
		ByRole:           actor.Role,
		Reason:           reason,
		At:               now,
	})

	if err := a.Transition(StatusRescheduled, now); err != nil {
		return err
	}
	a.ScheduledAt = newTime
	a.Communication.ReminderDelivered = false
	return a.Transition(StatusScheduled, now)
}
