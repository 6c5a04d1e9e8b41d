// Package appointments holds the appointment state machine and the booking service.
package appointments

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

// MaxReschedules is how many times a patient may move one appointment.
const MaxReschedules = 2

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrReasonRequired    = errors.New("cancellation reason is required")
	ErrRescheduleLimit   = fmt.Errorf("appointment can be rescheduled at most %d times", MaxReschedules)
	ErrSlotTaken         = errors.New("time slot already booked")
	ErrSlotInPast        = errors.New("time slot must be in the future")
	ErrInvalidSlot       = errors.New("time slot start must be before end")
	ErrOutsideHours      = errors.New("time slot is outside the doctor's working hours")
	ErrNotOwner          = errors.New("appointment belongs to another patient")
	ErrAlreadyPaid       = errors.New("appointment is already paid")
	ErrNothingToPay      = errors.New("appointment has nothing to pay")
	ErrInvalidStatus     = errors.New("invalid appointment status")
	ErrCouponUnavailable = errors.New("coupon cannot be applied to this appointment")
	ErrDoctorUnavailable = errors.New("doctor is not accepting appointments")
	ErrForbidden         = errors.New("not allowed to change this appointment")
)

// InputError is a malformed request value.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	From, To model.AppointmentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change appointment status from %s to %s", e.From, e.To)
}

var transitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.StatusPending:     {model.StatusConfirmed, model.StatusCancelled, model.StatusRescheduled, model.StatusNoShow},
	model.StatusConfirmed:   {model.StatusCompleted, model.StatusCancelled, model.StatusNoShow},
	model.StatusRescheduled: {model.StatusConfirmed, model.StatusCancelled, model.StatusRescheduled, model.StatusNoShow},
}

// CanTransition reports whether status from may move to to. Completed, cancelled and
// no-show have no outgoing edges.
func CanTransition(from, to model.AppointmentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s model.AppointmentStatus) bool {
	return len(transitions[s]) == 0
}

// Transition moves a to status to, stamping the change time.
func Transition(a *model.Appointment, to model.AppointmentStatus, now time.Time) error {
	if !to.Valid() {
		return ErrInvalidStatus
	}
	if !CanTransition(a.Status, to) {
		return &TransitionError{From: a.Status, To: to}
	}
	a.Status = to
	a.StatusChangedAt = now
	return nil
}

// Cancel cancels a with the given reason. by is the id of the acting user.
func Cancel(a *model.Appointment, reason, by string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	if err := Transition(a, model.StatusCancelled, now); err != nil {
		return err
	}
	a.CancellationReason = reason
	a.CancelledBy = by
	cancelledAt := now
	a.CancelledAt = &cancelledAt
	return nil
}

// Slot is a concrete appointment interval.
type Slot struct {
	Date     string
	TimeSlot model.TimeSlot
	StartsAt time.Time
	EndsAt   time.Time
}

// ParseSlot resolves a date ("2006-01-02") and "HH:MM" pair in loc.
func ParseSlot(date string, ts model.TimeSlot, loc *time.Location) (Slot, error) {
	day, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(date), loc)
	if err != nil {
		return Slot{}, invalid("invalid appointmentDate %q, expected YYYY-MM-DD", date)
	}
	start, err := clockOn(day, ts.Start)
	if err != nil {
		return Slot{}, err
	}
	end, err := clockOn(day, ts.End)
	if err != nil {
		return Slot{}, err
	}
	if !end.After(start) {
		return Slot{}, ErrInvalidSlot
	}
	return Slot{
		Date:     day.Format(time.DateOnly),
		TimeSlot: model.TimeSlot{Start: start.Format("15:04"), End: end.Format("15:04")},
		StartsAt: start,
		EndsAt:   end,
	}, nil
}

func clockOn(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return time.Time{}, invalid("invalid time %q, expected HH:MM", hhmm)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// Reschedule moves a to slot. It enforces the reschedule cap before anything else and
// increments RescheduleCount by exactly one on success.
func Reschedule(a *model.Appointment, slot Slot, now time.Time) error {
	if a.RescheduleCount >= MaxReschedules {
		return ErrRescheduleLimit
	}
	if !CanTransition(a.Status, model.StatusRescheduled) {
		return &TransitionError{From: a.Status, To: model.StatusRescheduled}
	}
	if !slot.EndsAt.After(slot.StartsAt) {
		return ErrInvalidSlot
	}
	if !slot.StartsAt.After(now) {
		return ErrSlotInPast
	}
	a.RescheduleHistory = append(a.RescheduleHistory, model.RescheduleEntry{
		FromDate: a.AppointmentDate,
		FromSlot: a.TimeSlot,
		At:       now,
	})
	a.AppointmentDate = slot.Date
	a.TimeSlot = slot.TimeSlot
	a.StartsAt = slot.StartsAt
	a.EndsAt = slot.EndsAt
	a.RescheduleCount++
	a.Status = model.StatusRescheduled
	a.StatusChangedAt = now
	return nil
}

// CanReschedule is the check clients use to hide the reschedule form.
func CanReschedule(a model.Appointment) bool {
	return a.RescheduleCount < MaxReschedules && CanTransition(a.Status, model.StatusRescheduled)
}

// ComputeFees totals an appointment. The discount never drives the total below zero.
func ComputeFees(consultation, additional, discount int64) model.Fees {
	gross := consultation + additional
	if discount > gross {
		discount = gross
	}
	if discount < 0 {
		discount = 0
	}
	return model.Fees{
		ConsultationFee: consultation,
		AdditionalFees:  additional,
		Discount:        discount,
		TotalAmount:     gross - discount,
	}
}
