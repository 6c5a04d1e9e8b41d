// Package compose turns appointment events into the notifications each party receives.
package compose

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Event types consumed from hospital-api. The topic name equals the event type.
const (
	AppointmentBooked      = "appointment.booked.v1"
	AppointmentCancelled   = "appointment.cancelled.v1"
	AppointmentRescheduled = "appointment.rescheduled.v1"
	AppointmentStatus      = "appointment.status_changed.v1"
	AppointmentUpdated     = "appointment.updated.v1"
	AppointmentDeleted     = "appointment.deleted.v1"
	PaymentCompleted       = "appointment.payment.completed.v1"
	PaymentExpired         = "appointment.payment.expired.v1"
	PaymentRefundDue       = "appointment.payment.refund_due.v1"

	// Reminder is produced locally by the reminder worker, not consumed from Kafka.
	Reminder = "appointment.reminder"
)

// Topics lists every event type the service subscribes to.
var Topics = []string{
	AppointmentBooked,
	AppointmentCancelled,
	AppointmentRescheduled,
	AppointmentStatus,
	AppointmentUpdated,
	AppointmentDeleted,
	PaymentCompleted,
	PaymentExpired,
	PaymentRefundDue,
}

// Appointment is the payload of every appointment.* event.
type Appointment struct {
	AppointmentID string    `json:"appointment_id"`
	PatientID     string    `json:"patient_id"`
	PatientEmail  string    `json:"patient_email"`
	PatientName   string    `json:"patient_name"`
	DoctorID      string    `json:"doctor_id"`
	HospitalID    string    `json:"hospital_id"`
	Date          string    `json:"appointment_date"`
	Start         string    `json:"start"`
	End           string    `json:"end"`
	StartsAt      time.Time `json:"starts_at"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	TotalAmount   int64     `json:"total_amount"`
	CouponCode    string    `json:"coupon_code"`
	Reason        string    `json:"reason"`
	ActorID       string    `json:"actor_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func Decode(raw []byte) (Appointment, error) {
	var a Appointment
	if err := json.Unmarshal(raw, &a); err != nil {
		return Appointment{}, fmt.Errorf("decode appointment event: %w", err)
	}
	if a.AppointmentID == "" || a.PatientID == "" {
		return Appointment{}, fmt.Errorf("appointment event missing appointment_id or patient_id")
	}
	return a, nil
}

// Audience says who a Message is for.
type Audience int

const (
	Patient Audience = iota
	Doctor
)

// Message is one inbox notification plus the e-mail that mirrors it.
type Message struct {
	To      Audience
	UserID  string
	Type    string
	Title   string
	Body    string
	Link    string
	Subject string
}

// Messages returns the notifications for an event. Unknown event types yield none.
func Messages(eventType string, a Appointment) []Message {
	when := a.when()
	link := "/appointments/" + a.AppointmentID
	patient := func(typ, title, body string) Message {
		return Message{To: Patient, UserID: a.PatientID, Type: typ, Title: title, Body: body, Link: link, Subject: title}
	}
	doctor := func(typ, title, body string) Message {
		return Message{To: Doctor, UserID: a.DoctorID, Type: typ, Title: title, Body: body, Link: link, Subject: title}
	}

	var out []Message
	switch eventType {
	case AppointmentBooked:
		out = append(out, patient("appointment_booked", "Appointment booked",
			fmt.Sprintf("Your appointment on %s is booked and waiting for confirmation. Total due: %s.", when, Money(a.TotalAmount))))
		out = append(out, doctor("appointment_booked", "New appointment",
			fmt.Sprintf("%s booked an appointment with you on %s.", a.patientName(), when)))
	case AppointmentCancelled:
		out = append(out, patient("appointment_cancelled", "Appointment cancelled",
			withReason(fmt.Sprintf("Your appointment on %s was cancelled.", when), a.Reason)))
		out = append(out, doctor("appointment_cancelled", "Appointment cancelled",
			withReason(fmt.Sprintf("The appointment with %s on %s was cancelled.", a.patientName(), when), a.Reason)))
	case AppointmentRescheduled:
		out = append(out, patient("appointment_rescheduled", "Appointment rescheduled",
			withReason(fmt.Sprintf("Your appointment moved to %s.", when), a.Reason)))
		out = append(out, doctor("appointment_rescheduled", "Appointment rescheduled",
			fmt.Sprintf("The appointment with %s moved to %s.", a.patientName(), when)))
	case AppointmentStatus:
		out = append(out, patient("appointment_status", "Appointment "+a.Status,
			fmt.Sprintf("Your appointment on %s is now %s.", when, a.Status)))
	case AppointmentUpdated:
		out = append(out, patient("appointment_updated", "Appointment updated",
			fmt.Sprintf("The details of your appointment on %s were updated.", when)))
	case AppointmentDeleted:
		out = append(out, patient("appointment_deleted", "Appointment removed",
			fmt.Sprintf("Your appointment on %s was removed by the hospital.", when)))
	case PaymentCompleted:
		out = append(out, patient("payment_completed", "Payment received",
			fmt.Sprintf("We received %s for your appointment on %s.", Money(a.TotalAmount), when)))
	case Reminder:
		out = append(out, patient("appointment_reminder", "Appointment reminder",
			fmt.Sprintf("Reminder: you have an appointment on %s. Please arrive 15 minutes early.", when)))
	case PaymentExpired:
		out = append(out, patient("payment_expired", "Payment not completed",
			fmt.Sprintf("The online payment for your appointment on %s was not completed. You can start a new checkout or pay at the hospital.", when)))
	case PaymentRefundDue:
		out = append(out, patient("payment_refund_due", "Refund pending",
			fmt.Sprintf("We received %s for your appointment on %s, which is no longer active. The hospital will refund this payment.", Money(a.TotalAmount), when)))
	}

	kept := out[:0]
	for _, m := range out {
		if m.UserID != "" {
			kept = append(kept, m)
		}
	}
	return kept
}

func (a Appointment) when() string {
	if a.Date == "" {
		return "the scheduled date"
	}
	s := a.Date
	if a.Start != "" {
		s += " " + a.Start
		if a.End != "" {
			s += "-" + a.End
		}
	}
	return s
}

func (a Appointment) patientName() string {
	if n := strings.TrimSpace(a.PatientName); n != "" {
		return n
	}
	return "A patient"
}

func withReason(s, reason string) string {
	if reason = strings.TrimSpace(reason); reason != "" {
		return s + " Reason: " + reason + "."
	}
	return s
}

var printer = message.NewPrinter(language.Vietnamese)

// Money formats whole VND amounts, e.g. "150.000 ₫".
func Money(amount int64) string {
	return printer.Sprintf("%d ₫", amount)
}
