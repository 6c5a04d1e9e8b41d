package outbox

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topics. The Kafka topic name equals the event type.
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
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// AppointmentPayload is the body of every appointment.* event.
type AppointmentPayload struct {
	AppointmentID string    `json:"appointment_id"`
	PatientID     string    `json:"patient_id"`
	PatientEmail  string    `json:"patient_email,omitempty"`
	PatientName   string    `json:"patient_name,omitempty"`
	DoctorID      string    `json:"doctor_id"`
	HospitalID    string    `json:"hospital_id,omitempty"`
	Date          string    `json:"appointment_date"`
	Start         string    `json:"start"`
	End           string    `json:"end"`
	StartsAt      time.Time `json:"starts_at"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status,omitempty"`
	TotalAmount   int64     `json:"total_amount"`
	CouponCode    string    `json:"coupon_code,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func NewAppointmentEvent(eventType string, p AppointmentPayload) (Event, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   p.AppointmentID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}
