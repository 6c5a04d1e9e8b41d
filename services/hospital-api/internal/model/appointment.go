package model

import "time"

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusRescheduled AppointmentStatus = "rescheduled"
	StatusNoShow      AppointmentStatus = "no-show"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusRescheduled, StatusNoShow:
		return true
	}
	return false
}

var AppointmentStatuses = []AppointmentStatus{
	StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusRescheduled, StatusNoShow,
}

type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "unpaid"
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentStripe PaymentMethod = "stripe"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentStripe
}

// TimeSlot is a start/end pair in "HH:MM" clinic-local time.
type TimeSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Fees struct {
	ConsultationFee int64 `json:"consultationFee"`
	AdditionalFees  int64 `json:"additionalFees"`
	Discount        int64 `json:"discount"`
	TotalAmount     int64 `json:"totalAmount"`
}

type RescheduleEntry struct {
	FromDate string    `json:"fromDate"`
	FromSlot TimeSlot  `json:"fromSlot"`
	At       time.Time `json:"at"`
}

type Appointment struct {
	ID                 string            `json:"id"`
	Patient            Ref[User]         `json:"patient"`
	Doctor             Ref[Doctor]       `json:"doctor"`
	Hospital           Ref[Hospital]     `json:"hospital"`
	Service            Ref[Service]      `json:"service"`
	Room               string            `json:"room,omitempty"`
	AppointmentDate    string            `json:"appointmentDate"`
	TimeSlot           TimeSlot          `json:"timeSlot"`
	StartsAt           time.Time         `json:"startsAt"`
	EndsAt             time.Time         `json:"endsAt"`
	Status             AppointmentStatus `json:"status"`
	PaymentStatus      PaymentStatus     `json:"paymentStatus"`
	PaymentMethod      PaymentMethod     `json:"paymentMethod"`
	PaymentRef         string            `json:"paymentRef,omitempty"`
	CheckoutSessionID  string            `json:"-"`
	PaidAt             *time.Time        `json:"paidAt,omitempty"`
	Fees               Fees              `json:"fees"`
	Coupon             *AppliedCoupon    `json:"coupon,omitempty"`
	Symptoms           string            `json:"symptoms,omitempty"`
	Diagnosis          string            `json:"diagnosis,omitempty"`
	DoctorNotes        string            `json:"doctorNotes,omitempty"`
	RescheduleCount    int               `json:"rescheduleCount"`
	RescheduleHistory  []RescheduleEntry `json:"rescheduleHistory,omitempty"`
	CancellationReason string            `json:"cancellationReason,omitempty"`
	CancelledBy        string            `json:"cancelledBy,omitempty"`
	CancelledAt        *time.Time        `json:"cancelledAt,omitempty"`
	StatusChangedAt    time.Time         `json:"statusChangedAt"`
	HasReview          bool              `json:"hasReview"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

func (a Appointment) RefID() string { return a.ID }
