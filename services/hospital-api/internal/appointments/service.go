package appointments

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/availability"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/coupons"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/outbox"
)

// DefaultSlotLength is used when no service is chosen or the service has no duration.
const DefaultSlotLength = 30 * time.Minute

type ListFilter struct {
	PatientID  string
	DoctorID   string
	HospitalID string
	Status     model.AppointmentStatus
	From       string
	To         string
	Limit      int
	Offset     int
}

type Stats struct {
	Total    int                             `json:"total"`
	ByStatus map[model.AppointmentStatus]int `json:"byStatus"`
	Revenue  int64                           `json:"revenue"`
	Upcoming int                             `json:"upcoming"`
}

// Tx is the transactional view of appointment storage. Insert and Update return
// ErrSlotTaken when the doctor already has an overlapping live appointment.
type Tx interface {
	// LockIdempotencyKey claims key for patientID. It returns the appointment id a
	// previous request with the same key produced, if any.
	LockIdempotencyKey(ctx context.Context, patientID, key string) (appointmentID string, err error)
	FinalizeIdempotencyKey(ctx context.Context, patientID, key, appointmentID string) error
	Insert(ctx context.Context, a *model.Appointment) error
	GetForUpdate(ctx context.Context, id string) (model.Appointment, error)
	Update(ctx context.Context, a model.Appointment) error
	Delete(ctx context.Context, id string) error
	Emit(ctx context.Context, evt outbox.Event) error
}

type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
	// Get returns the appointment with patient, doctor, hospital and service populated.
	Get(ctx context.Context, id string) (model.Appointment, error)
	List(ctx context.Context, f ListFilter) ([]model.Appointment, int, error)
	// Busy lists the live appointment intervals of a doctor overlapping [from,to).
	Busy(ctx context.Context, doctorID string, from, to time.Time) ([]availability.Interval, error)
	Stats(ctx context.Context, f ListFilter, now time.Time) (Stats, error)
}

// Catalog resolves the doctors and services a booking refers to.
type Catalog interface {
	Doctor(ctx context.Context, id string) (model.Doctor, error)
	Service(ctx context.Context, id string) (model.Service, error)
}

type CouponValidator interface {
	Validate(ctx context.Context, code string, q coupons.Query) (coupons.Result, model.Coupon, error)
}

// Actor is who is acting on an appointment and what they may do beyond their own records.
type Actor struct {
	UserID  string
	Doctor  bool
	ReadAll bool
	Manage  bool
	Status  bool
}

func (ac Actor) canRead(a model.Appointment) bool {
	return ac.ReadAll || ac.Manage || a.Patient.ID() == ac.UserID || (ac.Doctor && a.Doctor.ID() == ac.UserID)
}

type BookRequest struct {
	DoctorID        string              `json:"doctorId"`
	ServiceID       string              `json:"serviceId"`
	AppointmentDate string              `json:"appointmentDate"`
	TimeSlot        model.TimeSlot      `json:"timeSlot"`
	Symptoms        string              `json:"symptoms"`
	PaymentMethod   model.PaymentMethod `json:"paymentMethod"`
	CouponCode      string              `json:"couponCode"`
}

type RescheduleRequest struct {
	AppointmentDate string         `json:"appointmentDate"`
	TimeSlot        model.TimeSlot `json:"timeSlot"`
}

type StatusUpdate struct {
	Status      model.AppointmentStatus `json:"status"`
	Reason      string                  `json:"reason"`
	Diagnosis   *string                 `json:"diagnosis"`
	DoctorNotes *string                 `json:"doctorNotes"`
}

// AdminPatch is the body of an admin edit. Status changes still go through the state machine.
type AdminPatch struct {
	Room            *string                  `json:"room"`
	ConsultationFee *int64                   `json:"consultationFee"`
	AdditionalFees  *int64                   `json:"additionalFees"`
	Discount        *int64                   `json:"discount"`
	Diagnosis       *string                  `json:"diagnosis"`
	DoctorNotes     *string                  `json:"doctorNotes"`
	Status          *model.AppointmentStatus `json:"status"`
	PaymentStatus   *model.PaymentStatus     `json:"paymentStatus"`
	Reason          string                   `json:"reason"`
}

type Service struct {
	store   Store
	catalog Catalog
	coupons CouponValidator
	logger  *slog.Logger
	loc     *time.Location
	now     func() time.Time
}

func NewService(store Store, catalog Catalog, coupons CouponValidator, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, catalog: catalog, coupons: coupons, logger: logger, loc: loc, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Location() *time.Location { return s.loc }

// Book creates a pending appointment for patientID. A repeated idempotency key
// returns the appointment the first request created, with replayed set.
func (s *Service) Book(ctx context.Context, patientID string, req BookRequest, idemKey string) (appt model.Appointment, replayed bool, err error) {
	doctor, err := s.catalog.Doctor(ctx, strings.TrimSpace(req.DoctorID))
	if err != nil {
		return model.Appointment{}, false, err
	}
	if !doctor.IsActive {
		return model.Appointment{}, false, ErrDoctorUnavailable
	}

	var svc model.Service
	if id := model.NormalizeID(req.ServiceID); id != "" {
		if svc, err = s.catalog.Service(ctx, id); err != nil {
			return model.Appointment{}, false, err
		}
	}

	now := s.now()
	slot, err := ParseSlot(req.AppointmentDate, req.TimeSlot, s.loc)
	if err != nil {
		return model.Appointment{}, false, err
	}
	if !slot.StartsAt.After(now) {
		return model.Appointment{}, false, ErrSlotInPast
	}
	if err := s.checkHours(doctor, slot); err != nil {
		return model.Appointment{}, false, err
	}

	method := req.PaymentMethod
	if method == "" {
		method = model.PaymentCash
	}
	if !method.Valid() {
		return model.Appointment{}, false, invalid("invalid paymentMethod %q", method)
	}

	a := model.Appointment{
		Patient:         model.RefOf[model.User](patientID),
		Doctor:          model.RefOf[model.Doctor](doctor.ID),
		Hospital:        doctor.Hospital,
		AppointmentDate: slot.Date,
		TimeSlot:        slot.TimeSlot,
		StartsAt:        slot.StartsAt,
		EndsAt:          slot.EndsAt,
		Status:          model.StatusPending,
		StatusChangedAt: now.UTC(),
		PaymentStatus:   model.PaymentUnpaid,
		PaymentMethod:   method,
		Symptoms:        strings.TrimSpace(req.Symptoms),
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}
	if svc.ID != "" {
		a.Service = model.RefOf[model.Service](svc.ID)
	}

	var discount int64
	if code := coupons.NormalizeCode(req.CouponCode); code != "" {
		gross := doctor.ConsultationFee + svc.Price
		specialty := doctor.Specialty.ID()
		if !svc.Specialty.IsZero() {
			specialty = svc.Specialty.ID()
		}
		res, c, err := s.coupons.Validate(ctx, code, coupons.Query{Amount: &gross, ServiceID: svc.ID, SpecialtyID: specialty})
		if err != nil {
			return model.Appointment{}, false, err
		}
		discount = res.DiscountAmount
		a.Coupon = &model.AppliedCoupon{ID: c.ID, Code: c.Code}
	}
	a.Fees = ComputeFees(doctor.ConsultationFee, svc.Price, discount)

	var priorID string
	err = s.store.WithTx(ctx, func(tx Tx) error {
		if idemKey != "" {
			if priorID, err = tx.LockIdempotencyKey(ctx, patientID, idemKey); err != nil || priorID != "" {
				return err
			}
		}
		if err := tx.Insert(ctx, &a); err != nil {
			return err
		}
		if idemKey != "" {
			if err := tx.FinalizeIdempotencyKey(ctx, patientID, idemKey, a.ID); err != nil {
				return err
			}
		}
		return s.emit(ctx, tx, outbox.AppointmentBooked, a, patientID)
	})
	if err != nil {
		return model.Appointment{}, false, err
	}
	if priorID != "" {
		prior, err := s.store.Get(ctx, priorID)
		return prior, true, err
	}

	s.logger.Info("appointment booked",
		"appointment_id", a.ID,
		"doctor_id", doctor.ID,
		"starts_at", a.StartsAt.Format(time.RFC3339),
		"total", a.Fees.TotalAmount,
		"coupon", couponCode(a),
	)
	return a, false, nil
}

func (s *Service) Get(ctx context.Context, id string, actor Actor) (model.Appointment, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !actor.canRead(a) {
		// Do not reveal other patients' appointments.
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (s *Service) ListMine(ctx context.Context, patientID string, f ListFilter) ([]model.Appointment, int, error) {
	f.PatientID = patientID
	return s.List(ctx, f)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]model.Appointment, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, ErrInvalidStatus
	}
	return s.store.List(ctx, f)
}

// DoctorSchedule lists a doctor's appointments on one day ordered by start time.
func (s *Service) DoctorSchedule(ctx context.Context, doctorID, date string) ([]model.Appointment, error) {
	day, err := s.day(date)
	if err != nil {
		return nil, err
	}
	d := day.Format(time.DateOnly)
	out, _, err := s.store.List(ctx, ListFilter{DoctorID: doctorID, From: d, To: d, Limit: 200})
	return out, err
}

type Availability struct {
	DoctorID string           `json:"doctorId"`
	Date     string           `json:"date"`
	Slots    []model.TimeSlot `json:"slots"`
}

// Availability lists the free slots of a doctor on date: working hours minus live
// appointments, with slots sized to the service duration.
func (s *Service) Availability(ctx context.Context, doctorID, date, serviceID string) (Availability, error) {
	doctor, err := s.catalog.Doctor(ctx, doctorID)
	if err != nil {
		return Availability{}, err
	}
	day, err := s.day(date)
	if err != nil {
		return Availability{}, err
	}
	out := Availability{DoctorID: doctor.ID, Date: day.Format(time.DateOnly), Slots: []model.TimeSlot{}}
	if !doctor.IsActive {
		return out, nil
	}

	length := DefaultSlotLength
	if serviceID != "" {
		svc, err := s.catalog.Service(ctx, serviceID)
		if err != nil {
			return Availability{}, err
		}
		if svc.DurationMinutes > 0 {
			length = time.Duration(svc.DurationMinutes) * time.Minute
		}
	}

	windows, err := availability.Windows(doctor.WorkingHours, day, s.loc)
	if err != nil {
		return Availability{}, err
	}
	if len(windows) == 0 {
		return out, nil
	}
	busy, err := s.store.Busy(ctx, doctor.ID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return Availability{}, err
	}
	if slots := availability.DaySlots(windows, length, busy, s.now()); slots != nil {
		out.Slots = slots
	}
	return out, nil
}

// Cancel cancels an appointment owned by the actor, or any appointment for managers.
func (s *Service) Cancel(ctx context.Context, id, reason string, actor Actor) (model.Appointment, error) {
	return s.mutate(ctx, id, outbox.AppointmentCancelled, actor, func(a *model.Appointment, now time.Time) error {
		if !actor.Manage && a.Patient.ID() != actor.UserID && !(actor.Doctor && a.Doctor.ID() == actor.UserID) {
			return ErrNotOwner
		}
		return Cancel(a, reason, actor.UserID, now)
	})
}

// Reschedule moves an appointment to a new slot inside the doctor's working hours.
func (s *Service) Reschedule(ctx context.Context, id string, req RescheduleRequest, actor Actor) (model.Appointment, error) {
	slot, err := ParseSlot(req.AppointmentDate, req.TimeSlot, s.loc)
	if err != nil {
		return model.Appointment{}, err
	}
	return s.mutate(ctx, id, outbox.AppointmentRescheduled, actor, func(a *model.Appointment, now time.Time) error {
		if !actor.Manage && a.Patient.ID() != actor.UserID {
			return ErrNotOwner
		}
		if a.RescheduleCount >= MaxReschedules {
			return ErrRescheduleLimit
		}
		doctor, err := s.catalog.Doctor(ctx, a.Doctor.ID())
		if err != nil {
			return err
		}
		if err := s.checkHours(doctor, slot); err != nil {
			return err
		}
		return Reschedule(a, slot, now)
	})
}

// UpdateStatus is the doctor/admin status change, optionally with clinical notes.
func (s *Service) UpdateStatus(ctx context.Context, id string, u StatusUpdate, actor Actor) (model.Appointment, error) {
	if !u.Status.Valid() {
		return model.Appointment{}, ErrInvalidStatus
	}
	return s.mutate(ctx, id, outbox.AppointmentStatus, actor, func(a *model.Appointment, now time.Time) error {
		if !actor.Manage && !(actor.Status && a.Doctor.ID() == actor.UserID) {
			return ErrForbidden
		}
		if u.Diagnosis != nil {
			a.Diagnosis = strings.TrimSpace(*u.Diagnosis)
		}
		if u.DoctorNotes != nil {
			a.DoctorNotes = strings.TrimSpace(*u.DoctorNotes)
		}
		if u.Status == a.Status {
			return nil
		}
		if u.Status == model.StatusCancelled {
			return Cancel(a, u.Reason, actor.UserID, now)
		}
		return Transition(a, u.Status, now)
	})
}

// AdminUpdate edits fees, room, notes and status of any appointment.
func (s *Service) AdminUpdate(ctx context.Context, id string, p AdminPatch, actor Actor) (model.Appointment, error) {
	if !actor.Manage {
		return model.Appointment{}, ErrForbidden
	}
	return s.mutate(ctx, id, outbox.AppointmentUpdated, actor, func(a *model.Appointment, now time.Time) error {
		if p.Room != nil {
			a.Room = strings.TrimSpace(*p.Room)
		}
		if p.Diagnosis != nil {
			a.Diagnosis = strings.TrimSpace(*p.Diagnosis)
		}
		if p.DoctorNotes != nil {
			a.DoctorNotes = strings.TrimSpace(*p.DoctorNotes)
		}
		if p.ConsultationFee != nil || p.AdditionalFees != nil || p.Discount != nil {
			if a.PaymentStatus == model.PaymentCompleted {
				return ErrAlreadyPaid
			}
			f := a.Fees
			if p.ConsultationFee != nil {
				f.ConsultationFee = *p.ConsultationFee
			}
			if p.AdditionalFees != nil {
				f.AdditionalFees = *p.AdditionalFees
			}
			if p.Discount != nil {
				f.Discount = *p.Discount
			}
			if f.ConsultationFee < 0 || f.AdditionalFees < 0 || f.Discount < 0 {
				return invalid("fees must not be negative")
			}
			a.Fees = ComputeFees(f.ConsultationFee, f.AdditionalFees, f.Discount)
		}
		if p.PaymentStatus != nil && *p.PaymentStatus != a.PaymentStatus {
			// Completing a payment goes through the payment confirmation; admins may only refund.
			if *p.PaymentStatus != model.PaymentRefunded || a.PaymentStatus != model.PaymentCompleted {
				return invalid("paymentStatus can only be changed from completed to refunded")
			}
			a.PaymentStatus = model.PaymentRefunded
		}
		if p.Status != nil && *p.Status != a.Status {
			if *p.Status == model.StatusCancelled {
				return Cancel(a, p.Reason, actor.UserID, now)
			}
			return Transition(a, *p.Status, now)
		}
		return nil
	})
}

func (s *Service) Delete(ctx context.Context, id string, actor Actor) error {
	if !actor.Manage {
		return ErrForbidden
	}
	return s.store.WithTx(ctx, func(tx Tx) error {
		a, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return s.emit(ctx, tx, outbox.AppointmentDeleted, a, actor.UserID)
	})
}

func (s *Service) Stats(ctx context.Context, f ListFilter) (Stats, error) {
	return s.store.Stats(ctx, f, s.now())
}

// mutate loads id under a row lock, applies fn, persists and emits eventType, all in one transaction.
func (s *Service) mutate(ctx context.Context, id, eventType string, actor Actor, fn func(*model.Appointment, time.Time) error) (model.Appointment, error) {
	var out model.Appointment
	err := s.store.WithTx(ctx, func(tx Tx) error {
		a, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !actor.canRead(a) {
			return ErrNotFound
		}
		now := s.now().UTC()
		if err := fn(&a, now); err != nil {
			return err
		}
		a.UpdatedAt = now
		if err := tx.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return s.emit(ctx, tx, eventType, a, actor.UserID)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment updated", "appointment_id", id, "event", eventType, "status", out.Status, "actor_id", actor.UserID)
	return out, nil
}

func (s *Service) emit(ctx context.Context, tx Tx, eventType string, a model.Appointment, actorID string) error {
	evt, err := outbox.NewAppointmentEvent(eventType, Payload(a, actorID, s.now()))
	if err != nil {
		return err
	}
	return tx.Emit(ctx, evt)
}

func (s *Service) checkHours(doctor model.Doctor, slot Slot) error {
	if len(doctor.WorkingHours) == 0 {
		return nil
	}
	windows, err := availability.Windows(doctor.WorkingHours, slot.StartsAt, s.loc)
	if err != nil {
		return err
	}
	if !availability.Within(slot.StartsAt, slot.EndsAt, windows) {
		return ErrOutsideHours
	}
	return nil
}

func (s *Service) day(date string) (time.Time, error) {
	if strings.TrimSpace(date) == "" {
		y, m, d := s.now().In(s.loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, s.loc), nil
	}
	day, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(date), s.loc)
	if err != nil {
		return time.Time{}, invalid("invalid date %q, expected YYYY-MM-DD", date)
	}
	return day, nil
}

// Payload builds the outbox body for a. Populated patient fields are included when present.
func Payload(a model.Appointment, actorID string, now time.Time) outbox.AppointmentPayload {
	p := outbox.AppointmentPayload{
		AppointmentID: a.ID,
		PatientID:     a.Patient.ID(),
		DoctorID:      a.Doctor.ID(),
		HospitalID:    a.Hospital.ID(),
		Date:          a.AppointmentDate,
		Start:         a.TimeSlot.Start,
		End:           a.TimeSlot.End,
		StartsAt:      a.StartsAt,
		Status:        string(a.Status),
		PaymentStatus: string(a.PaymentStatus),
		TotalAmount:   a.Fees.TotalAmount,
		CouponCode:    couponCode(a),
		Reason:        a.CancellationReason,
		ActorID:       actorID,
		OccurredAt:    now.UTC(),
	}
	if u, ok := a.Patient.Value(); ok {
		p.PatientEmail = u.Email
		p.PatientName = u.Name
	}
	return p
}

func couponCode(a model.Appointment) string {
	if a.Coupon == nil {
		return ""
	}
	return a.Coupon.Code
}
