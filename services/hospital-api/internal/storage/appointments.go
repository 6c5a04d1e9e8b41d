package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/medibook/libs/db"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/appointments"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/availability"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

type AppointmentStore struct {
	*Store
}

var _ appointments.Store = (*AppointmentStore)(nil)

func (s *AppointmentStore) WithTx(ctx context.Context, fn func(appointments.Tx) error) error {
	return s.withTx(ctx, func(t *txn) error { return fn(t) })
}

// Appointments are always read with patient, doctor, hospital and service populated.
const appointmentSelect = `
	SELECT a.id::text, a.patient_id::text, a.doctor_id::text,
		COALESCE(a.hospital_id::text, ''), COALESCE(a.service_id::text, ''), a.room,
		a.appointment_date::text, a.slot_start, a.slot_end, a.starts_at, a.ends_at,
		a.status, a.status_changed_at, a.payment_status, a.payment_method, a.payment_ref,
		a.checkout_session_id, a.paid_at,
		a.consultation_fee, a.additional_fees, a.discount, a.total_amount,
		COALESCE(a.coupon_id::text, ''), a.coupon_code,
		a.symptoms, a.diagnosis, a.doctor_notes,
		a.reschedule_count, a.reschedule_history,
		a.cancellation_reason, COALESCE(a.cancelled_by::text, ''), a.cancelled_at,
		a.has_review, a.created_at, a.updated_at,
		p.name, p.email, p.phone,
		du.name, du.email,
		COALESCE(h.name, ''), COALESCE(h.address, ''),
		COALESCE(s.name, ''), COALESCE(s.price, 0), COALESCE(s.duration_minutes, 0)
	FROM appointments a
	JOIN users p ON p.id = a.patient_id
	JOIN users du ON du.id = a.doctor_id
	LEFT JOIN hospitals h ON h.id = a.hospital_id
	LEFT JOIN services s ON s.id = a.service_id`

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var (
		a                               model.Appointment
		patientID, doctorID, hospitalID string
		serviceID, couponID, couponCode string
		history                         []byte
		patient                         model.User
		doctor                          model.Doctor
		hospital                        model.Hospital
		service                         model.Service
	)
	err := row.Scan(
		&a.ID, &patientID, &doctorID, &hospitalID, &serviceID, &a.Room,
		&a.AppointmentDate, &a.TimeSlot.Start, &a.TimeSlot.End, &a.StartsAt, &a.EndsAt,
		&a.Status, &a.StatusChangedAt, &a.PaymentStatus, &a.PaymentMethod, &a.PaymentRef,
		&a.CheckoutSessionID, &a.PaidAt,
		&a.Fees.ConsultationFee, &a.Fees.AdditionalFees, &a.Fees.Discount, &a.Fees.TotalAmount,
		&couponID, &couponCode,
		&a.Symptoms, &a.Diagnosis, &a.DoctorNotes,
		&a.RescheduleCount, &history,
		&a.CancellationReason, &a.CancelledBy, &a.CancelledAt,
		&a.HasReview, &a.CreatedAt, &a.UpdatedAt,
		&patient.Name, &patient.Email, &patient.Phone,
		&doctor.Name, &doctor.Email,
		&hospital.Name, &hospital.Address,
		&service.Name, &service.Price, &service.DurationMinutes,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &a.RescheduleHistory); err != nil {
			return model.Appointment{}, err
		}
	}

	patient.ID = patientID
	a.Patient = model.Populated(patient)
	doctor.ID = doctorID
	doctor.Hospital = model.RefOf[model.Hospital](hospitalID)
	a.Doctor = model.Populated(doctor)
	if hospitalID != "" {
		hospital.ID = hospitalID
		a.Hospital = model.Populated(hospital)
	}
	if serviceID != "" {
		service.ID = serviceID
		a.Service = model.Populated(service)
	}
	if couponID != "" || couponCode != "" {
		a.Coupon = &model.AppliedCoupon{ID: couponID, Code: couponCode}
	}
	return a, nil
}

func (s *AppointmentStore) Get(ctx context.Context, id string) (model.Appointment, error) {
	a, err := scanAppointment(s.pool.QueryRow(ctx, appointmentSelect+` WHERE a.id = $1`, id))
	return a, missing(err, appointments.ErrNotFound)
}

func (s *AppointmentStore) List(ctx context.Context, f appointments.ListFilter) ([]model.Appointment, int, error) {
	w := appointmentFilter(f)
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM appointments a`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := ` ORDER BY a.starts_at DESC`
	if f.DoctorID != "" && f.From != "" && f.From == f.To {
		order = ` ORDER BY a.starts_at ASC`
	}
	query := appointmentSelect + w.String() + order + w.page(f.Limit, f.Offset)
	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func appointmentFilter(f appointments.ListFilter) *where {
	w := &where{}
	if f.PatientID != "" {
		w.add("a.patient_id = ?", f.PatientID)
	}
	if f.DoctorID != "" {
		w.add("a.doctor_id = ?", f.DoctorID)
	}
	if f.HospitalID != "" {
		w.add("a.hospital_id = ?", f.HospitalID)
	}
	if f.Status != "" {
		w.add("a.status = ?", string(f.Status))
	}
	if f.From != "" {
		w.add("a.appointment_date >= ?::date", f.From)
	}
	if f.To != "" {
		w.add("a.appointment_date <= ?::date", f.To)
	}
	return w
}

func (s *AppointmentStore) Busy(ctx context.Context, doctorID string, from, to time.Time) ([]availability.Interval, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT starts_at, ends_at
		FROM appointments
		WHERE doctor_id = $1
			AND status NOT IN ('cancelled', 'no-show')
			AND starts_at < $3
			AND ends_at > $2
		ORDER BY starts_at ASC
	`, doctorID, from, to)
	if err != nil {
		return nil, missing(err, appointments.ErrNotFound)
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (s *AppointmentStore) Stats(ctx context.Context, f appointments.ListFilter, now time.Time) (appointments.Stats, error) {
	w := appointmentFilter(f)
	w.args = append(w.args, now)
	query := fmt.Sprintf(`
		SELECT a.status,
			count(*),
			COALESCE(sum(a.total_amount) FILTER (WHERE a.payment_status = 'completed'), 0),
			count(*) FILTER (WHERE a.starts_at > $%d AND a.status IN ('pending', 'confirmed', 'rescheduled'))
		FROM appointments a%s
		GROUP BY a.status
	`, len(w.args), w.String())
	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return appointments.Stats{}, err
	}
	defer rows.Close()

	st := appointments.Stats{ByStatus: map[model.AppointmentStatus]int{}}
	for _, status := range model.AppointmentStatuses {
		st.ByStatus[status] = 0
	}
	for rows.Next() {
		var (
			status          model.AppointmentStatus
			count, upcoming int
			revenue         int64
		)
		if err := rows.Scan(&status, &count, &revenue, &upcoming); err != nil {
			return appointments.Stats{}, err
		}
		st.ByStatus[status] = count
		st.Total += count
		st.Revenue += revenue
		st.Upcoming += upcoming
	}
	return st, rows.Err()
}

// LockIdempotencyKey claims (patientID, key) under a row lock so concurrent retries
// serialize on it. A finalized key reports the appointment it produced.
func (t *txn) LockIdempotencyKey(ctx context.Context, patientID, key string) (string, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointment_idempotency_keys (patient_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (patient_id, idempotency_key) DO NOTHING
	`, patientID, key)
	if err != nil {
		return "", err
	}
	var appointmentID string
	err = t.tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, '')
		FROM appointment_idempotency_keys
		WHERE patient_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, patientID, key).Scan(&appointmentID)
	return appointmentID, err
}

func (t *txn) FinalizeIdempotencyKey(ctx context.Context, patientID, key, appointmentID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE appointment_idempotency_keys
		SET appointment_id = $3,
			updated_at = now()
		WHERE patient_id = $1 AND idempotency_key = $2
	`, patientID, key, appointmentID)
	return err
}

func (t *txn) Insert(ctx context.Context, a *model.Appointment) error {
	history, err := json.Marshal(historyOrEmpty(a.RescheduleHistory))
	if err != nil {
		return err
	}
	var couponID, couponCode string
	if a.Coupon != nil {
		couponID, couponCode = a.Coupon.ID, a.Coupon.Code
	}
	err = t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(patient_id, doctor_id, hospital_id, service_id, room, appointment_date, slot_start, slot_end,
			 starts_at, ends_at, status, status_changed_at, payment_status, payment_method,
			 consultation_fee, additional_fees, discount, total_amount, coupon_id, coupon_code,
			 symptoms, reschedule_history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $23)
		RETURNING id::text
	`, a.Patient.ID(), a.Doctor.ID(), nullable(a.Hospital.ID()), nullable(a.Service.ID()), a.Room,
		a.AppointmentDate, a.TimeSlot.Start, a.TimeSlot.End, a.StartsAt, a.EndsAt,
		string(a.Status), a.StatusChangedAt, string(a.PaymentStatus), string(a.PaymentMethod),
		a.Fees.ConsultationFee, a.Fees.AdditionalFees, a.Fees.Discount, a.Fees.TotalAmount,
		nullable(couponID), couponCode, a.Symptoms, history, a.CreatedAt,
	).Scan(&a.ID)
	if db.IsExclusionViolation(err) {
		return appointments.ErrSlotTaken
	}
	return err
}

func (t *txn) GetForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	a, err := scanAppointment(t.tx.QueryRow(ctx, appointmentSelect+` WHERE a.id = $1 FOR UPDATE OF a`, id))
	return a, missing(err, appointments.ErrNotFound)
}

// AppointmentForUpdate serves the payment and review units of work.
func (t *txn) AppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return t.GetForUpdate(ctx, id)
}

func (t *txn) Update(ctx context.Context, a model.Appointment) error {
	history, err := json.Marshal(historyOrEmpty(a.RescheduleHistory))
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET room = $2,
			appointment_date = $3::date,
			slot_start = $4,
			slot_end = $5,
			starts_at = $6,
			ends_at = $7,
			status = $8,
			status_changed_at = $9,
			payment_status = $10,
			consultation_fee = $11,
			additional_fees = $12,
			discount = $13,
			total_amount = $14,
			diagnosis = $15,
			doctor_notes = $16,
			reschedule_count = $17,
			reschedule_history = $18,
			cancellation_reason = $19,
			cancelled_by = $20,
			cancelled_at = $21,
			updated_at = $22
		WHERE id = $1
	`, a.ID, a.Room, a.AppointmentDate, a.TimeSlot.Start, a.TimeSlot.End, a.StartsAt, a.EndsAt,
		string(a.Status), a.StatusChangedAt, string(a.PaymentStatus),
		a.Fees.ConsultationFee, a.Fees.AdditionalFees, a.Fees.Discount, a.Fees.TotalAmount,
		a.Diagnosis, a.DoctorNotes, a.RescheduleCount, history,
		a.CancellationReason, nullable(a.CancelledBy), a.CancelledAt, a.UpdatedAt,
	)
	if db.IsExclusionViolation(err) {
		return appointments.ErrSlotTaken
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return appointments.ErrNotFound
	}
	return nil
}

func (t *txn) Delete(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return missing(err, appointments.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return appointments.ErrNotFound
	}
	return nil
}

func historyOrEmpty(h []model.RescheduleEntry) []model.RescheduleEntry {
	if h == nil {
		return []model.RescheduleEntry{}
	}
	return h
}
