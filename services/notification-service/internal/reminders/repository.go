package reminders

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/medibook/libs/db"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/compose"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Due returns active appointments starting in (from, to] whose patient has no reminder row yet.
func (r *Repository) Due(ctx context.Context, from, to time.Time, limit int) ([]compose.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.patient_id, u.email, u.name, a.doctor_id, COALESCE(a.hospital_id::text, ''),
		       to_char(a.appointment_date, 'YYYY-MM-DD'), a.slot_start, a.slot_end, a.starts_at, a.status
		FROM appointments a
		JOIN users u ON u.id = a.patient_id
		WHERE a.status IN ('pending', 'confirmed', 'rescheduled')
		  AND a.starts_at > $1 AND a.starts_at <= $2
		  AND NOT EXISTS (
		      SELECT 1 FROM notifications n
		      WHERE n.user_id = a.patient_id AND n.source_event_id = 'reminder:' || a.id::text
		  )
		ORDER BY a.starts_at
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []compose.Appointment
	for rows.Next() {
		var a compose.Appointment
		if err := rows.Scan(&a.AppointmentID, &a.PatientID, &a.PatientEmail, &a.PatientName, &a.DoctorID, &a.HospitalID,
			&a.Date, &a.Start, &a.End, &a.StartsAt, &a.Status); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
