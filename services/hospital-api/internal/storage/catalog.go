package storage

import (
	"context"
	"encoding/json"

	"github.com/md-rashed-zaman/medibook/libs/db"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/appointments"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/catalog"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/coupons"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

type CatalogStore struct {
	pool *db.Pool
}

var (
	_ catalog.Store        = (*CatalogStore)(nil)
	_ appointments.Catalog = (*CatalogStore)(nil)
	_ coupons.Catalog      = (*CatalogStore)(nil)
)

const hospitalSelect = `
	SELECT id::text, name, address, phone, email, description, rating, review_count, is_active, created_at
	FROM hospitals`

func scanHospital(row rowScanner) (model.Hospital, error) {
	var h model.Hospital
	err := row.Scan(&h.ID, &h.Name, &h.Address, &h.Phone, &h.Email, &h.Description,
		&h.Rating, &h.ReviewCount, &h.IsActive, &h.CreatedAt)
	return h, err
}

func (s *CatalogStore) ListHospitals(ctx context.Context, f catalog.Filter) ([]model.Hospital, int, error) {
	w := &where{}
	if f.Search != "" {
		w.add("(name ILIKE ? OR address ILIKE ?)", likePattern(f.Search))
	}
	if f.ActiveOnly {
		w.add("is_active = ?", true)
	}
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM hospitals`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, hospitalSelect+w.String()+` ORDER BY rating DESC, name ASC`+w.page(f.Limit, f.Offset), w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Hospital{}
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, h)
	}
	return out, total, rows.Err()
}

func (s *CatalogStore) Hospital(ctx context.Context, id string) (model.Hospital, error) {
	h, err := scanHospital(s.pool.QueryRow(ctx, hospitalSelect+` WHERE id = $1`, id))
	return h, missing(err, catalog.ErrHospitalNotFound)
}

func (s *CatalogStore) SaveHospital(ctx context.Context, h *model.Hospital) error {
	if h.ID == "" {
		return s.pool.QueryRow(ctx, `
			INSERT INTO hospitals (name, address, phone, email, description, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id::text, rating, review_count, created_at
		`, h.Name, h.Address, h.Phone, h.Email, h.Description, h.IsActive,
		).Scan(&h.ID, &h.Rating, &h.ReviewCount, &h.CreatedAt)
	}
	err := s.pool.QueryRow(ctx, `
		UPDATE hospitals
		SET name = $2, address = $3, phone = $4, email = $5, description = $6, is_active = $7
		WHERE id = $1
		RETURNING rating, review_count, created_at
	`, h.ID, h.Name, h.Address, h.Phone, h.Email, h.Description, h.IsActive,
	).Scan(&h.Rating, &h.ReviewCount, &h.CreatedAt)
	return missing(err, catalog.ErrHospitalNotFound)
}

func (s *CatalogStore) ListSpecialties(ctx context.Context, f catalog.Filter) ([]model.Specialty, error) {
	w := &where{}
	if f.Search != "" {
		w.add("name ILIKE ?", likePattern(f.Search))
	}
	if f.ActiveOnly {
		w.add("is_active = ?", true)
	}
	rows, err := s.pool.Query(ctx, `SELECT id::text, name, description, is_active FROM specialties`+w.String()+` ORDER BY name ASC`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Specialty{}
	for rows.Next() {
		var sp model.Specialty
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Description, &sp.IsActive); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *CatalogStore) Specialty(ctx context.Context, id string) (model.Specialty, error) {
	var sp model.Specialty
	err := s.pool.QueryRow(ctx, `SELECT id::text, name, description, is_active FROM specialties WHERE id = $1`, id).
		Scan(&sp.ID, &sp.Name, &sp.Description, &sp.IsActive)
	return sp, missing(err, catalog.ErrSpecialtyNotFound)
}

func (s *CatalogStore) SaveSpecialty(ctx context.Context, sp *model.Specialty) error {
	var err error
	if sp.ID == "" {
		err = s.pool.QueryRow(ctx, `
			INSERT INTO specialties (name, description, is_active) VALUES ($1, $2, $3)
			RETURNING id::text
		`, sp.Name, sp.Description, sp.IsActive).Scan(&sp.ID)
	} else {
		var tag string
		err = s.pool.QueryRow(ctx, `
			UPDATE specialties SET name = $2, description = $3, is_active = $4 WHERE id = $1
			RETURNING id::text
		`, sp.ID, sp.Name, sp.Description, sp.IsActive).Scan(&tag)
	}
	if db.IsUniqueViolation(err) {
		return catalog.ErrDuplicateName
	}
	return missing(err, catalog.ErrSpecialtyNotFound)
}

const serviceSelect = `
	SELECT s.id::text, s.name, s.description, s.price, s.duration_minutes,
		COALESCE(s.specialty_id::text, ''), COALESCE(sp.name, ''), s.is_active
	FROM services s
	LEFT JOIN specialties sp ON sp.id = s.specialty_id`

func scanService(row rowScanner) (model.Service, error) {
	var (
		svc                        model.Service
		specialtyID, specialtyName string
	)
	err := row.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.Price, &svc.DurationMinutes,
		&specialtyID, &specialtyName, &svc.IsActive)
	if err != nil {
		return model.Service{}, err
	}
	if specialtyID != "" {
		svc.Specialty = model.Populated(model.Specialty{ID: specialtyID, Name: specialtyName, IsActive: true})
	}
	return svc, nil
}

func (s *CatalogStore) ListServices(ctx context.Context, f catalog.Filter) ([]model.Service, int, error) {
	w := &where{}
	if f.Search != "" {
		w.add("s.name ILIKE ?", likePattern(f.Search))
	}
	if f.SpecialtyID != "" {
		w.add("s.specialty_id = ?", f.SpecialtyID)
	}
	if f.ActiveOnly {
		w.add("s.is_active = ?", true)
	}
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM services s`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, missing(err, catalog.ErrSpecialtyNotFound)
	}
	rows, err := s.pool.Query(ctx, serviceSelect+w.String()+` ORDER BY s.name ASC`+w.page(f.Limit, f.Offset), w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Service{}
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, svc)
	}
	return out, total, rows.Err()
}

func (s *CatalogStore) Service(ctx context.Context, id string) (model.Service, error) {
	svc, err := scanService(s.pool.QueryRow(ctx, serviceSelect+` WHERE s.id = $1`, id))
	return svc, missing(err, catalog.ErrServiceNotFound)
}

func (s *CatalogStore) SaveService(ctx context.Context, svc *model.Service) error {
	if svc.ID == "" {
		return s.pool.QueryRow(ctx, `
			INSERT INTO services (name, description, price, duration_minutes, specialty_id, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id::text
		`, svc.Name, svc.Description, svc.Price, svc.DurationMinutes, nullable(svc.Specialty.ID()), svc.IsActive,
		).Scan(&svc.ID)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE services
		SET name = $2, description = $3, price = $4, duration_minutes = $5, specialty_id = $6, is_active = $7
		WHERE id = $1
	`, svc.ID, svc.Name, svc.Description, svc.Price, svc.DurationMinutes, nullable(svc.Specialty.ID()), svc.IsActive)
	if err != nil {
		return missing(err, catalog.ErrServiceNotFound)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrServiceNotFound
	}
	return nil
}

// A doctor's name and email live on the user row that shares its id.
const doctorSelect = `
	SELECT d.id::text, u.name, u.email,
		COALESCE(d.hospital_id::text, ''), COALESCE(h.name, ''),
		COALESCE(d.specialty_id::text, ''), COALESCE(sp.name, ''),
		d.consultation_fee, d.bio, d.working_hours, d.is_active AND NOT u.is_locked
	FROM doctors d
	JOIN users u ON u.id = d.id
	LEFT JOIN hospitals h ON h.id = d.hospital_id
	LEFT JOIN specialties sp ON sp.id = d.specialty_id`

func scanDoctor(row rowScanner) (model.Doctor, error) {
	var (
		d                          model.Doctor
		hospitalID, hospitalName   string
		specialtyID, specialtyName string
		hours                      []byte
	)
	err := row.Scan(&d.ID, &d.Name, &d.Email, &hospitalID, &hospitalName, &specialtyID, &specialtyName,
		&d.ConsultationFee, &d.Bio, &hours, &d.IsActive)
	if err != nil {
		return model.Doctor{}, err
	}
	if err := json.Unmarshal(hours, &d.WorkingHours); err != nil {
		return model.Doctor{}, err
	}
	if d.WorkingHours == nil {
		d.WorkingHours = []model.WorkingHours{}
	}
	if hospitalID != "" {
		d.Hospital = model.Populated(model.Hospital{ID: hospitalID, Name: hospitalName})
	}
	if specialtyID != "" {
		d.Specialty = model.Populated(model.Specialty{ID: specialtyID, Name: specialtyName})
	}
	return d, nil
}

func (s *CatalogStore) ListDoctors(ctx context.Context, f catalog.Filter) ([]model.Doctor, int, error) {
	w := &where{}
	if f.Search != "" {
		w.add("u.name ILIKE ?", likePattern(f.Search))
	}
	if f.HospitalID != "" {
		w.add("d.hospital_id = ?", f.HospitalID)
	}
	if f.SpecialtyID != "" {
		w.add("d.specialty_id = ?", f.SpecialtyID)
	}
	if f.ActiveOnly {
		w.add("d.is_active = ? AND NOT u.is_locked", true)
	}
	var total int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM doctors d JOIN users u ON u.id = d.id`+w.String(), w.args...).Scan(&total)
	if err != nil {
		return nil, 0, missing(err, catalog.ErrDoctorNotFound)
	}
	rows, err := s.pool.Query(ctx, doctorSelect+w.String()+` ORDER BY u.name ASC`+w.page(f.Limit, f.Offset), w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (s *CatalogStore) Doctor(ctx context.Context, id string) (model.Doctor, error) {
	d, err := scanDoctor(s.pool.QueryRow(ctx, doctorSelect+` WHERE d.id = $1`, id))
	return d, missing(err, catalog.ErrDoctorNotFound)
}

func (s *CatalogStore) SaveDoctor(ctx context.Context, d *model.Doctor) error {
	hours := d.WorkingHours
	if hours == nil {
		hours = []model.WorkingHours{}
	}
	raw, err := json.Marshal(hours)
	if err != nil {
		return err
	}
	var roleType model.RoleType
	err = s.pool.QueryRow(ctx, `SELECT role_type FROM users WHERE id = $1`, d.ID).Scan(&roleType)
	if err != nil {
		return missing(err, catalog.ErrDoctorNotFound)
	}
	if roleType != model.RoleDoctor {
		return catalog.ErrNotADoctor
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO doctors (id, hospital_id, specialty_id, consultation_fee, bio, working_hours, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET hospital_id = EXCLUDED.hospital_id,
			specialty_id = EXCLUDED.specialty_id,
			consultation_fee = EXCLUDED.consultation_fee,
			bio = EXCLUDED.bio,
			working_hours = EXCLUDED.working_hours,
			is_active = EXCLUDED.is_active
	`, d.ID, nullable(d.Hospital.ID()), nullable(d.Specialty.ID()), d.ConsultationFee, d.Bio, string(raw), d.IsActive)
	return err
}

func (s *CatalogStore) MissingServices(ctx context.Context, ids []string) ([]string, error) {
	return s.missingIDs(ctx, "services", ids)
}

func (s *CatalogStore) MissingSpecialties(ctx context.Context, ids []string) ([]string, error) {
	return s.missingIDs(ctx, "specialties", ids)
}

// missingIDs returns the ids with no row in table. Malformed ids count as missing.
func (s *CatalogStore) missingIDs(ctx context.Context, table string, ids []string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT want.id
		FROM unnest($1::text[]) AS want(id)
		WHERE NOT EXISTS (SELECT 1 FROM `+table+` t WHERE t.id::text = lower(want.id))
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
