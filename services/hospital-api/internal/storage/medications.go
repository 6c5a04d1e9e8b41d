package storage

import (
	"context"

	"github.com/md-rashed-zaman/medibook/libs/db"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/medications"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

type MedicationStore struct {
	pool *db.Pool
}

var _ medications.Store = (*MedicationStore)(nil)

const medicationSelect = `
	SELECT id::text, name, generic_name, form, strength, manufacturer, description,
		unit_price, stock, is_active, created_at, updated_at
	FROM medications`

func scanMedication(row rowScanner) (model.Medication, error) {
	var m model.Medication
	err := row.Scan(&m.ID, &m.Name, &m.GenericName, &m.Form, &m.Strength, &m.Manufacturer, &m.Description,
		&m.UnitPrice, &m.Stock, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (s *MedicationStore) List(ctx context.Context, f medications.Filter) ([]model.Medication, int, error) {
	w := &where{}
	if f.Search != "" {
		w.add("(name ILIKE ? OR generic_name ILIKE ?)", likePattern(f.Search))
	}
	if f.ActiveOnly {
		w.add("is_active = ?", true)
	}
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM medications`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, medicationSelect+w.String()+` ORDER BY name ASC`+w.page(f.Limit, f.Offset), w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Medication{}
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (s *MedicationStore) Get(ctx context.Context, id string) (model.Medication, error) {
	m, err := scanMedication(s.pool.QueryRow(ctx, medicationSelect+` WHERE id = $1`, id))
	return m, missing(err, medications.ErrNotFound)
}

func (s *MedicationStore) Insert(ctx context.Context, m *model.Medication) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO medications (name, generic_name, form, strength, manufacturer, description, unit_price, stock, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id::text, created_at, updated_at
	`, m.Name, m.GenericName, m.Form, m.Strength, m.Manufacturer, m.Description, m.UnitPrice, m.Stock, m.IsActive,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return medications.ErrDuplicateName
	}
	return err
}

func (s *MedicationStore) Update(ctx context.Context, m *model.Medication) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE medications
		SET name = $2, generic_name = $3, form = $4, strength = $5, manufacturer = $6, description = $7,
			unit_price = $8, stock = $9, is_active = $10, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, m.ID, m.Name, m.GenericName, m.Form, m.Strength, m.Manufacturer, m.Description, m.UnitPrice, m.Stock, m.IsActive,
	).Scan(&m.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return medications.ErrDuplicateName
	}
	return missing(err, medications.ErrNotFound)
}

func (s *MedicationStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM medications WHERE id = $1`, id)
	if err != nil {
		return missing(err, medications.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return medications.ErrNotFound
	}
	return nil
}
