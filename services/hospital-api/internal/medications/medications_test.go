package medications

import (
	"context"
	"errors"
	"testing"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

type memStore struct {
	Store
	rows map[string]model.Medication
}

func (m *memStore) Get(_ context.Context, id string) (model.Medication, error) {
	row, ok := m.rows[id]
	if !ok {
		return model.Medication{}, ErrNotFound
	}
	return row, nil
}

func (m *memStore) Insert(_ context.Context, med *model.Medication) error {
	for _, row := range m.rows {
		if row.Name == med.Name {
			return ErrDuplicateName
		}
	}
	med.ID = "m" + med.Name
	m.rows[med.ID] = *med
	return nil
}

func (m *memStore) Update(_ context.Context, med *model.Medication) error {
	m.rows[med.ID] = *med
	return nil
}

func ptr[T any](v T) *T { return &v }

func TestCreateDefaultsActive(t *testing.T) {
	svc := NewService(&memStore{rows: map[string]model.Medication{}})
	m, err := svc.Create(context.Background(), Patch{Name: ptr(" Paracetamol "), UnitPrice: ptr(int64(2000)), Stock: ptr(10)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !m.IsActive || m.Name != "Paracetamol" || m.UnitPrice != 2000 {
		t.Fatalf("medication = %+v", m)
	}
	if _, err := svc.Create(context.Background(), Patch{Name: ptr("Paracetamol")}); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("duplicate err = %v", err)
	}
}

func TestPatchValidation(t *testing.T) {
	svc := NewService(&memStore{rows: map[string]model.Medication{}})
	cases := []Patch{
		{},
		{Name: ptr("  ")},
		{Name: ptr("Ibuprofen"), UnitPrice: ptr(int64(-1))},
		{Name: ptr("Ibuprofen"), Stock: ptr(-3)},
	}
	for _, p := range cases {
		var ve *ValidationError
		if _, err := svc.Create(context.Background(), p); !errors.As(err, &ve) {
			t.Fatalf("Create(%+v) err = %v", p, err)
		}
	}
}

func TestUpdateKeepsUntouchedFields(t *testing.T) {
	store := &memStore{rows: map[string]model.Medication{
		"m1": {ID: "m1", Name: "Amoxicillin", Strength: "500mg", UnitPrice: 3500, Stock: 40, IsActive: true},
	}}
	svc := NewService(store)

	m, err := svc.Update(context.Background(), "m1", Patch{Stock: ptr(12), IsActive: ptr(false)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if m.Stock != 12 || m.IsActive || m.Strength != "500mg" || m.UnitPrice != 3500 {
		t.Fatalf("medication = %+v", m)
	}
	if _, err := svc.Update(context.Background(), "nope", Patch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}
