// Package medications is the hospital's drug catalogue.
package medications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

var (
	ErrNotFound      = errors.New("medication not found")
	ErrDuplicateName = errors.New("a medication with this name already exists")
)

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

type Filter struct {
	Search     string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Store persists medications. Insert and Update return ErrDuplicateName on a name clash.
type Store interface {
	List(ctx context.Context, f Filter) ([]model.Medication, int, error)
	Get(ctx context.Context, id string) (model.Medication, error)
	Insert(ctx context.Context, m *model.Medication) error
	Update(ctx context.Context, m *model.Medication) error
	Delete(ctx context.Context, id string) error
}

type Patch struct {
	Name         *string `json:"name"`
	GenericName  *string `json:"genericName"`
	Form         *string `json:"form"`
	Strength     *string `json:"strength"`
	Manufacturer *string `json:"manufacturer"`
	Description  *string `json:"description"`
	UnitPrice    *int64  `json:"unitPrice"`
	Stock        *int    `json:"stock"`
	IsActive     *bool   `json:"isActive"`
}

func (p Patch) apply(m *model.Medication) error {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&m.Name, p.Name)
	set(&m.GenericName, p.GenericName)
	set(&m.Form, p.Form)
	set(&m.Strength, p.Strength)
	set(&m.Manufacturer, p.Manufacturer)
	set(&m.Description, p.Description)
	if p.UnitPrice != nil {
		m.UnitPrice = *p.UnitPrice
	}
	if p.Stock != nil {
		m.Stock = *p.Stock
	}
	if p.IsActive != nil {
		m.IsActive = *p.IsActive
	}

	switch {
	case m.Name == "":
		return &ValidationError{Msg: "medication name is required"}
	case m.UnitPrice < 0:
		return &ValidationError{Msg: "unitPrice must not be negative"}
	case m.Stock < 0:
		return &ValidationError{Msg: fmt.Sprintf("stock must not be negative, got %d", m.Stock)}
	}
	return nil
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) List(ctx context.Context, f Filter) ([]model.Medication, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, id string) (model.Medication, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, p Patch) (model.Medication, error) {
	m := model.Medication{IsActive: true}
	if err := p.apply(&m); err != nil {
		return model.Medication{}, err
	}
	if err := s.store.Insert(ctx, &m); err != nil {
		return model.Medication{}, err
	}
	return m, nil
}

func (s *Service) Update(ctx context.Context, id string, p Patch) (model.Medication, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Medication{}, err
	}
	if err := p.apply(&m); err != nil {
		return model.Medication{}, err
	}
	if err := s.store.Update(ctx, &m); err != nil {
		return model.Medication{}, err
	}
	return m, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}
