// Package catalog manages hospitals, specialties, services and doctor profiles.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

var (
	ErrHospitalNotFound  = errors.New("hospital not found")
	ErrSpecialtyNotFound = errors.New("specialty not found")
	ErrServiceNotFound   = errors.New("service not found")
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrDuplicateName     = errors.New("name already exists")
	ErrNotADoctor        = errors.New("user is not a doctor")
)

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type Filter struct {
	Search      string
	HospitalID  string
	SpecialtyID string
	ActiveOnly  bool
	Limit       int
	Offset      int
}

// Store persists the catalog. Save methods insert when the id is empty and update otherwise.
// Rating fields of a hospital are owned by reviews and are never written by SaveHospital.
type Store interface {
	ListHospitals(ctx context.Context, f Filter) ([]model.Hospital, int, error)
	Hospital(ctx context.Context, id string) (model.Hospital, error)
	SaveHospital(ctx context.Context, h *model.Hospital) error

	ListSpecialties(ctx context.Context, f Filter) ([]model.Specialty, error)
	Specialty(ctx context.Context, id string) (model.Specialty, error)
	SaveSpecialty(ctx context.Context, sp *model.Specialty) error

	ListServices(ctx context.Context, f Filter) ([]model.Service, int, error)
	Service(ctx context.Context, id string) (model.Service, error)
	SaveService(ctx context.Context, svc *model.Service) error

	ListDoctors(ctx context.Context, f Filter) ([]model.Doctor, int, error)
	Doctor(ctx context.Context, id string) (model.Doctor, error)
	// SaveDoctor upserts the profile of the doctor user d.ID. It returns ErrNotADoctor
	// when that user's roleType is not doctor.
	SaveDoctor(ctx context.Context, d *model.Doctor) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func page(f Filter) Filter {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (s *Service) Hospitals(ctx context.Context, f Filter) ([]model.Hospital, int, error) {
	return s.store.ListHospitals(ctx, page(f))
}

func (s *Service) Hospital(ctx context.Context, id string) (model.Hospital, error) {
	return s.store.Hospital(ctx, id)
}

func (s *Service) SaveHospital(ctx context.Context, h *model.Hospital) error {
	h.Name = strings.TrimSpace(h.Name)
	h.Email = strings.TrimSpace(h.Email)
	if h.Name == "" {
		return invalid("hospital name is required")
	}
	if h.Email != "" {
		if _, err := mail.ParseAddress(h.Email); err != nil {
			return invalid("invalid hospital email %q", h.Email)
		}
	}
	return s.store.SaveHospital(ctx, h)
}

func (s *Service) Specialties(ctx context.Context, f Filter) ([]model.Specialty, error) {
	return s.store.ListSpecialties(ctx, f)
}

func (s *Service) SaveSpecialty(ctx context.Context, sp *model.Specialty) error {
	sp.Name = strings.TrimSpace(sp.Name)
	if sp.Name == "" {
		return invalid("specialty name is required")
	}
	return s.store.SaveSpecialty(ctx, sp)
}

func (s *Service) Services(ctx context.Context, f Filter) ([]model.Service, int, error) {
	return s.store.ListServices(ctx, page(f))
}

func (s *Service) Service(ctx context.Context, id string) (model.Service, error) {
	return s.store.Service(ctx, id)
}

func (s *Service) SaveService(ctx context.Context, svc *model.Service) error {
	svc.Name = strings.TrimSpace(svc.Name)
	switch {
	case svc.Name == "":
		return invalid("service name is required")
	case svc.Price < 0:
		return invalid("price must not be negative")
	case svc.DurationMinutes <= 0 || svc.DurationMinutes > 8*60:
		return invalid("durationMinutes must be between 1 and 480")
	}
	if !svc.Specialty.IsZero() {
		if _, err := s.store.Specialty(ctx, svc.Specialty.ID()); err != nil {
			return err
		}
	}
	return s.store.SaveService(ctx, svc)
}

func (s *Service) Doctors(ctx context.Context, f Filter) ([]model.Doctor, int, error) {
	return s.store.ListDoctors(ctx, page(f))
}

func (s *Service) Doctor(ctx context.Context, id string) (model.Doctor, error) {
	return s.store.Doctor(ctx, id)
}

func (s *Service) SaveDoctor(ctx context.Context, d *model.Doctor) error {
	if d.ConsultationFee < 0 {
		return invalid("consultationFee must not be negative")
	}
	if err := CheckWorkingHours(d.WorkingHours); err != nil {
		return err
	}
	if !d.Hospital.IsZero() {
		if _, err := s.store.Hospital(ctx, d.Hospital.ID()); err != nil {
			return err
		}
	}
	if !d.Specialty.IsZero() {
		if _, err := s.store.Specialty(ctx, d.Specialty.ID()); err != nil {
			return err
		}
	}
	return s.store.SaveDoctor(ctx, d)
}

// CheckWorkingHours rejects malformed or overlapping weekly windows.
func CheckWorkingHours(hours []model.WorkingHours) error {
	type span struct{ start, end int }
	byDay := map[time.Weekday][]span{}
	for _, wh := range hours {
		if wh.Weekday < time.Sunday || wh.Weekday > time.Saturday {
			return invalid("invalid weekday %d", wh.Weekday)
		}
		start, err := minutes(wh.Start)
		if err != nil {
			return err
		}
		end, err := minutes(wh.End)
		if err != nil {
			return err
		}
		if end <= start {
			return invalid("working hours on %s end before they start", wh.Weekday)
		}
		for _, other := range byDay[wh.Weekday] {
			if start < other.end && other.start < end {
				return invalid("working hours on %s overlap", wh.Weekday)
			}
		}
		byDay[wh.Weekday] = append(byDay[wh.Weekday], span{start, end})
	}
	return nil
}

func minutes(hhmm string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return 0, invalid("invalid time %q, expected HH:MM", hhmm)
	}
	return t.Hour()*60 + t.Minute(), nil
}
