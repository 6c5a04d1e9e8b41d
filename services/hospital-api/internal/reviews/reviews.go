// Package reviews handles hospital reviews left after completed appointments.
package reviews

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/appointments"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

const TypeHospital = "hospital"

var (
	ErrNotFound        = errors.New("review not found")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrNotCompleted    = errors.New("only completed appointments can be reviewed")
	ErrAlreadyReviewed = errors.New("appointment has already been reviewed")
	ErrNoHospital      = errors.New("appointment has no hospital to review")
	ErrForbidden       = errors.New("review belongs to another user")
)

// Mean is the arithmetic mean of ratings rounded to one decimal, 0 for none.
func Mean(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return math.Round(float64(sum)/float64(len(ratings))*10) / 10
}

// CheckEligibility reports whether userID may review a.
func CheckEligibility(a model.Appointment, userID string) error {
	if a.Patient.ID() != userID {
		return appointments.ErrNotOwner
	}
	if a.Status != model.StatusCompleted {
		return ErrNotCompleted
	}
	if a.HasReview {
		return ErrAlreadyReviewed
	}
	if a.Hospital.IsZero() {
		return ErrNoHospital
	}
	return nil
}

// Tx is the transactional view the service writes through.
type Tx interface {
	AppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	MarkReviewed(ctx context.Context, appointmentID string, reviewed bool) error
	InsertReview(ctx context.Context, r *model.Review) error
	GetReviewForUpdate(ctx context.Context, id string) (model.Review, error)
	DeleteReview(ctx context.Context, id string) error
	// LockHospital holds the hospital row until commit so concurrent recomputes serialize.
	LockHospital(ctx context.Context, hospitalID string) error
	HospitalRatings(ctx context.Context, hospitalID string) ([]int, error)
	SetHospitalRating(ctx context.Context, hospitalID string, rating float64, count int) error
}

type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
	ListByHospital(ctx context.Context, hospitalID string, limit, offset int) ([]model.Review, int, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// Create stores a review of the appointment's hospital and recomputes the hospital
// rating in the same transaction.
func (s *Service) Create(ctx context.Context, appointmentID, userID string, rating int, comment string) (model.Review, error) {
	if rating < 1 || rating > 5 {
		return model.Review{}, ErrInvalidRating
	}
	var out model.Review
	err := s.store.WithTx(ctx, func(tx Tx) error {
		a, err := tx.AppointmentForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if err := CheckEligibility(a, userID); err != nil {
			return err
		}
		out = model.Review{
			Type:          TypeHospital,
			Hospital:      model.RefOf[model.Hospital](a.Hospital.ID()),
			AppointmentID: a.ID,
			User:          model.RefOf[model.User](userID),
			Rating:        rating,
			Comment:       strings.TrimSpace(comment),
			CreatedAt:     s.now().UTC(),
		}
		if err := tx.InsertReview(ctx, &out); err != nil {
			return err
		}
		if err := tx.MarkReviewed(ctx, a.ID, true); err != nil {
			return err
		}
		return recompute(ctx, tx, a.Hospital.ID())
	})
	if err != nil {
		return model.Review{}, err
	}
	s.logger.Info("review created", "review_id", out.ID, "hospital_id", out.Hospital.ID(), "rating", rating)
	return out, nil
}

// Delete removes a review of hospitalID. Only the author may delete unless moderate is set.
func (s *Service) Delete(ctx context.Context, hospitalID, reviewID, userID string, moderate bool) error {
	return s.store.WithTx(ctx, func(tx Tx) error {
		r, err := tx.GetReviewForUpdate(ctx, reviewID)
		if err != nil {
			return err
		}
		if r.Hospital.ID() != hospitalID {
			return ErrNotFound
		}
		if !moderate && r.User.ID() != userID {
			return ErrForbidden
		}
		if err := tx.DeleteReview(ctx, reviewID); err != nil {
			return err
		}
		if r.AppointmentID != "" {
			if err := tx.MarkReviewed(ctx, r.AppointmentID, false); err != nil {
				return err
			}
		}
		return recompute(ctx, tx, hospitalID)
	})
}

func (s *Service) ListByHospital(ctx context.Context, hospitalID string, limit, offset int) ([]model.Review, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.store.ListByHospital(ctx, hospitalID, limit, max(offset, 0))
}

// recompute takes the hospital lock before reading ratings, so the read sees every
// review committed by a transaction that held the lock before it.
func recompute(ctx context.Context, tx Tx, hospitalID string) error {
	if err := tx.LockHospital(ctx, hospitalID); err != nil {
		return err
	}
	ratings, err := tx.HospitalRatings(ctx, hospitalID)
	if err != nil {
		return err
	}
	return tx.SetHospitalRating(ctx, hospitalID, Mean(ratings), len(ratings))
}
