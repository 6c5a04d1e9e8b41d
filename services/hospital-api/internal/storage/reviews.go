package storage

import (
	"context"

	"github.com/md-rashed-zaman/medibook/libs/db"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/appointments"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/catalog"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/reviews"
)

type ReviewStore struct {
	*Store
}

var _ reviews.Store = (*ReviewStore)(nil)

func (s *ReviewStore) WithTx(ctx context.Context, fn func(reviews.Tx) error) error {
	return s.withTx(ctx, func(t *txn) error { return fn(t) })
}

// ListByHospital returns newest first with the author's name and avatar populated.
func (s *ReviewStore) ListByHospital(ctx context.Context, hospitalID string, limit, offset int) ([]model.Review, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM reviews WHERE hospital_id = $1`, hospitalID).Scan(&total)
	if err != nil {
		return nil, 0, missing(err, reviews.ErrNotFound)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT r.id::text, r.type, r.hospital_id::text, COALESCE(r.appointment_id::text, ''),
			r.user_id::text, r.rating, r.comment, r.created_at,
			u.name, u.avatar_key, u.avatar_url
		FROM reviews r
		JOIN users u ON u.id = r.user_id
		WHERE r.hospital_id = $1
		ORDER BY r.created_at DESC
		LIMIT $2 OFFSET $3
	`, hospitalID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Review{}
	for rows.Next() {
		var (
			r                    model.Review
			hospital, userID     string
			author               model.User
			avatarKey, avatarURL string
		)
		if err := rows.Scan(&r.ID, &r.Type, &hospital, &r.AppointmentID, &userID, &r.Rating, &r.Comment, &r.CreatedAt,
			&author.Name, &avatarKey, &avatarURL); err != nil {
			return nil, 0, err
		}
		r.Hospital = model.RefOf[model.Hospital](hospital)
		author.ID = userID
		if avatarURL != "" {
			author.Avatar = &model.Avatar{Key: avatarKey, URL: avatarURL}
		}
		r.User = model.Populated(author)
		out = append(out, r)
	}
	return out, total, rows.Err()
}

func (t *txn) MarkReviewed(ctx context.Context, appointmentID string, reviewed bool) error {
	_, err := t.tx.Exec(ctx, `UPDATE appointments SET has_review = $2 WHERE id = $1`, appointmentID, reviewed)
	return missing(err, appointments.ErrNotFound)
}

func (t *txn) InsertReview(ctx context.Context, r *model.Review) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO reviews (type, hospital_id, appointment_id, user_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text
	`, r.Type, r.Hospital.ID(), nullable(r.AppointmentID), r.User.ID(), r.Rating, r.Comment, r.CreatedAt).Scan(&r.ID)
	if db.IsUniqueViolation(err) {
		return reviews.ErrAlreadyReviewed
	}
	return err
}

func (t *txn) GetReviewForUpdate(ctx context.Context, id string) (model.Review, error) {
	var (
		r                model.Review
		hospital, userID string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id::text, type, hospital_id::text, COALESCE(appointment_id::text, ''), user_id::text,
			rating, comment, created_at
		FROM reviews
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&r.ID, &r.Type, &hospital, &r.AppointmentID, &userID, &r.Rating, &r.Comment, &r.CreatedAt)
	if err != nil {
		return model.Review{}, missing(err, reviews.ErrNotFound)
	}
	r.Hospital = model.RefOf[model.Hospital](hospital)
	r.User = model.RefOf[model.User](userID)
	return r, nil
}

func (t *txn) DeleteReview(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return missing(err, reviews.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return reviews.ErrNotFound
	}
	return nil
}

func (t *txn) LockHospital(ctx context.Context, hospitalID string) error {
	var one int
	err := t.tx.QueryRow(ctx, `SELECT 1 FROM hospitals WHERE id = $1 FOR UPDATE`, hospitalID).Scan(&one)
	return missing(err, catalog.ErrHospitalNotFound)
}

func (t *txn) HospitalRatings(ctx context.Context, hospitalID string) ([]int, error) {
	rows, err := t.tx.Query(ctx, `SELECT rating FROM reviews WHERE hospital_id = $1`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var r int
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *txn) SetHospitalRating(ctx context.Context, hospitalID string, rating float64, count int) error {
	_, err := t.tx.Exec(ctx, `UPDATE hospitals SET rating = $2, review_count = $3 WHERE id = $1`, hospitalID, rating, count)
	return err
}
