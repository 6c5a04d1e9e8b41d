package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/medibook/libs/db"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/coupons"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
)

type CouponStore struct {
	pool *db.Pool
}

var _ coupons.Store = (*CouponStore)(nil)

const couponSelect = `
	SELECT id::text, code, description, discount_type, discount_value, max_discount, min_purchase,
		start_date, end_date, usage_limit, used_count, is_active,
		applicable_services::text[], applicable_specialties::text[],
		COALESCE(created_by::text, ''), created_at, updated_at
	FROM coupons`

func scanCoupon(row rowScanner) (model.Coupon, error) {
	var (
		c                     model.Coupon
		services, specialties []string
	)
	err := row.Scan(&c.ID, &c.Code, &c.Description, &c.DiscountType, &c.DiscountValue, &c.MaxDiscount, &c.MinPurchase,
		&c.StartDate, &c.EndDate, &c.UsageLimit, &c.UsedCount, &c.IsActive,
		&services, &specialties, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return model.Coupon{}, err
	}
	c.ApplicableServices = model.RefsOf[model.Service](services)
	c.ApplicableSpecialties = model.RefsOf[model.Specialty](specialties)
	return c, nil
}

// FindByCode looks up an active coupon; inactive ones read as missing.
func (s *CouponStore) FindByCode(ctx context.Context, code string) (model.Coupon, error) {
	c, err := scanCoupon(s.pool.QueryRow(ctx, couponSelect+` WHERE code = $1 AND is_active`, code))
	return c, missing(err, coupons.ErrNotFound)
}

func (s *CouponStore) Get(ctx context.Context, id string) (model.Coupon, error) {
	c, err := scanCoupon(s.pool.QueryRow(ctx, couponSelect+` WHERE id = $1`, id))
	return c, missing(err, coupons.ErrNotFound)
}

func (s *CouponStore) List(ctx context.Context, f coupons.ListFilter) ([]model.Coupon, int, error) {
	w := &where{}
	if f.Search != "" {
		w.add("(code ILIKE ? OR description ILIKE ?)", likePattern(f.Search))
	}
	if f.Active != nil {
		w.add("is_active = ?", *f.Active)
	}
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM coupons`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, couponSelect+w.String()+` ORDER BY created_at DESC`+w.page(f.Limit, f.Offset), w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Coupon{}
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (s *CouponStore) Insert(ctx context.Context, c *model.Coupon) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO coupons
			(code, description, discount_type, discount_value, max_discount, min_purchase,
			 start_date, end_date, usage_limit, is_active, applicable_services, applicable_specialties, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::text[]::uuid[], $12::text[]::uuid[], $13)
		RETURNING id::text, used_count, created_at, updated_at
	`, c.Code, c.Description, string(c.DiscountType), c.DiscountValue, c.MaxDiscount, c.MinPurchase,
		c.StartDate, c.EndDate, c.UsageLimit, c.IsActive,
		model.RefIDs(c.ApplicableServices), model.RefIDs(c.ApplicableSpecialties), nullable(c.CreatedBy),
	).Scan(&c.ID, &c.UsedCount, &c.CreatedAt, &c.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return coupons.ErrDuplicateCode
	}
	return err
}

// Update rewrites the definition. used_count is owned by redemptions and never written here.
func (s *CouponStore) Update(ctx context.Context, c *model.Coupon) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE coupons
		SET code = $2,
			description = $3,
			discount_type = $4,
			discount_value = $5,
			max_discount = $6,
			min_purchase = $7,
			start_date = $8,
			end_date = $9,
			usage_limit = $10,
			is_active = $11,
			applicable_services = $12::text[]::uuid[],
			applicable_specialties = $13::text[]::uuid[],
			updated_at = now()
		WHERE id = $1
		RETURNING used_count, updated_at
	`, c.ID, c.Code, c.Description, string(c.DiscountType), c.DiscountValue, c.MaxDiscount, c.MinPurchase,
		c.StartDate, c.EndDate, c.UsageLimit, c.IsActive,
		model.RefIDs(c.ApplicableServices), model.RefIDs(c.ApplicableSpecialties),
	).Scan(&c.UsedCount, &c.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return coupons.ErrDuplicateCode
	}
	return missing(err, coupons.ErrNotFound)
}

// Remove decides between hard and soft delete while holding the row lock, so a
// redemption committing concurrently cannot be lost.
func (s *CouponStore) Remove(ctx context.Context, id string) (model.Coupon, bool, error) {
	var (
		c    model.Coupon
		soft bool
	)
	err := s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		c, err = scanCoupon(tx.QueryRow(ctx, couponSelect+` WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return missing(err, coupons.ErrNotFound)
		}
		soft = coupons.ShouldSoftDelete(c)
		if soft {
			c.IsActive = false
			_, err = tx.Exec(ctx, `UPDATE coupons SET is_active = false, updated_at = now() WHERE id = $1`, id)
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return model.Coupon{}, false, err
	}
	return c, soft, nil
}
