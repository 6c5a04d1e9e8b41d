package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/appointments"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/payments"
)

type PaymentStore struct {
	*Store
}

var _ payments.Store = (*PaymentStore)(nil)

func (s *PaymentStore) WithTx(ctx context.Context, fn func(payments.Tx) error) error {
	return s.withTx(ctx, func(t *txn) error { return fn(t) })
}

func (s *PaymentStore) Get(ctx context.Context, id string) (model.Appointment, error) {
	return s.Appointments().Get(ctx, id)
}

// PendingCheckouts lists appointments still waiting on a checkout session last touched before olderThan.
func (s *PaymentStore) PendingCheckouts(ctx context.Context, olderThan time.Time, limit int) ([]payments.PendingCheckout, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, checkout_session_id
		FROM appointments
		WHERE payment_status = 'pending'
			AND checkout_session_id <> ''
			AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payments.PendingCheckout
	for rows.Next() {
		var p payments.PendingCheckout
		if err := rows.Scan(&p.AppointmentID, &p.SessionID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePayment writes the payment fields and the status they may have moved.
func (t *txn) SavePayment(ctx context.Context, a model.Appointment) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			status_changed_at = $3,
			payment_status = $4,
			payment_method = $5,
			payment_ref = $6,
			checkout_session_id = $7,
			paid_at = $8,
			updated_at = $9
		WHERE id = $1
	`, a.ID, string(a.Status), a.StatusChangedAt, string(a.PaymentStatus), string(a.PaymentMethod),
		a.PaymentRef, a.CheckoutSessionID, a.PaidAt, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return appointments.ErrNotFound
	}
	return nil
}

// RedeemCoupon bumps used_count only when the (coupon, appointment) row is new.
func (t *txn) RedeemCoupon(ctx context.Context, couponID, appointmentID string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO coupon_redemptions (coupon_id, appointment_id, redeemed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (coupon_id, appointment_id) DO NOTHING
	`, couponID, appointmentID, at)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	_, err = t.tx.Exec(ctx, `
		UPDATE coupons
		SET used_count = used_count + 1,
			updated_at = $2
		WHERE id = $1
	`, couponID, at)
	return err == nil, err
}

func (t *txn) RecordProviderEvent(ctx context.Context, provider, eventID, eventType string, payload []byte) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO payment_provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, provider, eventID, eventType, jsonOrNil(payload))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func jsonOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
