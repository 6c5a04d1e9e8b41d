// Package payments confirms appointment payments and redeems their coupons atomically.
package payments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/appointments"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/outbox"
)

var (
	ErrNotPayable      = errors.New("appointment cannot be paid in its current status")
	ErrGatewayDisabled = errors.New("online payment is not configured")
)

// Tx is the transactional view of storage used by a confirmation.
type Tx interface {
	AppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	SavePayment(ctx context.Context, a model.Appointment) error
	// RedeemCoupon records one redemption of couponID for appointmentID and bumps the
	// coupon's usedCount. It reports false when the redemption already existed.
	RedeemCoupon(ctx context.Context, couponID, appointmentID string, at time.Time) (bool, error)
	// RecordProviderEvent reports false when the provider event was seen before.
	RecordProviderEvent(ctx context.Context, provider, eventID, eventType string, payload []byte) (bool, error)
	Emit(ctx context.Context, evt outbox.Event) error
}

type PendingCheckout struct {
	AppointmentID string
	SessionID     string
}

type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
	Get(ctx context.Context, id string) (model.Appointment, error)
	PendingCheckouts(ctx context.Context, olderThan time.Time, limit int) ([]PendingCheckout, error)
}

// CouponCache is told about redeemed codes so cached usage counts do not go stale.
type CouponCache interface {
	Invalidate(ctx context.Context, codes ...string)
}

// Confirmation is the outcome of Confirm.
type Confirmation struct {
	Appointment model.Appointment
	// AlreadyPaid is set when the appointment had been confirmed before; nothing was written.
	AlreadyPaid bool
	Redeemed    bool
	// RefundDue is set when captured money landed on a cancelled or no-show appointment.
	RefundDue bool
}

type Service struct {
	store   Store
	gateway Gateway
	coupons CouponCache
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store Store, gateway Gateway, coupons CouponCache, logger *slog.Logger) *Service {
	return &Service{store: store, gateway: gateway, coupons: coupons, logger: logger, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Confirm marks the appointment paid. The payment status, coupon redemption and
// outbox event commit together or not at all, and a repeated call is a no-op.
func (s *Service) Confirm(ctx context.Context, appointmentID string, method model.PaymentMethod, ref string) (Confirmation, error) {
	var out Confirmation
	err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		out, err = s.confirm(ctx, tx, appointmentID, method, ref, false)
		return err
	})
	if err != nil {
		return Confirmation{}, err
	}
	s.afterConfirm(ctx, out)
	return out, nil
}

// settle records money the gateway already captured. Unlike Confirm it accepts a
// cancelled or no-show appointment, which keeps its status and is flagged for refund.
func (s *Service) settle(ctx context.Context, appointmentID, ref string) (Confirmation, error) {
	var out Confirmation
	err := s.store.WithTx(ctx, func(tx Tx) error {
		var err error
		out, err = s.confirm(ctx, tx, appointmentID, model.PaymentStripe, ref, true)
		return err
	})
	if err != nil {
		return Confirmation{}, err
	}
	s.afterConfirm(ctx, out)
	return out, nil
}

func (s *Service) confirm(ctx context.Context, tx Tx, appointmentID string, method model.PaymentMethod, ref string, captured bool) (Confirmation, error) {
	a, err := tx.AppointmentForUpdate(ctx, appointmentID)
	if err != nil {
		return Confirmation{}, err
	}
	if a.PaymentStatus == model.PaymentCompleted {
		return Confirmation{Appointment: a, AlreadyPaid: true}, nil
	}
	if a.Status == model.StatusCancelled || a.Status == model.StatusNoShow {
		if !captured {
			return Confirmation{}, ErrNotPayable
		}
		return s.recordRefundDue(ctx, tx, a, method, ref)
	}

	now := s.now().UTC()
	a.PaymentStatus = model.PaymentCompleted
	a.PaymentMethod = method
	a.PaymentRef = strings.TrimSpace(ref)
	a.PaidAt = &now
	if a.Status == model.StatusPending || a.Status == model.StatusRescheduled {
		if err := appointments.Transition(&a, model.StatusConfirmed, now); err != nil {
			return Confirmation{}, err
		}
	}
	a.UpdatedAt = now
	if err := tx.SavePayment(ctx, a); err != nil {
		return Confirmation{}, err
	}

	redeemed := false
	if a.Coupon != nil && a.Coupon.ID != "" {
		if redeemed, err = tx.RedeemCoupon(ctx, a.Coupon.ID, a.ID, now); err != nil {
			return Confirmation{}, err
		}
	}

	evt, err := outbox.NewAppointmentEvent(outbox.PaymentCompleted, appointments.Payload(a, "", now))
	if err != nil {
		return Confirmation{}, err
	}
	if err := tx.Emit(ctx, evt); err != nil {
		return Confirmation{}, err
	}
	return Confirmation{Appointment: a, Redeemed: redeemed}, nil
}

// recordRefundDue stores the payment without touching status or redeeming the coupon.
func (s *Service) recordRefundDue(ctx context.Context, tx Tx, a model.Appointment, method model.PaymentMethod, ref string) (Confirmation, error) {
	now := s.now().UTC()
	a.PaymentStatus = model.PaymentCompleted
	a.PaymentMethod = method
	a.PaymentRef = strings.TrimSpace(ref)
	a.PaidAt = &now
	a.UpdatedAt = now
	if err := tx.SavePayment(ctx, a); err != nil {
		return Confirmation{}, err
	}
	evt, err := outbox.NewAppointmentEvent(outbox.PaymentRefundDue, appointments.Payload(a, "", now))
	if err != nil {
		return Confirmation{}, err
	}
	if err := tx.Emit(ctx, evt); err != nil {
		return Confirmation{}, err
	}
	return Confirmation{Appointment: a, RefundDue: true}, nil
}

func (s *Service) afterConfirm(ctx context.Context, c Confirmation) {
	if c.AlreadyPaid {
		return
	}
	if c.RefundDue {
		s.logger.Warn("payment captured for inactive appointment, refund due",
			"appointment_id", c.Appointment.ID,
			"status", c.Appointment.Status,
			"payment_ref", c.Appointment.PaymentRef,
			"amount", c.Appointment.Fees.TotalAmount,
		)
		return
	}
	if c.Redeemed && s.coupons != nil {
		s.coupons.Invalidate(ctx, c.Appointment.Coupon.Code)
	}
	s.logger.Info("appointment payment confirmed",
		"appointment_id", c.Appointment.ID,
		"method", c.Appointment.PaymentMethod,
		"amount", c.Appointment.Fees.TotalAmount,
		"coupon_redeemed", c.Redeemed,
	)
}

// StartCheckout opens a gateway checkout for the caller's appointment and marks the
// payment pending.
func (s *Service) StartCheckout(ctx context.Context, appointmentID, userID string, isAdmin bool) (Checkout, error) {
	if s.gateway == nil {
		return Checkout{}, ErrGatewayDisabled
	}
	a, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		return Checkout{}, err
	}
	if err := checkPayable(a, userID, isAdmin); err != nil {
		return Checkout{}, err
	}

	co, err := s.gateway.CreateCheckout(ctx, a)
	if err != nil {
		return Checkout{}, err
	}

	err = s.store.WithTx(ctx, func(tx Tx) error {
		locked, err := tx.AppointmentForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if locked.PaymentStatus == model.PaymentCompleted {
			return appointments.ErrAlreadyPaid
		}
		locked.PaymentStatus = model.PaymentPending
		locked.PaymentMethod = model.PaymentStripe
		locked.CheckoutSessionID = co.SessionID
		locked.UpdatedAt = s.now().UTC()
		return tx.SavePayment(ctx, locked)
	})
	if err != nil {
		return Checkout{}, err
	}
	s.logger.Info("checkout started", "appointment_id", a.ID, "session_id", co.SessionID, "amount", a.Fees.TotalAmount)
	return co, nil
}

func checkPayable(a model.Appointment, userID string, isAdmin bool) error {
	if !isAdmin && a.Patient.ID() != userID {
		return appointments.ErrNotOwner
	}
	if a.PaymentStatus == model.PaymentCompleted {
		return appointments.ErrAlreadyPaid
	}
	if appointments.IsTerminal(a.Status) {
		return ErrNotPayable
	}
	if a.Fees.TotalAmount <= 0 {
		return appointments.ErrNothingToPay
	}
	return nil
}

// expire reverts a pending checkout to unpaid when the session it was waiting on lapsed.
func (s *Service) expire(ctx context.Context, tx Tx, appointmentID, sessionID string) error {
	a, err := tx.AppointmentForUpdate(ctx, appointmentID)
	if err != nil {
		return err
	}
	if a.PaymentStatus != model.PaymentPending || a.CheckoutSessionID != sessionID {
		return nil
	}
	now := s.now().UTC()
	a.PaymentStatus = model.PaymentUnpaid
	a.CheckoutSessionID = ""
	a.UpdatedAt = now
	if err := tx.SavePayment(ctx, a); err != nil {
		return err
	}
	evt, err := outbox.NewAppointmentEvent(outbox.PaymentExpired, appointments.Payload(a, "", now))
	if err != nil {
		return err
	}
	return tx.Emit(ctx, evt)
}
