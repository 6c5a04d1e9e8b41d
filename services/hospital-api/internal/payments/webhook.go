package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/appointments"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"github.com/stripe/stripe-go/v79"
)

const ProviderStripe = "stripe"

// EventOutcome describes what ApplyStripeEvent did.
type EventOutcome string

const (
	OutcomeApplied   EventOutcome = "ok"
	OutcomeDuplicate EventOutcome = "duplicate"
	OutcomeIgnored   EventOutcome = "ignored"
)

// ApplyStripeEvent handles a verified Stripe event. The provider event row and its
// effect commit in one transaction so a replayed event is reported as a duplicate.
func (s *Service) ApplyStripeEvent(ctx context.Context, evt stripe.Event, raw []byte) (EventOutcome, error) {
	var (
		outcome = OutcomeIgnored
		conf    Confirmation
	)
	err := s.store.WithTx(ctx, func(tx Tx) error {
		fresh, err := tx.RecordProviderEvent(ctx, ProviderStripe, evt.ID, string(evt.Type), raw)
		if err != nil {
			return err
		}
		if !fresh {
			outcome = OutcomeDuplicate
			return nil
		}

		switch evt.Type {
		case "checkout.session.completed", "checkout.session.async_payment_succeeded":
			st, err := sessionFromEvent(evt)
			if err != nil {
				return err
			}
			if !st.Paid || st.AppointmentID == "" {
				s.logger.Warn("stripe: session not paid or missing appointment", "session_id", st.SessionID, "event_type", evt.Type)
				return nil
			}
			conf, err = s.confirm(ctx, tx, st.AppointmentID, model.PaymentStripe, st.PaymentRef, true)
			if errors.Is(err, appointments.ErrNotFound) {
				s.logger.Error("stripe: paid session for unknown appointment", "session_id", st.SessionID, "appointment_id", st.AppointmentID, "payment_ref", st.PaymentRef)
				return nil
			}
			if err != nil {
				return err
			}
			outcome = OutcomeApplied

		case "checkout.session.expired", "checkout.session.async_payment_failed":
			st, err := sessionFromEvent(evt)
			if err != nil {
				return err
			}
			if st.AppointmentID == "" {
				return nil
			}
			if err := s.expire(ctx, tx, st.AppointmentID, st.SessionID); err != nil {
				return err
			}
			outcome = OutcomeApplied
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if conf.Appointment.ID != "" {
		s.afterConfirm(ctx, conf)
	}
	s.logger.Info("payment provider event handled", "provider", ProviderStripe, "provider_event_id", evt.ID, "event_type", evt.Type, "outcome", outcome)
	return outcome, nil
}

func sessionFromEvent(evt stripe.Event) (SessionState, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
		return SessionState{}, fmt.Errorf("stripe: invalid checkout session payload: %w", err)
	}
	return stateOf(&sess), nil
}
