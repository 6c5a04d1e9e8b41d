package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

const metaAppointmentID = "appointment_id"

type Checkout struct {
	SessionID string    `json:"sessionId"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionState is what the gateway currently knows about a checkout session.
type SessionState struct {
	SessionID     string
	AppointmentID string
	Paid          bool
	Expired       bool
	PaymentRef    string
}

type Gateway interface {
	CreateCheckout(ctx context.Context, a model.Appointment) (Checkout, error)
	Session(ctx context.Context, sessionID string) (SessionState, error)
}

type StripeConfig struct {
	SecretKey  string
	Currency   string
	SuccessURL string
	CancelURL  string
	// SessionTTL bounds how long a checkout stays open. Stripe accepts 30m to 24h.
	SessionTTL time.Duration
}

// StripeGateway creates Stripe Checkout sessions for appointments.
type StripeGateway struct {
	api        *client.API
	currency   string
	successURL string
	cancelURL  string
	ttl        time.Duration
}

// NewStripeGateway returns nil when no secret key is configured.
func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" {
		return nil
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "vnd"
	}
	ttl := cfg.SessionTTL
	if ttl < 30*time.Minute || ttl > 24*time.Hour {
		ttl = time.Hour
	}
	return &StripeGateway{
		api:        client.New(key, nil),
		currency:   currency,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		ttl:        ttl,
	}
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, a model.Appointment) (Checkout, error) {
	if a.Fees.TotalAmount <= 0 {
		return Checkout{}, errors.New("stripe: nothing to charge")
	}
	expires := time.Now().Add(g.ttl)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withSession(g.successURL)),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(a.ID),
		ExpiresAt:         stripe.Int64(expires.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(g.currency),
					// VND is a zero-decimal currency, so whole units go through unchanged.
					UnitAmount: stripe.Int64(a.Fees.TotalAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Appointment %s %s-%s", a.AppointmentDate, a.TimeSlot.Start, a.TimeSlot.End)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{metaAppointmentID: a.ID},
		},
	}
	params.Context = ctx
	params.AddMetadata(metaAppointmentID, a.ID)
	// One session per appointment amount; a retried request returns the same session.
	params.IdempotencyKey = stripe.String(fmt.Sprintf("checkout:%s:%d:%d", a.ID, a.Fees.TotalAmount, a.RescheduleCount))
	if u, ok := a.Patient.Value(); ok && u.Email != "" {
		params.CustomerEmail = stripe.String(u.Email)
	}

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("stripe checkout: %w", err)
	}
	return Checkout{SessionID: sess.ID, URL: sess.URL, ExpiresAt: time.Unix(sess.ExpiresAt, 0).UTC()}, nil
}

func (g *StripeGateway) Session(ctx context.Context, sessionID string) (SessionState, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return SessionState{}, fmt.Errorf("stripe session %s: %w", sessionID, err)
	}
	return stateOf(sess), nil
}

func stateOf(sess *stripe.CheckoutSession) SessionState {
	st := SessionState{
		SessionID:     sess.ID,
		AppointmentID: strings.TrimSpace(sess.Metadata[metaAppointmentID]),
		Paid:          sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Expired:       sess.Status == stripe.CheckoutSessionStatusExpired,
		PaymentRef:    sess.ID,
	}
	if st.AppointmentID == "" {
		st.AppointmentID = strings.TrimSpace(sess.ClientReferenceID)
	}
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		st.PaymentRef = sess.PaymentIntent.ID
	}
	return st
}

func withSession(successURL string) string {
	if successURL == "" || strings.Contains(successURL, "{CHECKOUT_SESSION_ID}") {
		return successURL
	}
	sep := "?"
	if strings.Contains(successURL, "?") {
		sep = "&"
	}
	return successURL + sep + "session_id={CHECKOUT_SESSION_ID}"
}
