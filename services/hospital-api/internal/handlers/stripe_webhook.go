package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/medibook/libs/httpx"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/payments"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

type StripeEvents interface {
	ApplyStripeEvent(ctx context.Context, evt stripe.Event, raw []byte) (payments.EventOutcome, error)
}

// StripeWebhookHandler receives Stripe events. There is no JWT on this route; the
// signature is the authentication.
type StripeWebhookHandler struct {
	events    StripeEvents
	secret    string
	tolerance time.Duration
	logger    *slog.Logger
}

func NewStripeWebhookHandler(events StripeEvents, secret string, tolerance time.Duration, logger *slog.Logger) *StripeWebhookHandler {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeWebhookHandler{events: events, secret: strings.TrimSpace(secret), tolerance: tolerance, logger: logger}
}

func (h *StripeWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		httpx.WriteMessage(w, http.StatusServiceUnavailable, "stripe webhook not configured")
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "missing Stripe-Signature header")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.secret, h.tolerance)
	if err != nil {
		h.logger.Warn("stripe webhook rejected", "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid signature")
		return
	}

	h.logger.Info("payment provider event received",
		"provider", payments.ProviderStripe,
		"provider_event_id", evt.ID,
		"event_type", string(evt.Type),
		"occurred_at", time.Unix(evt.Created, 0).UTC().Format(time.RFC3339),
	)
	outcome, err := h.events.ApplyStripeEvent(r.Context(), evt, body)
	if err != nil {
		// A 5xx makes Stripe retry; the provider event row rolled back with the failure.
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]string{"status": string(outcome)})
}
