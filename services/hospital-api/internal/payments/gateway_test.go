package payments

import (
	"testing"

	"github.com/stripe/stripe-go/v79"
)

func TestStateOf(t *testing.T) {
	st := stateOf(&stripe.CheckoutSession{
		ID:                "cs_1",
		ClientReferenceID: "a-1",
		PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
		PaymentIntent:     &stripe.PaymentIntent{ID: "pi_1"},
	})
	if st.AppointmentID != "a-1" || !st.Paid || st.PaymentRef != "pi_1" || st.Expired {
		t.Fatalf("unexpected state: %+v", st)
	}

	st = stateOf(&stripe.CheckoutSession{
		ID:       "cs_2",
		Status:   stripe.CheckoutSessionStatusExpired,
		Metadata: map[string]string{"appointment_id": " a-2 "},
	})
	if st.AppointmentID != "a-2" || st.Paid || !st.Expired || st.PaymentRef != "cs_2" {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestWithSession(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"https://app/pay/ok", "https://app/pay/ok?session_id={CHECKOUT_SESSION_ID}"},
		{"https://app/pay?x=1", "https://app/pay?x=1&session_id={CHECKOUT_SESSION_ID}"},
		{"https://app/{CHECKOUT_SESSION_ID}", "https://app/{CHECKOUT_SESSION_ID}"},
	}
	for _, tc := range cases {
		if got := withSession(tc.in); got != tc.want {
			t.Fatalf("withSession(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewStripeGatewayDisabledWithoutKey(t *testing.T) {
	if g := NewStripeGateway(StripeConfig{SecretKey: "  "}); g != nil {
		t.Fatal("expected nil gateway without a key")
	}
}
