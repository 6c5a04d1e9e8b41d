package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestNewAppointmentEvent(t *testing.T) {
	at := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	evt, err := NewAppointmentEvent(PaymentCompleted, AppointmentPayload{
		AppointmentID: "a-1",
		PatientID:     "u-1",
		DoctorID:      "d-1",
		Status:        "confirmed",
		TotalAmount:   270000,
		CouponCode:    "SAVE10",
		OccurredAt:    at,
	})
	if err != nil {
		t.Fatalf("NewAppointmentEvent: %v", err)
	}
	if evt.AggregateType != "appointment" || evt.AggregateID != "a-1" || evt.EventType != PaymentCompleted {
		t.Fatalf("unexpected envelope: %+v", evt)
	}
	var got map[string]any
	if err := json.Unmarshal(evt.Payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got["coupon_code"] != "SAVE10" || got["total_amount"].(float64) != 270000 {
		t.Fatalf("unexpected payload: %v", got)
	}
	if _, ok := got["reason"]; ok {
		t.Fatal("empty reason should be omitted")
	}
}

func TestToMessage(t *testing.T) {
	msg := toMessage(context.Background(), Record{
		EventID:     "e-1",
		AggregateID: "a-1",
		EventType:   AppointmentBooked,
		Payload:     []byte(`{}`),
	})
	if msg.Topic != AppointmentBooked || string(msg.Key) != "a-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event_id"] != "e-1" || headers["event_type"] != AppointmentBooked {
		t.Fatalf("unexpected headers: %v", headers)
	}
}
