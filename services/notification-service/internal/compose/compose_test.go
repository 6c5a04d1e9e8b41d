package compose

import (
	"strings"
	"testing"
)

func sample() Appointment {
	return Appointment{
		AppointmentID: "a1",
		PatientID:     "p1",
		PatientName:   "Nguyen Van A",
		DoctorID:      "d1",
		Date:          "2026-03-02",
		Start:         "09:00",
		End:           "09:30",
		TotalAmount:   150000,
	}
}

func TestBookedNotifiesPatientAndDoctor(t *testing.T) {
	msgs := Messages(AppointmentBooked, sample())
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].To != Patient || msgs[0].UserID != "p1" || msgs[0].Link != "/appointments/a1" {
		t.Fatalf("patient message = %+v", msgs[0])
	}
	if !strings.Contains(msgs[0].Body, "2026-03-02 09:00-09:30") || !strings.Contains(msgs[0].Body, "₫") {
		t.Fatalf("patient body = %q", msgs[0].Body)
	}
	if msgs[1].To != Doctor || msgs[1].UserID != "d1" || !strings.Contains(msgs[1].Body, "Nguyen Van A") {
		t.Fatalf("doctor message = %+v", msgs[1])
	}
}

func TestCancelCarriesReason(t *testing.T) {
	a := sample()
	a.Reason = "feeling better"
	for _, m := range Messages(AppointmentCancelled, a) {
		if !strings.HasSuffix(m.Body, "Reason: feeling better.") {
			t.Fatalf("body = %q", m.Body)
		}
	}
}

func TestPatientOnlyEvents(t *testing.T) {
	for _, typ := range []string{AppointmentStatus, AppointmentUpdated, AppointmentDeleted, PaymentCompleted, PaymentExpired, PaymentRefundDue, Reminder} {
		msgs := Messages(typ, sample())
		if len(msgs) != 1 || msgs[0].To != Patient {
			t.Fatalf("%s: messages = %+v", typ, msgs)
		}
	}
}

func TestMissingDoctorIsSkipped(t *testing.T) {
	a := sample()
	a.DoctorID = ""
	if msgs := Messages(AppointmentBooked, a); len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
}

func TestUnknownEventYieldsNothing(t *testing.T) {
	if msgs := Messages("appointment.archived.v9", sample()); len(msgs) != 0 {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestDecodeRequiresIDs(t *testing.T) {
	if _, err := Decode([]byte(`{"appointment_id":"a1"}`)); err == nil {
		t.Fatalf("expected error for missing patient_id")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
	a, err := Decode([]byte(`{"appointment_id":"a1","patient_id":"p1","start":"09:00"}`))
	if err != nil || a.Start != "09:00" {
		t.Fatalf("Decode = %+v, %v", a, err)
	}
}
