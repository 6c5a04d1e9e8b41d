package reminders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/compose"
)

type fakeSource struct {
	from, to time.Time
	limit    int
	due      []compose.Appointment
}

func (f *fakeSource) Due(_ context.Context, from, to time.Time, limit int) ([]compose.Appointment, error) {
	f.from, f.to, f.limit = from, to, limit
	return f.due, nil
}

func TestTickRemindsDueAppointments(t *testing.T) {
	src := &fakeSource{due: []compose.Appointment{{AppointmentID: "a1"}, {AppointmentID: "a2"}, {AppointmentID: "a3"}}}
	var reminded []string
	w := NewWorker(src, func(_ context.Context, a compose.Appointment) error {
		if a.AppointmentID == "a2" {
			return errors.New("db down")
		}
		reminded = append(reminded, a.AppointmentID)
		return nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), WorkerConfig{Lead: 2 * time.Hour, BatchSize: 10})
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	sent, err := w.tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if sent != 2 || len(reminded) != 2 || reminded[1] != "a3" {
		t.Fatalf("sent=%d reminded=%v", sent, reminded)
	}
	if !src.from.Equal(now) || !src.to.Equal(now.Add(2*time.Hour)) || src.limit != 10 {
		t.Fatalf("window = %v..%v limit %d", src.from, src.to, src.limit)
	}
}
