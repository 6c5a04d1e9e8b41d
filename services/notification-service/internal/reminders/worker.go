// Package reminders notifies patients shortly before their appointment.
package reminders

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/compose"
)

type Source interface {
	Due(ctx context.Context, from, to time.Time, limit int) ([]compose.Appointment, error)
}

type RemindFunc func(ctx context.Context, appt compose.Appointment) error

type Worker struct {
	source    Source
	remind    RemindFunc
	logger    *slog.Logger
	interval  time.Duration
	lead      time.Duration
	batchSize int
	now       func() time.Time
}

type WorkerConfig struct {
	Interval  time.Duration
	Lead      time.Duration
	BatchSize int
}

func NewWorker(source Source, remind RemindFunc, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Lead <= 0 {
		cfg.Lead = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Worker{
		source:    source,
		remind:    remind,
		logger:    logger,
		interval:  cfg.Interval,
		lead:      cfg.Lead,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.tick(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

// tick sends reminders for appointments starting within the lead time and reports how many went out.
func (w *Worker) tick(ctx context.Context) (int, error) {
	now := w.now().UTC()
	due, err := w.source.Due(ctx, now, now.Add(w.lead), w.batchSize)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, appt := range due {
		if err := w.remind(ctx, appt); err != nil {
			w.logger.Error("reminder failed", "err", err, "appointment_id", appt.AppointmentID)
			continue
		}
		sent++
	}
	if sent > 0 {
		w.logger.Info("reminders sent", "count", sent)
	}
	return sent, nil
}
