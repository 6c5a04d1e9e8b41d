// Package dispatch writes inbox notifications for appointment events and fans them out
// to e-mail and SMS. Delivery failures are recorded and never undo the inbox row.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/medibook/libs/kafkax"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/compose"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type Store interface {
	Insert(ctx context.Context, n storage.Notification) (id string, created bool, err error)
	Contact(ctx context.Context, userID string) (storage.Contact, error)
	RecordDelivery(ctx context.Context, d storage.Delivery) error
}

const (
	statusSent   = "sent"
	statusFailed = "failed"
)

type Processor struct {
	store  Store
	mailer email.Sender
	sms    sms.Sender
	logger *slog.Logger
}

// NewProcessor builds a processor. A nil texter disables SMS.
func NewProcessor(store Store, mailer email.Sender, texter sms.Sender, logger *slog.Logger) *Processor {
	if mailer == nil {
		mailer = email.NoopSender{}
	}
	return &Processor{store: store, mailer: mailer, sms: texter, logger: logger}
}

// HandleMessage adapts Handle to the Kafka consumer.
func (p *Processor) HandleMessage(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	return p.Handle(ctx, meta.EventID, meta.EventType, msg.Value)
}

// Handle processes one event. Only storage errors are returned, so a retry is safe:
// rows that already exist are skipped along with their deliveries.
func (p *Processor) Handle(ctx context.Context, eventID, eventType string, payload []byte) error {
	appt, err := compose.Decode(payload)
	if err != nil {
		p.logger.Error("invalid appointment event", "err", err, "event_id", eventID, "event_type", eventType)
		return nil
	}
	if err := p.notify(ctx, eventID, eventType, appt); err != nil {
		return err
	}
	p.logger.Info("appointment event processed", "event_id", eventID, "event_type", eventType, "appointment_id", appt.AppointmentID)
	return nil
}

// Remind sends the one reminder an appointment gets.
func (p *Processor) Remind(ctx context.Context, appt compose.Appointment) error {
	return p.notify(ctx, ReminderSource(appt.AppointmentID), compose.Reminder, appt)
}

// ReminderSource is the source event id of an appointment's reminder row.
func ReminderSource(appointmentID string) string {
	return "reminder:" + appointmentID
}

func (p *Processor) notify(ctx context.Context, sourceID, eventType string, appt compose.Appointment) error {
	for _, m := range compose.Messages(eventType, appt) {
		id, created, err := p.store.Insert(ctx, storage.Notification{
			UserID:        m.UserID,
			Type:          m.Type,
			Title:         m.Title,
			Message:       m.Body,
			Link:          m.Link,
			SourceEventID: sourceID,
		})
		if errors.Is(err, storage.ErrUserNotFound) {
			p.logger.Warn("recipient no longer exists", "user_id", m.UserID, "source_id", sourceID)
			continue
		}
		if err != nil {
			return err
		}
		if !created {
			continue
		}
		p.deliver(ctx, id, m, appt)
	}
	return nil
}

func (p *Processor) deliver(ctx context.Context, notificationID string, m compose.Message, appt compose.Appointment) {
	var contact storage.Contact
	needContact := m.To == compose.Doctor || appt.PatientEmail == "" || p.sms != nil
	if needContact {
		c, err := p.store.Contact(ctx, m.UserID)
		if err != nil {
			p.logger.Error("contact lookup failed", "err", err, "user_id", m.UserID)
		}
		contact = c
	}

	to := contact.Email
	if m.To == compose.Patient && appt.PatientEmail != "" {
		to = appt.PatientEmail
	}
	if to != "" {
		p.record(notificationID, "email", to, p.mailer.Send(ctx, to, m.Subject, m.Body))
	}
	if p.sms != nil && m.To == compose.Patient && contact.Phone != "" {
		p.record(notificationID, p.sms.ProviderID(), contact.Phone, p.sms.Send(ctx, contact.Phone, m.Title+": "+m.Body))
	}
}

func (p *Processor) record(notificationID, channel, recipient string, sendErr error) {
	d := storage.Delivery{NotificationID: notificationID, Channel: channel, Recipient: recipient, Status: statusSent}
	if sendErr != nil {
		d.Status = statusFailed
		d.Error = sendErr.Error()
		p.logger.Error("notification delivery failed", "err", sendErr, "channel", channel, "notification_id", notificationID)
	}
	// Recorded even when ctx was cancelled mid-send.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.RecordDelivery(ctx, d); err != nil {
		p.logger.Error("delivery record failed", "err", err, "notification_id", notificationID)
	}
}
