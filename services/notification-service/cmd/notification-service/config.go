package main

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/medibook/libs/config"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/compose"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/consumer"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/reminders"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/sms"
)

type Config struct {
	Service     string
	Port        string
	DatabaseURL string

	Kafka consumer.Config

	SMTP email.SMTPConfig

	SMSProvider     string
	SMSWebhookURL   string
	SMSWebhookToken string
	Twilio          sms.TwilioConfig

	RemindersEnabled bool
	Reminders        reminders.WorkerConfig
}

func loadConfig() (Config, error) {
	cfg := Config{
		Service: config.String("SERVICE_NAME", "notification-service"),
		Kafka: consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topics:  config.List("KAFKA_CONSUME_TOPICS", strings.Join(compose.Topics, ",")),
			Retry: consumer.RetryPolicy{
				Attempts: config.Int("KAFKA_HANDLER_ATTEMPTS", 3),
				Backoff:  config.Duration("KAFKA_HANDLER_BACKOFF", 500*time.Millisecond),
			},
		},
		SMTP: email.SMTPConfig{
			Host:     config.String("SMTP_HOST", ""),
			Port:     config.Int("SMTP_PORT", 1025),
			From:     config.String("SMTP_FROM", "no-reply@medibook.local"),
			Username: config.String("SMTP_USERNAME", ""),
			Password: config.String("SMTP_PASSWORD", ""),
			TLS:      config.String("SMTP_TLS", "none"),
			Timeout:  config.Duration("SMTP_TIMEOUT", 10*time.Second),
		},
		SMSProvider:     strings.ToLower(config.String("SMS_PROVIDER", "none")),
		SMSWebhookURL:   config.String("SMS_WEBHOOK_URL", ""),
		SMSWebhookToken: config.String("SMS_WEBHOOK_TOKEN", ""),
		Twilio: sms.TwilioConfig{
			AccountSID: config.String("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  config.String("TWILIO_AUTH_TOKEN", ""),
			From:       config.String("TWILIO_FROM", ""),
		},

		RemindersEnabled: config.Bool("REMINDERS_ENABLED", true),
		Reminders: reminders.WorkerConfig{
			Interval:  config.Duration("REMINDER_INTERVAL", time.Minute),
			Lead:      config.Duration("REMINDER_LEAD", 24*time.Hour),
			BatchSize: config.Int("REMINDER_BATCH_SIZE", 100),
		},
	}

	var err error
	if cfg.Port, err = config.Port("PORT", "8085"); err != nil {
		return Config{}, err
	}
	if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
