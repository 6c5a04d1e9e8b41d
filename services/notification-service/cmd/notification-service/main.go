package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/medibook/libs/config"
	"github.com/md-rashed-zaman/medibook/libs/db"
	"github.com/md-rashed-zaman/medibook/libs/httpx"
	"github.com/md-rashed-zaman/medibook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/medibook/libs/otel"
	"github.com/md-rashed-zaman/medibook/libs/runtime"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/consumer"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/dispatch"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/inbox"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/reminders"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/medibook/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	flushSentry, err := runtime.InitSentry(cfg.Service)
	if err != nil {
		logger.Error("sentry setup failed", "err", err)
	}
	defer flushSentry()

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var mailer email.Sender = email.NoopSender{}
	if cfg.SMTP.Host != "" {
		s, err := email.NewSMTPSender(cfg.SMTP)
		if err != nil {
			logger.Error("smtp setup failed, e-mail disabled", "err", err)
		} else {
			mailer = s
		}
	} else {
		logger.Info("SMTP_HOST not set, e-mail disabled")
	}

	var texter sms.Sender
	switch cfg.SMSProvider {
	case "webhook":
		texter = sms.NewWebhookSender(cfg.SMSWebhookURL, cfg.SMSWebhookToken)
	case "twilio":
		t, err := sms.NewTwilioSender(cfg.Twilio)
		if err != nil {
			logger.Error("twilio setup failed, sms disabled", "err", err)
		} else {
			texter = t
		}
	case "noop":
		texter = sms.NoopSender{}
	}

	processor := dispatch.NewProcessor(storage.NewRepository(pool), mailer, texter, logger)
	eventConsumer := consumer.New(logger, inbox.NewRepository(pool, cfg.Service), cfg.Kafka, processor.HandleMessage)
	go eventConsumer.Run(ctx)
	logger.Info("consuming appointment events", "topics", cfg.Kafka.Topics, "group_id", cfg.Kafka.GroupID)

	if cfg.RemindersEnabled {
		go reminders.NewWorker(reminders.NewRepository(pool), processor.Remind, logger, cfg.Reminders).Run(ctx)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.Kafka.Brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := runtime.Serve(ctx, srv, logger, 10*time.Second); err != nil {
		logger.Error("http server error", "err", err)
	}
}
