package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/md-rashed-zaman/medibook/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox dedupes events by id across redeliveries.
type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  reader
	logger  *slog.Logger
	inbox   Inbox
	handler Handler
	retry   RetryPolicy
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
	Retry   RetryPolicy
}

// RetryPolicy bounds how often a failing handler is retried before the message is skipped.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Backoff <= 0 {
		p.Backoff = 500 * time.Millisecond
	}
	return p
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newConsumer(r, logger, inbox, cfg.Retry, handler)
}

func newConsumer(r reader, logger *slog.Logger, inbox Inbox, retry RetryPolicy, handler Handler) *Consumer {
	return &Consumer{
		reader:  r,
		logger:  logger,
		inbox:   inbox,
		handler: handler,
		retry:   retry.withDefaults(),
	}
}

// Run reads until ctx is cancelled. Offsets are committed only after a message was handled,
// found to be a duplicate, or exhausted its retries.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		if !c.processUntilSettled(ctx, msg) {
			return
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// maxInboxBackoff caps the wait between attempts while the inbox is unreachable.
const maxInboxBackoff = 30 * time.Second

// processUntilSettled repeats process while the inbox is unavailable, so the offset
// never moves past an event that was not handled. It reports false when ctx ended first.
func (c *Consumer) processUntilSettled(ctx context.Context, msg kafka.Message) bool {
	for attempt := 1; ; attempt++ {
		if c.process(ctx, msg) {
			return true
		}
		wait := c.retry.Backoff * time.Duration(attempt)
		if wait > maxInboxBackoff {
			wait = maxInboxBackoff
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

// process reports whether msg is settled and its offset may be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	log := c.logger.With("event_id", meta.EventID, "event_type", meta.EventType)

	ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
	if err != nil {
		log.Error("inbox record failed", "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "inbox")
		return false
	}
	if !ok {
		log.Info("duplicate event ignored")
		return true
	}

	for attempt := 1; ; attempt++ {
		err = c.handler(ctxSpan, msg)
		if err == nil {
			return true
		}
		span.RecordError(err)
		if attempt >= c.retry.Attempts || ctx.Err() != nil {
			break
		}
		log.Warn("handler failed, retrying", "err", err, "attempt", attempt)
		select {
		case <-ctx.Done():
		case <-time.After(c.retry.Backoff * time.Duration(attempt)):
		}
	}

	span.SetStatus(codes.Error, "handler")
	log.Error("handler gave up", "err", err, "attempts", c.retry.Attempts)
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("event_id", meta.EventID)
		scope.SetTag("event_type", meta.EventType)
		sentry.CaptureException(err)
	})
	// Release the claim so a manual replay of this event is not swallowed as a duplicate.
	if ferr := c.inbox.Forget(context.WithoutCancel(ctx), meta.EventID); ferr != nil {
		log.Error("inbox release failed", "err", ferr)
	}
	return ctx.Err() == nil
}
