package email

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	// TLS is one of "none", "opportunistic" or "mandatory".
	TLS     string
	Timeout time.Duration
}

// SMTPSender delivers plain-text mail with an HTML alternative. Mailpit works with TLS "none".
type SMTPSender struct {
	client *mail.Client
	from   string
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "no-reply@medibook.local"
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(tlsPolicy(cfg.TLS)),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(strings.TrimSpace(cfg.Host), opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{client: client, from: from}, nil
}

func tlsPolicy(s string) mail.TLSPolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mandatory":
		return mail.TLSMandatory
	case "opportunistic":
		return mail.TLSOpportunistic
	default:
		return mail.NoTLS
	}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	msg, err := buildMessage(s.from, to, subject, body)
	if err != nil {
		return err
	}
	return s.client.DialAndSendWithContext(ctx, msg)
}

var htmlBody = template.Must(template.New("mail").Parse(
	`<!DOCTYPE html><html><body style="font-family: Arial, sans-serif;"><h2>{{.Subject}}</h2><p>{{.Body}}</p><p style="color:#777">MediBook</p></body></html>`))

func buildMessage(from, to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("from %q: %w", from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("to %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, body)

	var html strings.Builder
	if err := htmlBody.Execute(&html, struct{ Subject, Body string }{subject, body}); err != nil {
		return nil, err
	}
	msg.AddAlternativeString(mail.TypeTextHTML, html.String())
	return msg, nil
}

// NoopSender drops mail. It is used when SMTP is not configured.
type NoopSender struct{}

func (NoopSender) Send(context.Context, string, string, string) error { return nil }
