package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioConfig holds the Programmable Messaging credentials. From is an E.164 number
// or a messaging service SID (MG...).
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

type TwilioSender struct {
	api  messageCreator
	from string
}

func NewTwilioSender(cfg TwilioConfig) (*TwilioSender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("twilio account sid and auth token are required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("twilio sender number is required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{api: client.Api, from: strings.TrimSpace(cfg.From)}, nil
}

func (s *TwilioSender) ProviderID() string { return "sms-twilio" }

// Send does not honour ctx cancellation mid-request; the SDK has no context support.
func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	if strings.HasPrefix(s.from, "MG") {
		params.SetMessagingServiceSid(s.from)
	} else {
		params.SetFrom(s.from)
	}
	params.SetBody(body)

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio: %w", err)
	}
	if msg != nil && msg.Status != nil && (*msg.Status == "failed" || *msg.Status == "undelivered") {
		return fmt.Errorf("twilio: message %s", *msg.Status)
	}
	return nil
}
