package sms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

func TestWebhookSenderPostsJSON(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "tok")
	if err := s.Send(context.Background(), "+84901234567", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["to"] != "+84901234567" || got["body"] != "hello" || auth != "Bearer tok" {
		t.Fatalf("request = %v auth=%q", got, auth)
	}
}

func TestWebhookSenderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookSender(srv.URL, "").Send(context.Background(), "x", "y"); err == nil {
		t.Fatalf("expected error on 502")
	}
	if err := NewWebhookSender("", "").Send(context.Background(), "x", "y"); err == nil {
		t.Fatalf("expected error without url")
	}
}

type fakeTwilio struct {
	params *openapi.CreateMessageParams
	status string
	err    error
}

func (f *fakeTwilio) CreateMessage(p *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	f.params = p
	if f.err != nil {
		return nil, f.err
	}
	return &openapi.ApiV2010Message{Status: &f.status}, nil
}

func TestTwilioSenderBuildsMessage(t *testing.T) {
	api := &fakeTwilio{status: "queued"}
	s := &TwilioSender{api: api, from: "+15005550006"}
	if err := s.Send(context.Background(), "+84901234567", "Reminder"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	p := api.params
	if p == nil || *p.To != "+84901234567" || *p.From != "+15005550006" || *p.Body != "Reminder" || p.MessagingServiceSid != nil {
		t.Fatalf("params = %+v", p)
	}

	svc := &TwilioSender{api: api, from: "MG123"}
	if err := svc.Send(context.Background(), "+84901234567", "x"); err != nil {
		t.Fatalf("Send via service: %v", err)
	}
	if api.params.MessagingServiceSid == nil || *api.params.MessagingServiceSid != "MG123" || api.params.From != nil {
		t.Fatalf("params = %+v", api.params)
	}
}

func TestTwilioSenderFailures(t *testing.T) {
	if err := (&TwilioSender{api: &fakeTwilio{err: errors.New("401")}, from: "+1"}).Send(context.Background(), "+2", "x"); err == nil {
		t.Fatalf("expected api error")
	}
	if err := (&TwilioSender{api: &fakeTwilio{status: "failed"}, from: "+1"}).Send(context.Background(), "+2", "x"); err == nil {
		t.Fatalf("expected failed status error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	api := &fakeTwilio{status: "queued"}
	if err := (&TwilioSender{api: api, from: "+1"}).Send(ctx, "+2", "x"); err == nil || api.params != nil {
		t.Fatalf("cancelled context should not send")
	}
	if _, err := NewTwilioSender(TwilioConfig{AccountSID: "AC1", AuthToken: "t"}); err == nil {
		t.Fatalf("expected missing sender number error")
	}
}
