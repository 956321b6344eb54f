package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
)

type capturedSend struct {
	addr string
	from string
	to   []string
	msg  []byte
}

func newCapturingSender(sendErr error) (*SMTPSender, *capturedSend) {
	captured := &capturedSend{}
	sender := NewSMTPSender(SMTPConfig{
		Addr:     "smtp.example.com:587",
		From:     "noreply@example.com",
		Username: "relay-user",
		Password: "relay-pass",
	}, nil)
	sender.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		captured.addr = addr
		captured.from = from
		captured.to = to
		captured.msg = msg
		return sendErr
	}
	return sender, captured
}

func TestSendBuildsMultipartMessage(t *testing.T) {
	sender, captured := newCapturingSender(nil)

	err := sender.Send(context.Background(), Message{
		To:      "reader@example.com",
		Subject: "Your verification code: 123456",
		Text:    "Your verification code is 123456.",
		HTML:    "<p>Your verification code is <b>123456</b></p>",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if captured.addr != "smtp.example.com:587" {
		t.Errorf("Expected relay addr, got %s", captured.addr)
	}
	if captured.from != "noreply@example.com" {
		t.Errorf("Expected configured from, got %s", captured.from)
	}
	if len(captured.to) != 1 || captured.to[0] != "reader@example.com" {
		t.Errorf("Expected one recipient, got %v", captured.to)
	}

	body := string(captured.msg)
	for _, want := range []string{
		"Content-Type: multipart/alternative",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Type: text/html; charset=utf-8",
		"Your verification code is 123456.",
		"<b>123456</b>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected message to contain %q", want)
		}
	}
}

func TestSendEmptyRecipient(t *testing.T) {
	sender, captured := newCapturingSender(nil)

	err := sender.Send(context.Background(), Message{Subject: "no recipient"})
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("Expected ErrSendFailed, got %v", err)
	}
	if captured.to != nil {
		t.Error("Expected no delivery attempt")
	}
}

func TestSendWrapsTransportError(t *testing.T) {
	sender, _ := newCapturingSender(errors.New("454 relay refused"))

	err := sender.Send(context.Background(), Message{To: "reader@example.com", Text: "hi"})
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("Expected ErrSendFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "relay refused") {
		t.Errorf("Expected the transport error in the chain, got %v", err)
	}
}

func TestNopSenderAlwaysSucceeds(t *testing.T) {
	sender := NewNopSender(nil)

	if err := sender.Send(context.Background(), Message{To: "reader@example.com"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}
