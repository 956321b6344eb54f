// Package mailer provides the outbound mail transport boundary. The auth core
// only needs "deliver this message or tell me you could not"; everything else
// (templates, providers) stays behind the Sender interface.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/smtp"
	"strings"
	"time"
)

// ErrSendFailed indicates the transport could not deliver the message
var ErrSendFailed = errors.New("mail send failed")

// Message is one outbound email
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers messages. Implementations must treat a returned error as
// "the message was not delivered"; callers decide whether that fails the
// surrounding operation.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends mail through a single SMTP relay
type SMTPSender struct {
	addr     string
	from     string
	auth     smtp.Auth
	logger   *slog.Logger
	timeout  time.Duration
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// SMTPConfig holds the relay connection settings
type SMTPConfig struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
	Host     string // used for PLAIN auth; defaults to the host part of Addr
}

// NewSMTPSender creates a Sender backed by net/smtp
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		host := cfg.Host
		if host == "" {
			host = cfg.Addr
			if i := strings.LastIndex(host, ":"); i >= 0 {
				host = host[:i]
			}
		}
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}

	return &SMTPSender{
		addr:     cfg.Addr,
		from:     cfg.From,
		auth:     auth,
		logger:   logger,
		timeout:  30 * time.Second,
		sendMail: smtp.SendMail,
	}
}

// Send delivers one message. The context deadline bounds the delivery attempt.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("%w: empty recipient", ErrSendFailed)
	}

	body := s.buildMessage(msg)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(s.addr, s.auth, s.from, []string{msg.To}, body)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Error("mail delivery failed", "to", msg.To, "error", err)
			return fmt.Errorf("%w: %v", ErrSendFailed, err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Error("mail delivery timed out", "to", msg.To)
		return fmt.Errorf("%w: %v", ErrSendFailed, ctx.Err())
	}
}

// buildMessage assembles a multipart/alternative MIME message
func (s *SMTPSender) buildMessage(msg Message) []byte {
	const boundary = "newsroom-auth-alt"

	var b strings.Builder
	b.WriteString("From: " + s.from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/alternative; boundary=" + boundary + "\r\n")
	b.WriteString("\r\n")

	if msg.Text != "" {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(msg.Text + "\r\n")
	}
	if msg.HTML != "" {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(msg.HTML + "\r\n")
	}
	b.WriteString("--" + boundary + "--\r\n")

	return []byte(b.String())
}

// NopSender discards messages. Used in local development where no relay is
// configured.
type NopSender struct {
	logger *slog.Logger
}

// NewNopSender creates a Sender that logs and drops every message
func NewNopSender(logger *slog.Logger) *NopSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &NopSender{logger: logger}
}

// Send logs the message metadata and reports success
func (s *NopSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info("mail send skipped (nop sender)", "to", msg.To, "subject", msg.Subject)
	return nil
}
