// Package otp implements issuance and validation of short-lived numeric
// one-time passcodes. Per (email, purpose) a code moves through
// pending -> consumed or pending -> expired; issuing a new code invalidates
// every prior pending one for the same pair.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/welldanyogia/newsroom-auth/internal/mailer"
	"github.com/welldanyogia/newsroom-auth/internal/metrics"
	"github.com/welldanyogia/newsroom-auth/internal/repository"
)

// OTP service errors
var (
	ErrCodeInvalid     = errors.New("invalid verification code")
	ErrCodeAlreadyUsed = errors.New("verification code already used")
	ErrCodeExpired     = errors.New("verification code expired")
	ErrUnknownPurpose  = errors.New("unknown otp purpose")
	ErrMailDispatch    = errors.New("failed to send verification code")
)

// Error codes for API responses
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeOTPInvalid      = "OTP_INVALID"
	CodeMailFailure     = "MAIL_DISPATCH_FAILED"
)

// DefaultTTL is the code lifetime when none is configured
const DefaultTTL = 10 * time.Minute

// codeDigits is the length of generated codes
const codeDigits = 6

// purposeLabels maps purposes to the human-readable label used in mail
var purposeLabels = map[repository.OTPPurpose]string{
	repository.PurposeLogin:         "sign in to your account",
	repository.PurposeRegister:      "confirm your new account",
	repository.PurposeResetPassword: "reset your password",
}

// Service manages the OTP lifecycle
type Service struct {
	otpRepo repository.OTPRepository
	sender  mailer.Sender
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a new OTP Service instance
func NewService(otpRepo repository.OTPRepository, sender mailer.Sender, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		otpRepo: otpRepo,
		sender:  sender,
		ttl:     ttl,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Issue generates a fresh code for (email, purpose), invalidating any prior
// pending code for the pair, and dispatches it by mail. A mail failure fails
// the issuance: the just-created code is invalidated best-effort rather than
// left valid and guessable until its TTL runs out.
func (s *Service) Issue(ctx context.Context, email string, purpose repository.OTPPurpose) error {
	label, ok := purposeLabels[purpose]
	if !ok {
		return ErrUnknownPurpose
	}

	email = strings.TrimSpace(strings.ToLower(email))

	code, err := generateCode()
	if err != nil {
		return err
	}

	row := &repository.OTPCode{
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: s.now().Add(s.ttl),
	}

	if err := s.otpRepo.CreateInvalidatingPrior(ctx, row); err != nil {
		return err
	}

	msg := buildMessage(email, code, label, s.ttl)
	if err := s.sender.Send(ctx, msg); err != nil {
		if invErr := s.otpRepo.Invalidate(ctx, row.ID); invErr != nil {
			s.logger.Error("failed to invalidate undelivered code", "email", email, "purpose", purpose, "error", invErr)
		}
		s.logger.Error("otp mail dispatch failed", "email", email, "purpose", purpose, "error", err)
		return ErrMailDispatch
	}

	metrics.OTPIssuedTotal.WithLabelValues(string(purpose)).Inc()
	return nil
}

// Verify consumes a pending code. The first successful verification marks the
// row used; the same code can never verify twice.
func (s *Service) Verify(ctx context.Context, email, code string, purpose repository.OTPPurpose) error {
	email = strings.TrimSpace(strings.ToLower(email))

	row, err := s.otpRepo.GetLatest(ctx, email, code, purpose)
	if err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			metrics.OTPVerifiedTotal.WithLabelValues("invalid").Inc()
			return ErrCodeInvalid
		}
		return err
	}

	if row.IsUsed {
		metrics.OTPVerifiedTotal.WithLabelValues("already_used").Inc()
		return ErrCodeAlreadyUsed
	}

	if s.now().After(row.ExpiresAt) {
		metrics.OTPVerifiedTotal.WithLabelValues("expired").Inc()
		return ErrCodeExpired
	}

	if err := s.otpRepo.MarkUsed(ctx, row.ID); err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			// A concurrent verification got there first
			metrics.OTPVerifiedTotal.WithLabelValues("already_used").Inc()
			return ErrCodeAlreadyUsed
		}
		return err
	}

	metrics.OTPVerifiedTotal.WithLabelValues("success").Inc()
	return nil
}

// CleanupExpired hard-deletes expired rows. Idempotent; safe to run from
// multiple workers or on a schedule.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.otpRepo.DeleteExpired(ctx)
}

// generateCode draws a uniformly random zero-padded numeric code
func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", codeDigits, n), nil
}

// buildMessage renders the OTP mail with the purpose label and expiry
func buildMessage(email, code, label string, ttl time.Duration) mailer.Message {
	minutes := int(ttl.Minutes())

	text := fmt.Sprintf(
		"Your verification code is %s.\n\nUse it to %s. The code expires in %d minutes.\n\nIf you did not request this code, you can ignore this message.",
		code, label, minutes,
	)
	html := fmt.Sprintf(
		"<p>Your verification code is</p><p style=\"font-size:24px;font-weight:bold;letter-spacing:4px\">%s</p><p>Use it to %s. The code expires in %d minutes.</p><p>If you did not request this code, you can ignore this message.</p>",
		code, label, minutes,
	)

	return mailer.Message{
		To:      email,
		Subject: fmt.Sprintf("Your verification code: %s", code),
		Text:    text,
		HTML:    html,
	}
}
