// Package session provides session administration on top of the session store
// and the revocation registry: listing, targeted revocation, kick-and-ban,
// anomaly flagging, and the expiry sweep.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/welldanyogia/newsroom-auth/internal/metrics"
	"github.com/welldanyogia/newsroom-auth/internal/repository"
)

// Session service errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Error codes for API responses
const (
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeUserNotFound    = "USER_NOT_FOUND"
)

// SessionResponse is the admin-facing view of a session. The token hash is
// deliberately omitted.
type SessionResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	IPAddress      *string   `json:"ip_address,omitempty"`
	UserAgent      *string   `json:"user_agent,omitempty"`
	DeviceInfo     *string   `json:"device_info,omitempty"`
	Location       *string   `json:"location,omitempty"`
	LoginAt        time.Time `json:"login_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// CleanupResult reports what one sweep pass removed
type CleanupResult struct {
	SessionsDeactivated int64 `json:"sessions_deactivated"`
	RevocationsPurged   int64 `json:"revocations_purged"`
	OTPCodesDeleted     int64 `json:"otp_codes_deleted"`
}

// Config holds session administration policy
type Config struct {
	// Suspicious thresholds: flag accounts exceeding either
	MaxSessionsPerUser int
	MaxIPsPerUser      int
	// RevokedRetention bounds how long blacklist entries are kept after the
	// underlying session could last have been presented
	RevokedRetention time.Duration
}

// Service implements session administration
type Service struct {
	sessionRepo    repository.SessionRepository
	revocationRepo repository.RevocationRepository
	otpRepo        repository.OTPRepository
	cfg            Config
	logger         *slog.Logger
}

// NewService creates a new session Service instance
func NewService(
	sessionRepo repository.SessionRepository,
	revocationRepo repository.RevocationRepository,
	otpRepo repository.OTPRepository,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if cfg.MaxSessionsPerUser <= 0 {
		cfg.MaxSessionsPerUser = 3
	}
	if cfg.MaxIPsPerUser <= 0 {
		cfg.MaxIPsPerUser = 2
	}
	if cfg.RevokedRetention <= 0 {
		cfg.RevokedRetention = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessionRepo:    sessionRepo,
		revocationRepo: revocationRepo,
		otpRepo:        otpRepo,
		cfg:            cfg,
		logger:         logger,
	}
}

// ListByUser returns a user's active sessions, most recent activity first
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]SessionResponse, error) {
	sessions, err := s.sessionRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	responses := make([]SessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		responses = append(responses, toResponse(sess))
	}
	return responses, nil
}

// Revoke blacklists one session and deactivates it. The next request
// presenting its token is rejected by the revocation check.
func (s *Service) Revoke(ctx context.Context, sessionID uuid.UUID, revokedBy *uuid.UUID, reason string) error {
	if reason == "" {
		reason = "revoked by administrator"
	}

	err := s.revocationRepo.Revoke(ctx, sessionID, revokedBy, reason)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	s.logger.Info("session revoked", "session_id", sessionID, "revoked_by", revokedBy, "reason", reason)
	metrics.SessionsRevokedTotal.WithLabelValues("admin").Inc()
	return nil
}

// RevokeAllAndBan revokes every active session of the user and deactivates
// the account. Historical revocation entries have no effect on sessions
// created for the user afterwards.
func (s *Service) RevokeAllAndBan(ctx context.Context, userID uuid.UUID, revokedBy *uuid.UUID, reason string) (int, error) {
	if reason == "" {
		reason = "account banned"
	}

	revoked, err := s.revocationRepo.RevokeAllAndBan(ctx, userID, revokedBy, reason)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}

	s.logger.Info("user banned", "user_id", userID, "sessions_revoked", revoked, "revoked_by", revokedBy, "reason", reason)
	metrics.SessionsRevokedTotal.WithLabelValues("ban").Add(float64(revoked))
	return revoked, nil
}

// CountSuspiciousUsers returns the dashboard metric
func (s *Service) CountSuspiciousUsers(ctx context.Context) (int, error) {
	count, err := s.sessionRepo.CountSuspiciousUsers(ctx, s.cfg.MaxSessionsPerUser, s.cfg.MaxIPsPerUser)
	if err != nil {
		return 0, err
	}
	metrics.SuspiciousUsers.Set(float64(count))
	return count, nil
}

// ListSuspiciousUsers returns flagged accounts for manual review
func (s *Service) ListSuspiciousUsers(ctx context.Context) ([]*repository.SuspiciousUser, error) {
	return s.sessionRepo.ListSuspiciousUsers(ctx, s.cfg.MaxSessionsPerUser, s.cfg.MaxIPsPerUser)
}

// Cleanup runs one sweep pass: deactivates expired sessions, purges
// revocation entries past retention, and deletes expired OTP rows.
// Idempotent and safe to run concurrently.
func (s *Service) Cleanup(ctx context.Context) (*CleanupResult, error) {
	result := &CleanupResult{}

	deactivated, err := s.sessionRepo.DeactivateExpired(ctx)
	if err != nil {
		return nil, err
	}
	result.SessionsDeactivated = deactivated

	purged, err := s.revocationRepo.PurgeBefore(ctx, time.Now().UTC().Add(-s.cfg.RevokedRetention))
	if err != nil {
		return nil, err
	}
	result.RevocationsPurged = purged

	deleted, err := s.otpRepo.DeleteExpired(ctx)
	if err != nil {
		return nil, err
	}
	result.OTPCodesDeleted = deleted

	s.logger.Info("cleanup sweep finished",
		"sessions_deactivated", result.SessionsDeactivated,
		"revocations_purged", result.RevocationsPurged,
		"otp_codes_deleted", result.OTPCodesDeleted,
	)

	return result, nil
}

// toResponse projects a session row into the admin view
func toResponse(sess *repository.Session) SessionResponse {
	return SessionResponse{
		ID:             sess.ID.String(),
		UserID:         sess.UserID.String(),
		IPAddress:      sess.IPAddress,
		UserAgent:      sess.UserAgent,
		DeviceInfo:     sess.DeviceInfo,
		Location:       sess.Location,
		LoginAt:        sess.LoginAt,
		LastActivityAt: sess.LastActivityAt,
		ExpiresAt:      sess.ExpiresAt,
	}
}
