package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/welldanyogia/newsroom-auth/internal/repository"
)

// Attempt failure reasons recorded in the audit log
const (
	ReasonLockedOut          = "locked_out"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonAccountInactive    = "account_inactive"
	ReasonInvalidOTP         = "invalid_otp"
)

// RateLimitDecision is the outcome of a sliding-window rate limit check
type RateLimitDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// GuardConfig holds brute-force protection policy
type GuardConfig struct {
	MaxFailedAttempts int
	LockoutWindow     time.Duration
	// FailClosed denies requests when the attempt store is unreachable.
	// The default (false) fails open: during an infra outage availability
	// is preferred over strict brute-force protection.
	FailClosed bool
}

// LoginGuard enforces rate limiting and lockout over the login_attempts audit
// log. Counts are sliding windows computed from raw event timestamps, so the
// guard self-corrects without a reset job and stays consistent across
// horizontally scaled instances.
type LoginGuard struct {
	attemptRepo repository.AttemptRepository
	cfg         GuardConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewLoginGuard creates a new LoginGuard instance
func NewLoginGuard(attemptRepo repository.AttemptRepository, cfg GuardConfig, logger *slog.Logger) *LoginGuard {
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = 5
	}
	if cfg.LockoutWindow <= 0 {
		cfg.LockoutWindow = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginGuard{
		attemptRepo: attemptRepo,
		cfg:         cfg,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CheckRateLimit is the generic sliding-window primitive: counts failed
// attempts from the IP within the trailing window and reports whether another
// attempt is allowed, how many remain, and when the oldest in-window failure
// ages out.
func (g *LoginGuard) CheckRateLimit(ctx context.Context, ip string, max int, window time.Duration) (RateLimitDecision, error) {
	now := g.now()
	since := now.Add(-window)

	count, err := g.attemptRepo.CountFailedByIP(ctx, ip, since)
	if err != nil {
		return g.storeFailureDecision(now, max, err)
	}

	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now
	if count > 0 {
		if oldest, err := g.attemptRepo.OldestFailedByIP(ctx, ip, since); err == nil && oldest != nil {
			resetAt = oldest.Add(window)
		}
	}

	return RateLimitDecision{
		Allowed:   count < max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// IsLockedOut gates the login endpoint: true once the IP has reached the
// configured failure threshold within the lockout window. Independent of
// CheckRateLimit so the two policies can evolve separately.
func (g *LoginGuard) IsLockedOut(ctx context.Context, ip string) (bool, error) {
	since := g.now().Add(-g.cfg.LockoutWindow)

	count, err := g.attemptRepo.CountFailedByIP(ctx, ip, since)
	if err != nil {
		if g.cfg.FailClosed {
			g.logger.Error("attempt store unreachable, failing closed", "ip", ip, "error", err)
			return true, ErrStoreUnavailable
		}
		g.logger.Warn("attempt store unreachable, failing open", "ip", ip, "error", err)
		return false, nil
	}

	return count >= g.cfg.MaxFailedAttempts, nil
}

// LogAttempt appends one audit row. Best-effort: a logging failure must never
// abort the request that triggered it.
func (g *LoginGuard) LogAttempt(ctx context.Context, email *string, ip, userAgent string, success bool, failureReason string) {
	attempt := &repository.LoginAttempt{
		Email:     email,
		IPAddress: ip,
		Success:   success,
	}
	if userAgent != "" {
		attempt.UserAgent = &userAgent
	}
	if failureReason != "" {
		attempt.FailureReason = &failureReason
	}

	if err := g.attemptRepo.Record(ctx, attempt); err != nil {
		g.logger.Warn("failed to record login attempt", "ip", ip, "error", err)
	}
}

// storeFailureDecision applies the configured failure policy to the generic
// rate limit primitive
func (g *LoginGuard) storeFailureDecision(now time.Time, max int, err error) (RateLimitDecision, error) {
	if g.cfg.FailClosed {
		g.logger.Error("attempt store unreachable, failing closed", "error", err)
		return RateLimitDecision{Allowed: false, Remaining: 0, ResetAt: now}, ErrStoreUnavailable
	}
	g.logger.Warn("attempt store unreachable, failing open", "error", err)
	return RateLimitDecision{Allowed: true, Remaining: max, ResetAt: now}, nil
}
