package repository

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user account in the database.
// This core reads accounts and only ever writes last_login_at and is_active.
type User struct {
	ID           uuid.UUID  `db:"id"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	Role         string     `db:"role"`
	IsActive     bool       `db:"is_active"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	LastLoginAt  *time.Time `db:"last_login_at"`
}

// OTPPurpose identifies what an OTP code was issued for
type OTPPurpose string

const (
	PurposeLogin         OTPPurpose = "login"
	PurposeRegister      OTPPurpose = "register"
	PurposeResetPassword OTPPurpose = "reset_password"
)

// OTPCode represents a one-time passcode row.
// At most one unused, unexpired code exists per (email, purpose).
type OTPCode struct {
	ID        uuid.UUID  `db:"id"`
	Email     string     `db:"email"`
	Code      string     `db:"code"`
	Purpose   OTPPurpose `db:"purpose"`
	ExpiresAt time.Time  `db:"expires_at"`
	IsUsed    bool       `db:"is_used"`
	CreatedAt time.Time  `db:"created_at"`
}

// LoginAttempt is one row of the append-only login audit log.
// Email is nullable: pre-auth attempts may not resolve to a known account.
type LoginAttempt struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Email         *string   `db:"email" json:"email,omitempty"`
	IPAddress     string    `db:"ip_address" json:"ip_address"`
	UserAgent     *string   `db:"user_agent" json:"user_agent,omitempty"`
	Success       bool      `db:"success" json:"success"`
	FailureReason *string   `db:"failure_reason" json:"failure_reason,omitempty"`
	AttemptedAt   time.Time `db:"attempted_at" json:"attempted_at"`
}

// Session represents an authentication session. Only the SHA-256 hash of the
// bearer token is stored; is_active=false is terminal.
type Session struct {
	ID             uuid.UUID `db:"id"`
	UserID         uuid.UUID `db:"user_id"`
	TokenHash      string    `db:"token_hash"`
	IPAddress      *string   `db:"ip_address"`
	UserAgent      *string   `db:"user_agent"`
	DeviceInfo     *string   `db:"device_info"`
	Location       *string   `db:"location"`
	LoginAt        time.Time `db:"login_at"`
	LastActivityAt time.Time `db:"last_activity_at"`
	ExpiresAt      time.Time `db:"expires_at"`
	IsActive       bool      `db:"is_active"`
}

// RevokedSession is an append-only blacklist entry. A matching token_hash here
// is authoritative proof the token must be rejected, independent of the
// session row's own active flag.
type RevokedSession struct {
	ID        uuid.UUID  `db:"id"`
	SessionID uuid.UUID  `db:"session_id"`
	TokenHash string     `db:"token_hash"`
	UserID    uuid.UUID  `db:"user_id"`
	RevokedBy *uuid.UUID `db:"revoked_by"` // nil means system-initiated
	Reason    string     `db:"reason"`
	RevokedAt time.Time  `db:"revoked_at"`
}

// SuspiciousUser aggregates the active-session footprint of a flagged account
type SuspiciousUser struct {
	UserID        uuid.UUID `db:"user_id" json:"user_id"`
	Email         string    `db:"email" json:"email"`
	SessionCount  int       `db:"session_count" json:"session_count"`
	DistinctIPs   int       `db:"distinct_ips" json:"distinct_ips"`
	LastActivity  time.Time `db:"last_activity" json:"last_activity"`
}
