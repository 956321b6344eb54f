package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/welldanyogia/newsroom-auth/internal/metrics"
)

// Session repository errors
var (
	ErrSessionNotFound = errors.New("session not found")
)

const sessionColumns = `id, user_id, token_hash, ip_address, user_agent, device_info,
		location, login_at, last_activity_at, expires_at, is_active`

// SessionRepository defines the interface for session data access
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	// GetByTokenHash returns active sessions only: an inactive session is
	// indistinguishable from a missing one to callers.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	// Touch bumps last_activity_at. Racing touches are last-writer-wins.
	Touch(ctx context.Context, tokenHash string) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Session, error)
	// DeactivateExpired marks past-expiry sessions inactive. Rows are kept
	// for audit, never deleted here.
	DeactivateExpired(ctx context.Context) (int64, error)
	CountSuspiciousUsers(ctx context.Context, maxSessions, maxIPs int) (int, error)
	ListSuspiciousUsers(ctx context.Context, maxSessions, maxIPs int) ([]*SuspiciousUser, error)
}

// sessionRepository implements SessionRepository using PostgreSQL
type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*Session, error) {
	session := &Session{}
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.IPAddress,
		&session.UserAgent,
		&session.DeviceInfo,
		&session.Location,
		&session.LoginAt,
		&session.LastActivityAt,
		&session.ExpiresAt,
		&session.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// Create inserts a new session. login_at and last_activity_at are both set to
// the creation time.
func (r *sessionRepository) Create(ctx context.Context, session *Session) error {
	defer metrics.TimeQuery("session_insert")()
	query := `
		INSERT INTO sessions (user_id, token_hash, ip_address, user_agent, device_info, location, login_at, last_activity_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8)
		RETURNING id, login_at, last_activity_at, is_active
	`

	now := time.Now().UTC()
	return r.pool.QueryRow(ctx, query,
		session.UserID,
		session.TokenHash,
		session.IPAddress,
		session.UserAgent,
		session.DeviceInfo,
		session.Location,
		now,
		session.ExpiresAt,
	).Scan(&session.ID, &session.LoginAt, &session.LastActivityAt, &session.IsActive)
}

// GetByID retrieves a session by ID regardless of its active flag
func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	return scanSession(r.pool.QueryRow(ctx, query, id))
}

// GetByTokenHash retrieves an active session by its token hash
func (r *sessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	defer metrics.TimeQuery("session_by_token_hash")()
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1 AND is_active = TRUE`

	return scanSession(r.pool.QueryRow(ctx, query, tokenHash))
}

// Touch updates last_activity_at for an active session
func (r *sessionRepository) Touch(ctx context.Context, tokenHash string) error {
	defer metrics.TimeQuery("session_touch")()
	query := `
		UPDATE sessions
		SET last_activity_at = $1
		WHERE token_hash = $2 AND is_active = TRUE
	`

	result, err := r.pool.Exec(ctx, query, time.Now().UTC(), tokenHash)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// ListByUser returns a user's active sessions, most recent activity first
func (r *sessionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY last_activity_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// DeactivateExpired marks sessions past their expiry as inactive
func (r *sessionRepository) DeactivateExpired(ctx context.Context) (int64, error) {
	query := `
		UPDATE sessions
		SET is_active = FALSE
		WHERE expires_at < $1 AND is_active = TRUE
	`

	result, err := r.pool.Exec(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}

const suspiciousUsersQuery = `
	SELECT s.user_id, u.email,
	       COUNT(*) AS session_count,
	       COUNT(DISTINCT s.ip_address) AS distinct_ips,
	       MAX(s.last_activity_at) AS last_activity
	FROM sessions s
	JOIN users u ON u.id = s.user_id
	WHERE s.is_active = TRUE
	GROUP BY s.user_id, u.email
	HAVING COUNT(*) > $1 OR COUNT(DISTINCT s.ip_address) > $2
`

// CountSuspiciousUsers returns how many accounts exceed the concurrent-session
// or distinct-IP thresholds
func (r *sessionRepository) CountSuspiciousUsers(ctx context.Context, maxSessions, maxIPs int) (int, error) {
	query := `SELECT COUNT(*) FROM (` + suspiciousUsersQuery + `) flagged`

	var count int
	err := r.pool.QueryRow(ctx, query, maxSessions, maxIPs).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// ListSuspiciousUsers returns the flagged accounts for manual review
func (r *sessionRepository) ListSuspiciousUsers(ctx context.Context, maxSessions, maxIPs int) ([]*SuspiciousUser, error) {
	query := suspiciousUsersQuery + ` ORDER BY session_count DESC, distinct_ips DESC`

	rows, err := r.pool.Query(ctx, query, maxSessions, maxIPs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flagged []*SuspiciousUser
	for rows.Next() {
		su := &SuspiciousUser{}
		if err := rows.Scan(&su.UserID, &su.Email, &su.SessionCount, &su.DistinctIPs, &su.LastActivity); err != nil {
			return nil, err
		}
		flagged = append(flagged, su)
	}

	return flagged, rows.Err()
}
