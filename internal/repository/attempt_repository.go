package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptRepository defines the interface for the append-only login audit log.
// Rows are never updated; rate-limit decisions are rolling-window counts over
// raw event timestamps.
type AttemptRepository interface {
	Record(ctx context.Context, attempt *LoginAttempt) error
	CountFailedByIP(ctx context.Context, ip string, since time.Time) (int, error)
	OldestFailedByIP(ctx context.Context, ip string, since time.Time) (*time.Time, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// attemptRepository implements AttemptRepository using PostgreSQL
type attemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository instance
func NewAttemptRepository(pool *pgxpool.Pool) AttemptRepository {
	return &attemptRepository{pool: pool}
}

// Record appends one attempt row
func (r *attemptRepository) Record(ctx context.Context, attempt *LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (email, ip_address, user_agent, success, failure_reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, attempted_at
	`

	return r.pool.QueryRow(ctx, query,
		attempt.Email,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
	).Scan(&attempt.ID, &attempt.AttemptedAt)
}

// CountFailedByIP counts failed attempts from an IP within the trailing window
func (r *attemptRepository) CountFailedByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM login_attempts
		WHERE ip_address = $1 AND success = FALSE AND attempted_at >= $2
	`

	var count int
	err := r.pool.QueryRow(ctx, query, ip, since).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// OldestFailedByIP returns the timestamp of the oldest in-window failure,
// which determines when the sliding window frees a slot. Nil when the window
// holds no failures.
func (r *attemptRepository) OldestFailedByIP(ctx context.Context, ip string, since time.Time) (*time.Time, error) {
	query := `
		SELECT MIN(attempted_at)
		FROM login_attempts
		WHERE ip_address = $1 AND success = FALSE AND attempted_at >= $2
	`

	var oldest *time.Time
	err := r.pool.QueryRow(ctx, query, ip, since).Scan(&oldest)
	if err != nil {
		return nil, err
	}

	return oldest, nil
}

// DeleteBefore removes audit rows older than the retention cutoff
func (r *attemptRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM login_attempts WHERE attempted_at < $1`

	result, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}
