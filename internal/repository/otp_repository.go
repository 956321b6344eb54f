package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OTP repository errors
var (
	ErrOTPNotFound = errors.New("otp code not found")
)

// OTPRepository defines the interface for one-time-passcode data access
type OTPRepository interface {
	// CreateInvalidatingPrior marks every pending code for (email, purpose)
	// as used and inserts the new code, in a single transaction.
	CreateInvalidatingPrior(ctx context.Context, code *OTPCode) error
	// GetLatest returns the most recent code row for (email, code, purpose),
	// used or not, ordered by creation time.
	GetLatest(ctx context.Context, email, code string, purpose OTPPurpose) (*OTPCode, error)
	// MarkUsed consumes a code. Returns ErrOTPNotFound if the row was already
	// used, so concurrent verifications cannot both succeed.
	MarkUsed(ctx context.Context, id uuid.UUID) error
	// Invalidate marks a specific code used without verifying it
	Invalidate(ctx context.Context, id uuid.UUID) error
	// DeleteExpired hard-deletes rows past their expiry
	DeleteExpired(ctx context.Context) (int64, error)
}

// otpRepository implements OTPRepository using PostgreSQL
type otpRepository struct {
	pool *pgxpool.Pool
}

// NewOTPRepository creates a new OTPRepository instance
func NewOTPRepository(pool *pgxpool.Pool) OTPRepository {
	return &otpRepository{pool: pool}
}

// CreateInvalidatingPrior invalidates pending codes and inserts the new one atomically
func (r *otpRepository) CreateInvalidatingPrior(ctx context.Context, code *OTPCode) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	invalidate := `
		UPDATE otp_codes
		SET is_used = TRUE
		WHERE LOWER(email) = LOWER($1) AND purpose = $2 AND is_used = FALSE
	`
	if _, err := tx.Exec(ctx, invalidate, code.Email, code.Purpose); err != nil {
		return err
	}

	insert := `
		INSERT INTO otp_codes (email, code, purpose, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, insert,
		strings.ToLower(code.Email),
		code.Code,
		code.Purpose,
		code.ExpiresAt,
	).Scan(&code.ID, &code.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetLatest retrieves the most recent matching code row
func (r *otpRepository) GetLatest(ctx context.Context, email, code string, purpose OTPPurpose) (*OTPCode, error) {
	query := `
		SELECT id, email, code, purpose, expires_at, is_used, created_at
		FROM otp_codes
		WHERE LOWER(email) = LOWER($1) AND code = $2 AND purpose = $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	row := &OTPCode{}
	err := r.pool.QueryRow(ctx, query, email, code, purpose).Scan(
		&row.ID,
		&row.Email,
		&row.Code,
		&row.Purpose,
		&row.ExpiresAt,
		&row.IsUsed,
		&row.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOTPNotFound
		}
		return nil, err
	}

	return row, nil
}

// MarkUsed consumes a pending code exactly once
func (r *otpRepository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE otp_codes
		SET is_used = TRUE
		WHERE id = $1 AND is_used = FALSE
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrOTPNotFound
	}

	return nil
}

// Invalidate marks a code used regardless of its current state
func (r *otpRepository) Invalidate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE otp_codes SET is_used = TRUE WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// DeleteExpired hard-deletes expired rows. Idempotent and safe to run
// concurrently; no invariant depends on exact timing.
func (r *otpRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM otp_codes WHERE expires_at < $1`

	result, err := r.pool.Exec(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}
