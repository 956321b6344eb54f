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

// RevocationRepository defines the interface for the session blacklist.
// Entries are append-only; a matching token_hash here is the source of truth
// for "this token must never be honored again".
type RevocationRepository interface {
	// Revoke inserts a blacklist entry for the session and deactivates it in
	// one transaction. A reader never observes "active and not revoked" after
	// the commit.
	Revoke(ctx context.Context, sessionID uuid.UUID, revokedBy *uuid.UUID, reason string) error
	// RevokeAllAndBan blacklists every active session of the user,
	// deactivates them, and deactivates the account, all in one transaction.
	// Returns the number of sessions revoked.
	RevokeAllAndBan(ctx context.Context, userID uuid.UUID, revokedBy *uuid.UUID, reason string) (int, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*RevokedSession, error)
	IsTokenRevoked(ctx context.Context, tokenHash string) (bool, error)
	// PurgeBefore deletes blacklist entries older than the retention cutoff;
	// the sessions they covered can no longer be presented.
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

// revocationRepository implements RevocationRepository using PostgreSQL
type revocationRepository struct {
	pool *pgxpool.Pool
}

// NewRevocationRepository creates a new RevocationRepository instance
func NewRevocationRepository(pool *pgxpool.Pool) RevocationRepository {
	return &revocationRepository{pool: pool}
}

const insertRevocation = `
	INSERT INTO revoked_sessions (session_id, token_hash, user_id, revoked_by, reason)
	VALUES ($1, $2, $3, $4, $5)
`

// Revoke blacklists one session and deactivates it atomically
func (r *revocationRepository) Revoke(ctx context.Context, sessionID uuid.UUID, revokedBy *uuid.UUID, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var tokenHash string
	var userID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT token_hash, user_id FROM sessions WHERE id = $1 FOR UPDATE`,
		sessionID,
	).Scan(&tokenHash, &userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotFound
		}
		return err
	}

	if _, err := tx.Exec(ctx, insertRevocation, sessionID, tokenHash, userID, revokedBy, reason); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE sessions SET is_active = FALSE WHERE id = $1`, sessionID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// RevokeAllAndBan blacklists all active sessions of a user and bans the account
func (r *revocationRepository) RevokeAllAndBan(ctx context.Context, userID uuid.UUID, revokedBy *uuid.UUID, reason string) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT id, token_hash FROM sessions WHERE user_id = $1 AND is_active = TRUE FOR UPDATE`,
		userID,
	)
	if err != nil {
		return 0, err
	}

	type target struct {
		id        uuid.UUID
		tokenHash string
	}
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.id, &t.tokenHash); err != nil {
			rows.Close()
			return 0, err
		}
		targets = append(targets, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	// One blacklist entry per session, preserving distinct token identity
	for _, t := range targets {
		if _, err := tx.Exec(ctx, insertRevocation, t.id, t.tokenHash, userID, revokedBy, reason); err != nil {
			return 0, err
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET is_active = FALSE WHERE user_id = $1 AND is_active = TRUE`,
		userID,
	); err != nil {
		return 0, err
	}

	result, err := tx.Exec(ctx,
		`UPDATE users SET is_active = FALSE, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return 0, err
	}
	if result.RowsAffected() == 0 {
		return 0, ErrUserNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	return len(targets), nil
}

// GetByTokenHash retrieves a blacklist entry by token hash
func (r *revocationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*RevokedSession, error) {
	query := `
		SELECT id, session_id, token_hash, user_id, revoked_by, reason, revoked_at
		FROM revoked_sessions
		WHERE token_hash = $1
		LIMIT 1
	`

	entry := &RevokedSession{}
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&entry.ID,
		&entry.SessionID,
		&entry.TokenHash,
		&entry.UserID,
		&entry.RevokedBy,
		&entry.Reason,
		&entry.RevokedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return entry, nil
}

// IsTokenRevoked reports whether a blacklist entry exists for the hash
func (r *revocationRepository) IsTokenRevoked(ctx context.Context, tokenHash string) (bool, error) {
	defer metrics.TimeQuery("token_revoked_lookup")()
	query := `SELECT EXISTS(SELECT 1 FROM revoked_sessions WHERE token_hash = $1)`

	var revoked bool
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(&revoked)
	if err != nil {
		return false, err
	}

	return revoked, nil
}

// PurgeBefore deletes entries past the retention window
func (r *revocationRepository) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM revoked_sessions WHERE revoked_at < $1`

	result, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}
