// Package main provides the retention sweep CLI. One run deactivates expired
// sessions, purges aged revocation entries and OTP rows, and archives old
// login attempt rows to object storage before deleting them.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/welldanyogia/newsroom-auth/internal/config"
	"github.com/welldanyogia/newsroom-auth/internal/logger"
	"github.com/welldanyogia/newsroom-auth/internal/repository"
	"github.com/welldanyogia/newsroom-auth/internal/session"
	"github.com/welldanyogia/newsroom-auth/internal/storage"
)

func main() {
	var (
		timeout = flag.Duration("timeout", 5*time.Minute, "Overall run timeout")
		dryRun  = flag.Bool("dry-run", false, "Report what would be removed without deleting")
	)
	flag.Parse()

	cfg := config.Load()
	appLogger := logger.New(logger.DefaultConfig())
	slog.SetDefault(appLogger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	sessionRepo := repository.NewSessionRepository(pool)
	revocationRepo := repository.NewRevocationRepository(pool)
	otpRepo := repository.NewOTPRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)

	sessionService := session.NewService(sessionRepo, revocationRepo, otpRepo, session.Config{
		MaxSessionsPerUser: cfg.Auth.MaxSessionsPerUser,
		MaxIPsPerUser:      cfg.Auth.MaxIPsPerUser,
		RevokedRetention:   cfg.Auth.RevokedRetention,
	}, appLogger)

	if *dryRun {
		appLogger.Info("dry run, nothing will be deleted",
			"revoked_retention", cfg.Auth.RevokedRetention,
			"attempts_retention", cfg.Auth.AttemptsRetention,
			"archive_enabled", cfg.Archive.Enabled,
		)
		return
	}

	result, err := sessionService.Cleanup(ctx)
	if err != nil {
		log.Fatalf("Cleanup sweep failed: %v", err)
	}
	appLogger.Info("session sweep done",
		"sessions_deactivated", result.SessionsDeactivated,
		"revocations_purged", result.RevocationsPurged,
		"otp_codes_deleted", result.OTPCodesDeleted,
	)

	if suspicious, err := sessionService.CountSuspiciousUsers(ctx); err != nil {
		appLogger.Warn("suspicious account count failed", "error", err)
	} else if suspicious > 0 {
		appLogger.Warn("accounts flagged for review", "count", suspicious)
	}

	attemptCutoff := time.Now().UTC().Add(-cfg.Auth.AttemptsRetention)

	if cfg.Archive.Enabled {
		archiveDB, err := sqlx.ConnectContext(ctx, "pgx", cfg.Database.DSN())
		if err != nil {
			log.Fatalf("Failed to open archive connection: %v", err)
		}
		defer archiveDB.Close()

		archiver := storage.NewArchiver(archiveDB, storage.NewS3Client(&cfg.Archive), cfg.Archive.Bucket, appLogger)
		res, err := archiver.ArchiveAndPurge(ctx, attemptCutoff)
		if err != nil {
			// Rows older than the cutoff stay in place until a later run succeeds
			log.Fatalf("Attempt archival failed: %v", err)
		}
		appLogger.Info("attempt archival done",
			"rows_archived", res.RowsArchived,
			"rows_purged", res.RowsPurged,
			"object_key", res.ObjectKey,
		)
		return
	}

	deleted, err := attemptRepo.DeleteBefore(ctx, attemptCutoff)
	if err != nil {
		log.Fatalf("Attempt purge failed: %v", err)
	}
	appLogger.Info("attempt purge done", "rows_deleted", deleted)
}
