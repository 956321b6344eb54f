// Package storage archives aged login attempt rows to S3-compatible object
// storage before they are purged from the database. The audit trail stays
// queryable offline while the hot table stays small.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/welldanyogia/newsroom-auth/internal/config"
	"github.com/welldanyogia/newsroom-auth/internal/repository"
)

// ObjectPutter is the slice of the S3 client the archiver needs
type ObjectPutter interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client creates an S3 client from archive configuration.
// Path-style addressing keeps MinIO-compatible endpoints working.
func NewS3Client(cfg *config.ArchiveConfig) *s3.Client {
	var endpointURL string
	if strings.HasPrefix(cfg.Endpoint, "http://") || strings.HasPrefix(cfg.Endpoint, "https://") {
		endpointURL = cfg.Endpoint
	} else {
		protocol := "http"
		if cfg.UseSSL {
			protocol = "https"
		}
		endpointURL = protocol + "://" + cfg.Endpoint
	}

	return s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		BaseEndpoint: aws.String(endpointURL),
		UsePathStyle: true,
	})
}

// Archiver exports login attempt rows older than a cutoff as NDJSON objects
// and deletes them afterwards. An upload failure aborts the purge so rows are
// never dropped without a copy landing in the bucket.
type Archiver struct {
	db     *sqlx.DB
	client ObjectPutter
	bucket string
	logger *slog.Logger
	now    func() time.Time
}

// NewArchiver creates a new Archiver instance
func NewArchiver(db *sqlx.DB, client ObjectPutter, bucket string, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		db:     db,
		client: client,
		bucket: bucket,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Result summarizes one archival run
type Result struct {
	RowsArchived int    `json:"rows_archived"`
	RowsPurged   int64  `json:"rows_purged"`
	ObjectKey    string `json:"object_key,omitempty"`
}

// ArchiveAndPurge exports every attempt row older than cutoff to one NDJSON
// object, then deletes the exported rows. Idempotent: a rerun after a failed
// purge re-exports the same rows under a new key.
func (a *Archiver) ArchiveAndPurge(ctx context.Context, cutoff time.Time) (*Result, error) {
	var attempts []repository.LoginAttempt
	err := a.db.SelectContext(ctx, &attempts,
		`SELECT id, email, ip_address, user_agent, success, failure_reason, attempted_at
		 FROM login_attempts
		 WHERE attempted_at < $1
		 ORDER BY attempted_at`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts for archival: %w", err)
	}

	if len(attempts) == 0 {
		return &Result{}, nil
	}

	body, err := encodeNDJSON(attempts)
	if err != nil {
		return nil, err
	}

	key := objectKey(a.now())
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload archive object: %w", err)
	}

	res, err := a.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE attempted_at < $1`, cutoff)
	if err != nil {
		// The object is already uploaded; the next run re-exports and retries
		return nil, fmt.Errorf("failed to purge archived attempts: %w", err)
	}
	purged, _ := res.RowsAffected()

	a.logger.Info("login attempts archived",
		"rows_archived", len(attempts),
		"rows_purged", purged,
		"object_key", key,
	)

	return &Result{
		RowsArchived: len(attempts),
		RowsPurged:   purged,
		ObjectKey:    key,
	}, nil
}

// encodeNDJSON renders one JSON document per line
func encodeNDJSON(attempts []repository.LoginAttempt) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range attempts {
		if err := enc.Encode(&attempts[i]); err != nil {
			return nil, fmt.Errorf("failed to encode attempt %s: %w", attempts[i].ID, err)
		}
	}
	return buf.Bytes(), nil
}

// objectKey builds a date-partitioned object key
func objectKey(now time.Time) string {
	return fmt.Sprintf("attempts/%04d/%02d/%02d/%s.ndjson",
		now.Year(), int(now.Month()), now.Day(), uuid.New())
}
